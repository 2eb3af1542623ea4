package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/crypto/hkdf"
)

const (
	vaultSaltFile = ".salt"
	vaultSaltSize = 32
	vaultInfo     = "licensegate file vault v1"
)

// FileVault stores AES-256-GCM encrypted records in a private directory.
// It is an explicit opt-in for headless hosts without a platform keychain.
// The key is derived from a machine secret, so a copied vault does not open
// on another machine.
type FileVault struct {
	dir  string
	aead cipher.AEAD
}

// OpenFileVault opens or creates a vault in dir keyed by secret.
func OpenFileVault(dir string, secret []byte) (*FileVault, error) {
	if len(secret) == 0 {
		return nil, errors.New("vault secret must not be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating vault dir: %w", err)
	}
	if err := checkPrivate(dir); err != nil {
		return nil, err
	}

	salt, err := loadSalt(filepath.Join(dir, vaultSaltFile))
	if err != nil {
		return nil, err
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(vaultInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving vault key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return &FileVault{dir: dir, aead: aead}, nil
}

// Get decrypts the record at key.
func (v *FileVault) Get(key Key) ([]byte, error) {
	data, err := os.ReadFile(v.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading vault record: %w", err)
	}
	n := v.aead.NonceSize()
	if len(data) < n {
		return nil, fmt.Errorf("%w: vault record truncated", ErrCorrupt)
	}
	plain, err := v.aead.Open(nil, data[:n], data[n:], []byte(key))
	if err != nil {
		return nil, fmt.Errorf("%w: vault record failed authentication", ErrCorrupt)
	}
	return plain, nil
}

// Set encrypts data and atomically replaces the record at key.
func (v *FileVault) Set(key Key, data []byte) error {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, data, []byte(key))
	return writeFileAtomic(v.path(key), sealed)
}

// Delete removes the record at key.
func (v *FileVault) Delete(key Key) error {
	if err := os.Remove(v.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing vault record: %w", err)
	}
	return nil
}

func (v *FileVault) path(key Key) string {
	return filepath.Join(v.dir, string(key)+".enc")
}

func checkPrivate(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("checking vault dir: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("vault dir %s is accessible by other users (mode %o)", dir, perm)
	}
	return nil
}

func loadSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) != vaultSaltSize {
			return nil, fmt.Errorf("vault salt has %d bytes, want %d", len(salt), vaultSaltSize)
		}
		return salt, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading vault salt: %w", err)
	}
	salt = make([]byte, vaultSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating vault salt: %w", err)
	}
	if err := writeFileAtomic(path, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o600); err != nil && runtime.GOOS != "windows" {
		_ = tmp.Close()
		return fmt.Errorf("restricting temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
