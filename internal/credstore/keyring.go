package credstore

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringBackend stores records in the platform credential store: the
// macOS Keychain, the freedesktop Secret Service or the Windows Credential
// Manager.
type KeyringBackend struct {
	service string
}

// NewKeyringBackend returns a backend scoped to service.
func NewKeyringBackend(service string) *KeyringBackend {
	if service == "" {
		service = DefaultService
	}
	return &KeyringBackend{service: service}
}

// Get reads the record at key.
func (k *KeyringBackend) Get(key Key) ([]byte, error) {
	secret, err := keyring.Get(k.service, string(key))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keyring get: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: keyring entry is not base64: %v", ErrCorrupt, err)
	}
	return data, nil
}

// Set writes the record at key.
func (k *KeyringBackend) Set(key Key, data []byte) error {
	if err := keyring.Set(k.service, string(key), base64.StdEncoding.EncodeToString(data)); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

// Delete removes the record at key.
func (k *KeyringBackend) Delete(key Key) error {
	err := keyring.Delete(k.service, string(key))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}
