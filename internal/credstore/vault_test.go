package credstore

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileVault_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vault")
	v, err := OpenFileVault(dir, []byte("machine-secret"))
	require.NoError(t, err)

	require.NoError(t, v.Set(KeyLicense, []byte(`{"email":"dad@example.com"}`)))
	got, err := v.Get(KeyLicense)
	require.NoError(t, err)
	assert.Equal(t, `{"email":"dad@example.com"}`, string(got))

	raw, err := os.ReadFile(filepath.Join(dir, "license_data.enc"))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("dad@example.com")), "record must be encrypted at rest")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dir, "license_data.enc"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	require.NoError(t, v.Delete(KeyLicense))
	_, err = v.Get(KeyLicense)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, v.Delete(KeyLicense))
}

func TestFileVault_ReopenWithSameSecret(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vault")
	v, err := OpenFileVault(dir, []byte("machine-secret"))
	require.NoError(t, err)
	require.NoError(t, v.Set(KeyTrial, []byte("trial")))

	reopened, err := OpenFileVault(dir, []byte("machine-secret"))
	require.NoError(t, err)
	got, err := reopened.Get(KeyTrial)
	require.NoError(t, err)
	assert.Equal(t, "trial", string(got))
}

func TestFileVault_OtherMachineCannotRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vault")
	v, err := OpenFileVault(dir, []byte("machine-a"))
	require.NoError(t, err)
	require.NoError(t, v.Set(KeyLicense, []byte("secret")))

	other, err := OpenFileVault(dir, []byte("machine-b"))
	require.NoError(t, err)
	_, err = other.Get(KeyLicense)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileVault_RecordBoundToKey(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vault")
	v, err := OpenFileVault(dir, []byte("machine-secret"))
	require.NoError(t, err)
	require.NoError(t, v.Set(KeyLicense, []byte("license")))

	// Swapping files between keys must not decrypt.
	require.NoError(t, os.Rename(filepath.Join(dir, "license_data.enc"), filepath.Join(dir, "trial_start.enc")))
	_, err = v.Get(KeyTrial)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileVault_RejectsSharedDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	dir := filepath.Join(t.TempDir(), "shared")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.Chmod(dir, 0o755))

	_, err := OpenFileVault(dir, []byte("machine-secret"))
	assert.Error(t, err)
}

func TestFileVault_EmptySecret(t *testing.T) {
	_, err := OpenFileVault(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestFileVault_BackingSecureStore(t *testing.T) {
	v, err := OpenFileVault(filepath.Join(t.TempDir(), "vault"), []byte("machine-secret"))
	require.NoError(t, err)

	s := New(v, Probe(v), nil)
	want := testLicense()
	require.NoError(t, s.SaveLicense(want))
	got, err := s.License()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
