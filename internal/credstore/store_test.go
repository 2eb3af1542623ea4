package credstore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinTCoughlin/licensegate/internal/license"
)

func testLicense() *license.License {
	activated := time.Date(2025, 2, 1, 8, 30, 0, 0, time.UTC)
	lastReactivation := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC)
	return &license.License{
		Tier:         license.TierMultiple,
		Key:          "MULTI-AAAAA-11111-BBBBB",
		Email:        "dad@example.com",
		PurchaseDate: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		Signature:    "sig",
		MaxMachines:  3,
		ActiveMachines: []license.MachineEntry{{
			HardwareID:           "hw-1",
			MachineName:          "Den iMac",
			ActivatedDate:        activated,
			ReactivationsUsed:    1,
			ReactivationsLimit:   3,
			LastReactivationDate: &lastReactivation,
		}},
		ActivatedMachines: 2,
		LastValidated:     activated,
		CacheValidUntil:   activated.Add(license.CacheWindow),
		ExpiresAt:         &expires,
	}
}

func newStore(t *testing.T) (Store, *MemoryBackend) {
	t.Helper()
	b := NewMemoryBackend()
	s := New(b, Probe(b), nil)
	require.IsType(t, &SecureStore{}, s)
	return s, b
}

func TestProbe(t *testing.T) {
	b := NewMemoryBackend()
	c := Probe(b)
	assert.True(t, c.Available())
	assert.NoError(t, c.Reason())
	assert.Equal(t, 0, b.Len(), "probe must clean up after itself")

	c = Probe(nil)
	assert.False(t, c.Available())
	assert.Error(t, c.Reason())
}

func TestProbe_FailingBackend(t *testing.T) {
	c := Probe(failingBackend{err: errors.New("no secret service")})
	assert.False(t, c.Available())
	assert.ErrorContains(t, c.Reason(), "no secret service")
}

func TestLicenseRoundTrip(t *testing.T) {
	s, _ := newStore(t)
	want := testLicense()

	require.NoError(t, s.SaveLicense(want))
	got, err := s.License()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTrialRoundTrip(t *testing.T) {
	s, _ := newStore(t)
	want := license.NewTrial(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, s.SaveTrial(want))
	got, err := s.Trial()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCacheExpiryRoundTrip(t *testing.T) {
	s, _ := newStore(t)

	_, ok, err := s.CacheExpiry()
	require.NoError(t, err)
	assert.False(t, ok)

	want := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveCacheExpiry(want))
	got, ok, err := s.CacheExpiry()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, want.Equal(got))
}

func TestAbsentRecords(t *testing.T) {
	s, _ := newStore(t)

	l, err := s.License()
	assert.NoError(t, err)
	assert.Nil(t, l)

	tr, err := s.Trial()
	assert.NoError(t, err)
	assert.Nil(t, tr)
}

func TestSaveLicense_RejectsBrokenInvariant(t *testing.T) {
	s, b := newStore(t)
	l := testLicense()
	l.MaxMachines = 1
	l.ActiveMachines = append(l.ActiveMachines, license.MachineEntry{HardwareID: "hw-2"})

	assert.Error(t, s.SaveLicense(l))
	assert.Equal(t, 0, b.Len())
}

func TestDeleteAndClearAll(t *testing.T) {
	s, b := newStore(t)
	require.NoError(t, s.SaveLicense(testLicense()))
	require.NoError(t, s.SaveTrial(license.NewTrial(time.Now())))
	require.NoError(t, s.SaveCacheExpiry(time.Now()))
	require.Equal(t, 3, b.Len())

	require.NoError(t, s.Delete(KeyTrial))
	tr, err := s.Trial()
	require.NoError(t, err)
	assert.Nil(t, tr)
	assert.NoError(t, s.Delete(KeyTrial), "deleting twice is fine")

	require.NoError(t, s.ClearAll())
	assert.Equal(t, 0, b.Len())
}

func TestPut_DeletesBeforeInsert(t *testing.T) {
	b := &recordingBackend{MemoryBackend: NewMemoryBackend()}
	s := New(b, Capability{available: true}, nil)

	require.NoError(t, s.SaveTrial(license.NewTrial(time.Now())))
	assert.Equal(t, []string{"delete trial_start", "set trial_start"}, b.ops)
}

func TestCorruptRecordIsDiscarded(t *testing.T) {
	s, b := newStore(t)
	require.NoError(t, b.Set(KeyLicense, []byte("{not json")))

	l, err := s.License()
	assert.Nil(t, l)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, getErr := b.Get(KeyLicense)
	assert.ErrorIs(t, getErr, ErrNotFound, "corrupt record must be removed")

	l, err = s.License()
	assert.NoError(t, err)
	assert.Nil(t, l)
}

func TestInvalidTrialIsDiscarded(t *testing.T) {
	s, b := newStore(t)
	require.NoError(t, b.Set(KeyTrial, []byte(`{"schema":2,"data":{"duration_days":3}}`)))

	_, err := s.Trial()
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Equal(t, 0, b.Len())
}

func TestDisabledStore(t *testing.T) {
	reason := errors.New("no keychain entitlement")
	s := New(NewMemoryBackend(), Unavailable(reason), nil)
	require.IsType(t, Disabled{}, s)

	checks := map[string]error{
		"SaveLicense":     s.SaveLicense(testLicense()),
		"SaveTrial":       s.SaveTrial(license.NewTrial(time.Now())),
		"SaveCacheExpiry": s.SaveCacheExpiry(time.Now()),
		"Delete":          s.Delete(KeyLicense),
		"ClearAll":        s.ClearAll(),
	}
	_, err := s.License()
	checks["License"] = err
	_, err = s.Trial()
	checks["Trial"] = err
	_, _, err = s.CacheExpiry()
	checks["CacheExpiry"] = err

	for name, err := range checks {
		assert.ErrorIs(t, err, ErrMissingCapability, name)
		assert.ErrorContains(t, err, "no keychain entitlement", name)
	}
}

type failingBackend struct{ err error }

func (f failingBackend) Get(Key) ([]byte, error) { return nil, f.err }
func (f failingBackend) Set(Key, []byte) error { return f.err }
func (f failingBackend) Delete(Key) error { return f.err }

type recordingBackend struct {
	*MemoryBackend
	ops []string
}

func (r *recordingBackend) Set(key Key, data []byte) error {
	r.ops = append(r.ops, "set "+string(key))
	return r.MemoryBackend.Set(key, data)
}

func (r *recordingBackend) Delete(key Key) error {
	r.ops = append(r.ops, "delete "+string(key))
	return r.MemoryBackend.Delete(key)
}
