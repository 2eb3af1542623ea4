package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KevinTCoughlin/licensegate/internal/credstore"
	"github.com/KevinTCoughlin/licensegate/internal/license"
	"github.com/KevinTCoughlin/licensegate/internal/licenseapi"
)

const (
	soloKey   = "SOLO-AAAAA-11111-BBBBB"
	thisHWID  = "hw-this-machine"
	otherHWID = "hw-other-machine"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeNetwork struct{ online atomic.Bool }

func (n *fakeNetwork) IsNetworkAvailable() bool { return n.online.Load() }

type fakeIdentity struct{ id string }

func (f fakeIdentity) Generate(context.Context) string { return f.id }
func (f fakeIdentity) MachineName(context.Context) string { return "Den iMac" }

type fakeTransport struct {
	mu    sync.Mutex
	calls map[string]int

	activate   func(key, hwid, name string) (*license.License, error)
	validate   func(key, hwid string) (*licenseapi.ValidationResult, error)
	deactivate func(key, hwid string) (bool, error)
}

func soloSnapshot() license.Snapshot {
	return license.Snapshot{Tier: license.TierSolo, Email: "dad@example.com", MaxMachines: 1, ActivatedMachines: 1}
}

func newFakeTransport(c *clock) *fakeTransport {
	return &fakeTransport{
		calls: make(map[string]int),
		activate: func(key, hwid, name string) (*license.License, error) {
			return license.FromSnapshot(soloSnapshot(), key, hwid, name, c.Now()), nil
		},
		validate: func(string, string) (*licenseapi.ValidationResult, error) {
			s := soloSnapshot()
			return &licenseapi.ValidationResult{Valid: true, Snapshot: &s}, nil
		},
		deactivate: func(string, string) (bool, error) { return true, nil },
	}
}

func (f *fakeTransport) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeTransport) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeTransport) Activate(_ context.Context, key, hwid, name string) (*license.License, error) {
	f.record("activate")
	return f.activate(key, hwid, name)
}

// Validate fails like the real client when the caller's context has ended
// by the time the answer arrives.
func (f *fakeTransport) Validate(ctx context.Context, key, hwid string) (*licenseapi.ValidationResult, error) {
	f.record("validate")
	res, err := f.validate(key, hwid)
	if ctx.Err() != nil {
		return nil, &licenseapi.APIError{Kind: licenseapi.KindNetworkError, Message: "sending request", Err: ctx.Err()}
	}
	return res, err
}

func (f *fakeTransport) Deactivate(_ context.Context, key, hwid string) (bool, error) {
	f.record("deactivate")
	return f.deactivate(key, hwid)
}

type harness struct {
	t         *testing.T
	clock     *clock
	backend   *credstore.MemoryBackend
	store     credstore.Store
	transport *fakeTransport
	network   *fakeNetwork
	identity  fakeIdentity
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c := &clock{t: epoch}
	b := credstore.NewMemoryBackend()
	h := &harness{
		t:         t,
		clock:     c,
		backend:   b,
		store:     credstore.New(b, credstore.Probe(b), quietLogger()),
		transport: newFakeTransport(c),
		network:   &fakeNetwork{},
		identity:  fakeIdentity{id: thisHWID},
	}
	h.network.online.Store(true)
	return h
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (h *harness) start() *Orchestrator {
	h.t.Helper()
	o, err := New(context.Background(), Deps{
		Store:     h.store,
		Transport: h.transport,
		Network:   h.network,
		Identity:  h.identity,
	}, WithClock(h.clock.Now), WithLogger(quietLogger()))
	require.NoError(h.t, err)
	h.t.Cleanup(o.Wait)
	return o
}

// seedLicense stores a solo license for hwid last validated at validated.
func (h *harness) seedLicense(hwid string, validated time.Time) *license.License {
	h.t.Helper()
	l := license.FromSnapshot(soloSnapshot(), soloKey, hwid, "Den iMac", validated)
	require.NoError(h.t, h.store.SaveLicense(l))
	require.NoError(h.t, h.store.SaveCacheExpiry(l.CacheValidUntil))
	return l
}

func (h *harness) storedLicense() *license.License {
	h.t.Helper()
	l, err := h.store.License()
	require.NoError(h.t, err)
	return l
}

func (h *harness) storedTrial() *license.TrialInfo {
	h.t.Helper()
	tr, err := h.store.Trial()
	require.NoError(h.t, err)
	return tr
}
