// Package orchestrator is the license state machine. It decides the launch
// status from persisted data, runs the trial lifecycle, drives activation
// and deactivation and revalidates in the background. It is the only
// license component the UI talks to.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/KevinTCoughlin/licensegate/internal/credstore"
	"github.com/KevinTCoughlin/licensegate/internal/license"
	"github.com/KevinTCoughlin/licensegate/internal/licenseapi"
)

// Transport is the license server.
type Transport interface {
	Activate(ctx context.Context, key, hardwareID, machineName string) (*license.License, error)
	Validate(ctx context.Context, key, hardwareID string) (*licenseapi.ValidationResult, error)
	Deactivate(ctx context.Context, key, hardwareID string) (bool, error)
}

// Reachability reports whether the license server can be reached.
type Reachability interface {
	IsNetworkAvailable() bool
}

// Identity identifies this machine.
type Identity interface {
	Generate(ctx context.Context) string
	MachineName(ctx context.Context) string
}

// Recorder receives operation outcomes, typically for metrics.
type Recorder interface {
	Activation(outcome, reason string)
	Validation(source, result string)
	Status(s license.Status)
}

type nopRecorder struct{}

func (nopRecorder) Activation(string, string) {}
func (nopRecorder) Validation(string, string) {}
func (nopRecorder) Status(license.Status) {}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store     credstore.Store
	Transport Transport
	Network   Reachability
	Identity  Identity
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRecorder reports outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// Orchestrator owns the in-memory License and TrialInfo and mirrors every
// change into the store.
type Orchestrator struct {
	store     credstore.Store
	transport Transport
	network   Reachability
	identity  Identity
	now       func() time.Time
	logger    *slog.Logger
	recorder  Recorder

	// opMu serializes every state mutation. Fields below it are guarded
	// by opMu.
	opMu       sync.Mutex
	lic        *license.License
	trial      *license.TrialInfo
	generation uint64

	// mu guards the published view.
	mu        sync.RWMutex
	status    license.Status
	warning   string
	licView   *license.License
	trialView *license.TrialInfo

	refreshes  singleflight.Group
	phoning    atomic.Bool
	background sync.WaitGroup
}

// New builds an Orchestrator and runs launch validation once. A launch
// failure is logged and reflected in Status; only missing dependencies are
// returned as errors.
func New(ctx context.Context, deps Deps, opts ...Option) (*Orchestrator, error) {
	if deps.Store == nil || deps.Transport == nil || deps.Network == nil || deps.Identity == nil {
		return nil, errors.New("orchestrator: store, transport, network and identity are required")
	}
	o := &Orchestrator{
		store:     deps.Store,
		transport: deps.Transport,
		network:   deps.Network,
		identity:  deps.Identity,
		now:       time.Now,
		logger:    slog.Default(),
		recorder:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")

	if err := o.ValidateAtLaunch(ctx); err != nil {
		o.logger.Error("launch validation failed", "error", err, "status", o.Status().String())
	}
	return o, nil
}

// Status returns the current license status. A running trial is
// re-evaluated against the clock on every call.
func (o *Orchestrator) Status() license.Status {
	o.mu.RLock()
	s, trial := o.status, o.trialView
	o.mu.RUnlock()

	if s.State == license.StateTrial && trial != nil {
		now := o.now()
		if trial.IsExpired(now) {
			return license.Expired()
		}
		return license.Trial(trial.DaysRemaining(now))
	}
	return s
}

// Warning returns the non-fatal warning from the last validation, if any.
func (o *Orchestrator) Warning() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.warning
}

// License returns a copy of the current license, or nil.
func (o *Orchestrator) License() *license.License {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return cloneLicense(o.licView)
}

// Wait blocks until background revalidation has finished.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

// RefreshTimeout bounds one shared Refresh run.
const RefreshTimeout = 2 * time.Minute

// Refresh re-runs launch validation. Concurrent callers share one run,
// which outlives any single caller's context. A caller whose context ends
// stops waiting with ctx.Err().
func (o *Orchestrator) Refresh(ctx context.Context) error {
	ch := o.refreshes.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RefreshTimeout)
		defer cancel()
		return nil, o.ValidateAtLaunch(rctx)
	})
	select {
	case res := <-ch:
		if res.Shared {
			o.logger.Debug("refresh coalesced with an in-flight run")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publish replaces the published view. Callers hold opMu.
func (o *Orchestrator) publish(s license.Status, warning string) {
	o.mu.Lock()
	prev := o.status
	o.status = s
	o.warning = warning
	o.licView = cloneLicense(o.lic)
	o.trialView = cloneTrial(o.trial)
	o.mu.Unlock()

	o.recorder.Status(s)
	if prev != s {
		o.logger.Info("license status changed", "from", prev.String(), "to", s.String())
	}
	if warning != "" {
		o.logger.Warn("license warning", "warning", warning)
	}
}

// setLicense replaces the in-memory license and invalidates pending
// background work. Callers hold opMu.
func (o *Orchestrator) setLicense(l *license.License) {
	o.lic = l
	o.generation++
}

// persistLicense mirrors the in-memory license into the store. Callers
// hold opMu.
func (o *Orchestrator) persistLicense() error {
	if err := o.store.SaveLicense(o.lic); err != nil {
		return err
	}
	if err := o.store.SaveCacheExpiry(o.lic.CacheValidUntil); err != nil {
		return err
	}
	return nil
}

func cloneLicense(l *license.License) *license.License {
	if l == nil {
		return nil
	}
	c := *l
	c.ActiveMachines = append([]license.MachineEntry(nil), l.ActiveMachines...)
	for i, m := range c.ActiveMachines {
		if m.LastReactivationDate != nil {
			t := *m.LastReactivationDate
			c.ActiveMachines[i].LastReactivationDate = &t
		}
	}
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

func cloneTrial(t *license.TrialInfo) *license.TrialInfo {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
