// Package credstore persists the license, trial and cache-expiry records in
// a secure backend. Availability of secure storage is decided once, when
// the store is constructed; without it every operation fails with
// ErrMissingCapability and nothing is ever written to an insecure location.
package credstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/KevinTCoughlin/licensegate/internal/license"
)

// DefaultService is the logical namespace all records live under.
const DefaultService = "app.licensegate.license"

// Key addresses one record in the store.
type Key string

// Record keys.
const (
	KeyLicense     Key = "license_data"
	KeyTrial       Key = "trial_start"
	KeyCacheExpiry Key = "cache_expiry"
)

// Keys lists every record key, in the order ClearAll removes them.
var Keys = []Key{KeyLicense, KeyTrial, KeyCacheExpiry}

const keyProbe Key = "capability_probe"

var (
	// ErrMissingCapability is returned by every operation of a store built
	// without secure storage.
	ErrMissingCapability = errors.New("secure storage capability missing")

	// ErrNotFound is returned by a Backend for an absent record.
	ErrNotFound = errors.New("record not found")

	// ErrCorrupt reports a record that could not be decoded. The record has
	// already been discarded when this is returned.
	ErrCorrupt = errors.New("corrupt record")
)

// Store is the durable source of truth for license state.
// Lookups of absent records return a nil value and a nil error.
type Store interface {
	SaveLicense(l *license.License) error
	License() (*license.License, error)
	SaveTrial(t *license.TrialInfo) error
	Trial() (*license.TrialInfo, error)
	SaveCacheExpiry(t time.Time) error
	CacheExpiry() (time.Time, bool, error)
	Delete(key Key) error
	ClearAll() error
}

// Backend is a secure byte store addressed by Key.
type Backend interface {
	Get(key Key) ([]byte, error)
	Set(key Key, data []byte) error
	Delete(key Key) error
}

// Capability is the constructor-time token proving that a backend can hold
// secrets. Obtain one with Probe.
type Capability struct {
	available bool
	reason    error
}

// Available reports whether secure storage may be used.
func (c Capability) Available() bool { return c.available }

// Reason explains why secure storage is unavailable.
func (c Capability) Reason() error { return c.reason }

// Unavailable returns a Capability that disables the store.
func Unavailable(reason error) Capability {
	return Capability{reason: reason}
}

// Probe checks that b can round-trip a secret and returns the resulting
// Capability.
func Probe(b Backend) Capability {
	if b == nil {
		return Unavailable(errors.New("no secure backend configured"))
	}
	want := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	if err := b.Set(keyProbe, want); err != nil {
		return Unavailable(fmt.Errorf("probe write: %w", err))
	}
	got, err := b.Get(keyProbe)
	if err != nil {
		return Unavailable(fmt.Errorf("probe read: %w", err))
	}
	if err := b.Delete(keyProbe); err != nil {
		return Unavailable(fmt.Errorf("probe delete: %w", err))
	}
	if string(got) != string(want) {
		return Unavailable(errors.New("probe read back a different value"))
	}
	return Capability{available: true}
}

// Disabled is the Store used when secure storage is unavailable.
type Disabled struct {
	Reason error
}

func (d Disabled) err() error {
	if d.Reason == nil {
		return ErrMissingCapability
	}
	return fmt.Errorf("%w: %v", ErrMissingCapability, d.Reason)
}

// SaveLicense fails with ErrMissingCapability.
func (d Disabled) SaveLicense(*license.License) error { return d.err() }

// License fails with ErrMissingCapability.
func (d Disabled) License() (*license.License, error) { return nil, d.err() }

// SaveTrial fails with ErrMissingCapability.
func (d Disabled) SaveTrial(*license.TrialInfo) error { return d.err() }

// Trial fails with ErrMissingCapability.
func (d Disabled) Trial() (*license.TrialInfo, error) { return nil, d.err() }

// SaveCacheExpiry fails with ErrMissingCapability.
func (d Disabled) SaveCacheExpiry(time.Time) error { return d.err() }

// CacheExpiry fails with ErrMissingCapability.
func (d Disabled) CacheExpiry() (time.Time, bool, error) { return time.Time{}, false, d.err() }

// Delete fails with ErrMissingCapability.
func (d Disabled) Delete(Key) error { return d.err() }

// ClearAll fails with ErrMissingCapability.
func (d Disabled) ClearAll() error { return d.err() }
