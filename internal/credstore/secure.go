package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KevinTCoughlin/licensegate/internal/license"
)

// SecureStore keeps versioned records in a secure Backend.
type SecureStore struct {
	backend Backend
	logger  *slog.Logger
}

// New returns a SecureStore over b when c is available, and a Disabled
// store otherwise.
func New(b Backend, c Capability, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "credstore")
	if !c.Available() {
		logger.Warn("secure storage unavailable, license data cannot be persisted", "reason", c.Reason())
		return Disabled{Reason: c.Reason()}
	}
	return &SecureStore{backend: b, logger: logger}
}

type cacheExpiryRecord struct {
	ValidUntil time.Time `json:"valid_until"`
}

// SaveLicense stores l after checking its invariants.
func (s *SecureStore) SaveLicense(l *license.License) error {
	if err := l.Check(); err != nil {
		return fmt.Errorf("refusing to store license: %w", err)
	}
	return s.put(KeyLicense, l)
}

// License returns the stored license.
func (s *SecureStore) License() (*license.License, error) {
	var l license.License
	found, err := s.get(KeyLicense, &l)
	if err != nil || !found {
		return nil, err
	}
	if err := l.Check(); err != nil {
		return nil, s.discard(KeyLicense, err)
	}
	return &l, nil
}

// SaveTrial stores t.
func (s *SecureStore) SaveTrial(t *license.TrialInfo) error {
	return s.put(KeyTrial, t)
}

// Trial returns the stored trial record.
func (s *SecureStore) Trial() (*license.TrialInfo, error) {
	var t license.TrialInfo
	found, err := s.get(KeyTrial, &t)
	if err != nil || !found {
		return nil, err
	}
	if t.StartDate.IsZero() || t.DurationDays <= 0 {
		return nil, s.discard(KeyTrial, errors.New("trial record has no start date or duration"))
	}
	return &t, nil
}

// SaveCacheExpiry stores the end of the cache-valid window.
func (s *SecureStore) SaveCacheExpiry(t time.Time) error {
	return s.put(KeyCacheExpiry, cacheExpiryRecord{ValidUntil: t})
}

// CacheExpiry returns the stored end of the cache-valid window.
func (s *SecureStore) CacheExpiry() (time.Time, bool, error) {
	var rec cacheExpiryRecord
	found, err := s.get(KeyCacheExpiry, &rec)
	if err != nil || !found {
		return time.Time{}, false, err
	}
	return rec.ValidUntil, true, nil
}

// Delete removes one record. Deleting an absent record is not an error.
func (s *SecureStore) Delete(key Key) error {
	if err := s.backend.Delete(key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// ClearAll removes every record, attempting all keys even if one fails.
func (s *SecureStore) ClearAll() error {
	var errs []error
	for _, key := range Keys {
		if err := s.Delete(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// put replaces the record at key. The old record is deleted before the new
// one is inserted so a prior value is never partially overwritten.
func (s *SecureStore) put(key Key, v any) error {
	data, err := encode(key, v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.backend.Delete(key); err != nil {
		return fmt.Errorf("clearing %s: %w", key, err)
	}
	if err := s.backend.Set(key, data); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *SecureStore) get(key Key, v any) (bool, error) {
	data, err := s.backend.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if errors.Is(err, ErrCorrupt) {
		return false, s.discard(key, err)
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	payload, err := decode(key, data)
	if err != nil {
		return false, s.discard(key, err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return false, s.discard(key, err)
	}
	return true, nil
}

func (s *SecureStore) discard(key Key, cause error) error {
	s.logger.Warn("discarding corrupt record", "key", string(key), "error", cause)
	if err := s.backend.Delete(key); err != nil {
		s.logger.Error("failed to discard corrupt record", "key", string(key), "error", err)
	}
	return fmt.Errorf("%s: %w: %v", key, ErrCorrupt, cause)
}
