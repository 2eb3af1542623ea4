package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KevinTCoughlin/licensegate/internal/credstore"
	"github.com/KevinTCoughlin/licensegate/internal/license"
	"github.com/KevinTCoughlin/licensegate/internal/licenseapi"
)

// ValidateAtLaunch computes the status from persisted data. A stored
// license is checked against this machine and its cache window; otherwise
// the stored trial is evaluated, and with no records a trial starts.
func (o *Orchestrator) ValidateAtLaunch(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	now := o.now()
	hwid := o.identity.Generate(ctx)

	stored, err := o.store.License()
	licensed := false
	switch {
	case errors.Is(err, credstore.ErrCorrupt):
		o.logger.Warn("stored license was corrupt and has been discarded", "error", err)
		stored, licensed = nil, true
	case err != nil:
		return o.storageFailure(err)
	}

	if stored != nil {
		return o.validateLicense(ctx, stored, hwid, now)
	}
	o.setLicense(nil)
	return o.validateTrial(now, licensed)
}

func (o *Orchestrator) validateLicense(ctx context.Context, stored *license.License, hwid string, now time.Time) error {
	if expiry, ok, err := o.store.CacheExpiry(); err != nil {
		o.logger.Warn("reading cache expiry failed, using license record", "error", err)
	} else if ok && expiry.Before(stored.CacheValidUntil) {
		stored.CacheValidUntil = expiry
	}

	o.setLicense(stored)
	o.trial = nil
	logger := o.logger.With("key", license.MaskKey(stored.Key))

	if !stored.HasMachine(hwid) {
		logger.Warn("stored license does not list this machine")
		o.publish(license.Invalid(license.ReasonNotActivatedHere), "")
		return nil
	}

	online := o.network.IsNetworkAvailable()
	if stored.IsCacheValid(now) && !stored.IsExpired(now) {
		o.publish(license.Licensed(stored.Tier), "")
		if online {
			o.phoneHome(ctx, stored.Key, hwid)
		}
		return nil
	}

	if !online {
		o.recorder.Validation("launch", "skipped_offline")
		if stored.IsExpired(now) {
			o.publish(license.Expired(), "")
			return nil
		}
		logger.Warn("license cache expired and server unreachable", "cache_valid_until", stored.CacheValidUntil)
		o.publish(license.Invalid(license.ReasonValidationRequired), "")
		return nil
	}

	res, err := o.validate(ctx, stored.Key, hwid)
	if err != nil {
		o.recorder.Validation("launch", "failed")
		warning := validationWarning(err)
		if stored.IsExpired(now) {
			o.publish(license.Expired(), warning)
			return nil
		}
		logger.Warn("revalidation failed, keeping license in grace", "error", err)
		o.publish(license.Licensed(stored.Tier), warning)
		return nil
	}

	o.recorder.Validation("launch", "ok")
	stored.Refresh(*res.Snapshot, now)
	o.generation++
	warning := ""
	if err := o.persistLicense(); err != nil {
		logger.Error("saving revalidated license failed", "error", err)
		warning = "license was revalidated but could not be saved"
	}
	if stored.IsExpired(now) {
		o.publish(license.Expired(), warning)
		return nil
	}
	o.publish(license.Licensed(stored.Tier), warning)
	return nil
}

// validateTrial evaluates the stored trial. When licensed is set a license
// record existed, so a missing trial means it was consumed by activation.
func (o *Orchestrator) validateTrial(now time.Time, licensed bool) error {
	trial, err := o.store.Trial()
	switch {
	case errors.Is(err, credstore.ErrCorrupt):
		// A corrupt trial counts as used up; never start a fresh one.
		o.logger.Warn("stored trial was corrupt, treating it as consumed", "error", err)
		trial = license.ConsumedTrial(now)
		if err := o.store.SaveTrial(trial); err != nil {
			o.logger.Error("saving consumed trial failed", "error", err)
		}
	case err != nil:
		return o.storageFailure(err)
	}

	if trial == nil && licensed {
		o.logger.Warn("no trial left after losing the license record")
		trial = license.ConsumedTrial(now)
		if err := o.store.SaveTrial(trial); err != nil {
			o.logger.Error("saving consumed trial failed", "error", err)
		}
	}
	if trial == nil {
		trial = license.NewTrial(now)
		if err := o.store.SaveTrial(trial); err != nil {
			return o.storageFailure(err)
		}
		o.logger.Info("trial started", "days", trial.DurationDays, "ends", trial.ExpirationDate())
	}

	o.trial = trial
	if trial.IsExpired(now) {
		o.publish(license.Expired(), "")
		return nil
	}
	o.publish(license.Trial(trial.DaysRemaining(now)), "")
	return nil
}

func (o *Orchestrator) storageFailure(err error) error {
	o.setLicense(nil)
	o.trial = nil
	o.publish(license.Invalid(license.ReasonStorageUnavailable), "")
	return fmt.Errorf("reading license state: %w", err)
}

// phoneHome revalidates in the background after a cache-valid launch. On
// success the cached license is refreshed in place; on failure nothing
// changes. At most one runs at a time. Callers hold opMu.
func (o *Orchestrator) phoneHome(ctx context.Context, key, hwid string) {
	if !o.phoning.CompareAndSwap(false, true) {
		return
	}
	gen := o.generation
	ctx = context.WithoutCancel(ctx)

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		defer o.phoning.Store(false)

		res, err := o.validate(ctx, key, hwid)
		if err != nil {
			o.recorder.Validation("phone_home", "failed")
			o.logger.Debug("background revalidation failed", "error", err)
			return
		}

		o.opMu.Lock()
		defer o.opMu.Unlock()
		if o.generation != gen || o.lic == nil {
			o.recorder.Validation("phone_home", "stale")
			o.logger.Debug("license changed during background revalidation, discarding result")
			return
		}
		o.recorder.Validation("phone_home", "ok")
		o.lic.Refresh(*res.Snapshot, o.now())
		o.generation++
		if err := o.persistLicense(); err != nil {
			o.logger.Error("saving revalidated license failed", "error", err)
		}

		o.mu.RLock()
		status, warning := o.status, o.warning
		o.mu.RUnlock()
		if status.State == license.StateLicensed {
			status = license.Licensed(o.lic.Tier)
		}
		o.publish(status, warning)
	}()
}

// validate asks the server about key and returns an error unless it
// confirmed the license with a usable snapshot.
func (o *Orchestrator) validate(ctx context.Context, key, hwid string) (*licenseapi.ValidationResult, error) {
	res, err := o.transport.Validate(ctx, key, hwid)
	switch {
	case err != nil:
		return nil, err
	case res == nil:
		return nil, &licenseapi.APIError{Kind: licenseapi.KindDecodingError, Message: "empty validation result"}
	case !res.Valid:
		return nil, fmt.Errorf("license server rejected the license: %s", res.Message)
	case res.Snapshot == nil:
		return nil, &licenseapi.APIError{Kind: licenseapi.KindDecodingError, Message: "validation result has no license"}
	}
	return res, nil
}

func validationWarning(err error) string {
	switch licenseapi.KindOf(err) {
	case licenseapi.KindNetworkError:
		return "Could not reach the license server. Your license stays active for now; connect to the internet to revalidate."
	case licenseapi.KindLicenseRevoked:
		return "The license server reports this license as revoked. Contact support if this is unexpected."
	case licenseapi.KindLicenseNotFound, licenseapi.KindInvalidKey:
		return "The license server no longer recognizes this license key."
	default:
		return "License revalidation failed. Your license stays active for now; it will be checked again later."
	}
}
