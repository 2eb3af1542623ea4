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

// Activate binds key to this machine. Activating a key that is already
// active here succeeds with OutcomeAlreadyActivated.
func (o *Orchestrator) Activate(ctx context.Context, key string) ActivationResult {
	res := o.activate(ctx, license.NormalizeKey(key))
	o.recorder.Activation(res.Outcome.String(), res.Reason.String())
	return res
}

func (o *Orchestrator) activate(ctx context.Context, key string) ActivationResult {
	if err := license.ValidateKey(key); err != nil {
		return failed(ReasonMalformedKey, err)
	}

	o.opMu.Lock()
	defer o.opMu.Unlock()

	logger := o.logger.With("key", license.MaskKey(key))

	stored, err := o.store.License()
	switch {
	case errors.Is(err, credstore.ErrMissingCapability):
		return failed(ReasonMissingCapability, err)
	case errors.Is(err, credstore.ErrCorrupt):
		logger.Warn("stored license was corrupt and has been discarded", "error", err)
		stored = nil
	case err != nil:
		return failed(ReasonStorage, err)
	}

	if !o.network.IsNetworkAvailable() {
		logger.Info("activation skipped, license server unreachable")
		return failed(ReasonNetwork, &licenseapi.APIError{Kind: licenseapi.KindNetworkError, Message: "no network connection"})
	}

	now := o.now()
	hwid := o.identity.Generate(ctx)
	name := o.identity.MachineName(ctx)

	lic, err := o.transport.Activate(ctx, key, hwid, name)
	outcome := OutcomeActivated
	if errors.Is(err, licenseapi.ErrMachineAlreadyActivated) {
		recovered, rerr := o.recoverActivation(ctx, key, hwid, name, stored, now)
		if rerr != nil {
			logger.Warn("machine already activated but the license could not be recovered", "error", rerr)
			res := failed(ReasonMachineAlreadyActivated, err)
			if stored != nil && stored.Key == key {
				if m, ok := stored.Machine(hwid); ok {
					res.CanReactivate = m.CanReactivate(now)
				}
			}
			return res
		}
		lic, err, outcome = recovered, nil, OutcomeAlreadyActivated
	}
	if err == nil && lic == nil {
		err = &licenseapi.APIError{Kind: licenseapi.KindDecodingError, Message: "activation returned no license"}
	}
	if err != nil {
		logger.Warn("activation failed", "error", err)
		return failed(reasonFor(err), err)
	}

	if err := o.install(lic); err != nil {
		logger.Error("activation succeeded but the license could not be stored", "error", err)
		return failed(ReasonStorage, err)
	}
	logger.Info("license activated", "tier", lic.Tier, "outcome", outcome.String())
	return ActivationResult{Outcome: outcome, Tier: lic.Tier}
}

// recoverActivation finds the license for a key the server says is already
// active on this machine. The stored copy is used while its cache is valid;
// otherwise the server is asked.
func (o *Orchestrator) recoverActivation(ctx context.Context, key, hwid, name string, stored *license.License, now time.Time) (*license.License, error) {
	ours := stored != nil && stored.Key == key && stored.HasMachine(hwid)
	if ours && stored.IsCacheValid(now) {
		return stored, nil
	}

	res, err := o.validate(ctx, key, hwid)
	if err != nil {
		return nil, fmt.Errorf("confirming existing activation: %w", err)
	}
	if ours {
		stored.Refresh(*res.Snapshot, now)
		return stored, nil
	}
	return license.FromSnapshot(*res.Snapshot, key, hwid, name, now), nil
}

// install stores lic, removes the trial and publishes Licensed. Callers
// hold opMu.
func (o *Orchestrator) install(lic *license.License) error {
	prev := o.lic
	o.setLicense(lic)
	if err := o.persistLicense(); err != nil {
		o.setLicense(prev)
		return err
	}
	if err := o.store.Delete(credstore.KeyTrial); err != nil {
		o.logger.Error("deleting trial record failed", "error", err)
	}
	o.trial = nil
	o.publish(license.Licensed(lic.Tier), "")
	return nil
}

// Deactivate releases this machine's slot. The server call is best effort;
// local license data is always removed and the status becomes Expired.
// It reports whether the server confirmed the deactivation.
func (o *Orchestrator) Deactivate(ctx context.Context) bool {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	lic := o.lic
	if lic == nil {
		stored, err := o.store.License()
		if err != nil {
			o.logger.Warn("reading stored license for deactivation failed", "error", err)
		}
		lic = stored
	}
	if lic == nil {
		o.logger.Info("nothing to deactivate")
		return false
	}

	logger := o.logger.With("key", license.MaskKey(lic.Key))
	confirmed := false
	if o.network.IsNetworkAvailable() {
		ok, err := o.transport.Deactivate(ctx, lic.Key, o.identity.Generate(ctx))
		switch {
		case err != nil:
			logger.Warn("server deactivation failed, clearing local license anyway", "error", err)
		case !ok:
			logger.Warn("server did not confirm deactivation, clearing local license anyway")
		default:
			confirmed = true
		}
	} else {
		logger.Warn("license server unreachable, clearing local license only")
	}

	for _, key := range []credstore.Key{credstore.KeyLicense, credstore.KeyCacheExpiry} {
		if err := o.store.Delete(key); err != nil {
			logger.Error("deleting license record failed", "record", string(key), "error", err)
		}
	}
	o.trial = license.ConsumedTrial(o.now())
	if err := o.store.SaveTrial(o.trial); err != nil {
		logger.Error("saving consumed trial failed", "error", err)
	}

	o.setLicense(nil)
	o.publish(license.Expired(), "")
	logger.Info("license deactivated", "server_confirmed", confirmed)
	return confirmed
}
