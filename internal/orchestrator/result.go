package orchestrator

import (
	"errors"

	"github.com/KevinTCoughlin/licensegate/internal/credstore"
	"github.com/KevinTCoughlin/licensegate/internal/license"
	"github.com/KevinTCoughlin/licensegate/internal/licenseapi"
)

// Outcome is the result class of an activation attempt.
type Outcome int

// Activation outcomes.
const (
	OutcomeActivated Outcome = iota + 1
	OutcomeAlreadyActivated
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeActivated:
		return "activated"
	case OutcomeAlreadyActivated:
		return "already_activated"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reason is why an activation failed. The UI maps reasons to messages.
type Reason int

// Failure reasons.
const (
	ReasonNone Reason = iota
	ReasonMalformedKey
	ReasonMissingCapability
	ReasonNetwork
	ReasonInvalidKey
	ReasonLicenseNotFound
	ReasonMachineAlreadyActivated
	ReasonMachineLimitReached
	ReasonLicenseRevoked
	ReasonServer
	ReasonDecoding
	ReasonRateLimited
	ReasonStorage
)

var reasonNames = map[Reason]string{
	ReasonNone:                    "none",
	ReasonMalformedKey:            "malformed_key",
	ReasonMissingCapability:       "missing_capability",
	ReasonNetwork:                 "network",
	ReasonInvalidKey:              "invalid_key",
	ReasonLicenseNotFound:         "license_not_found",
	ReasonMachineAlreadyActivated: "machine_already_activated",
	ReasonMachineLimitReached:     "machine_limit_reached",
	ReasonLicenseRevoked:          "license_revoked",
	ReasonServer:                  "server",
	ReasonDecoding:                "decoding",
	ReasonRateLimited:             "rate_limited",
	ReasonStorage:                 "storage",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return "unknown"
}

// ActivationResult is what Activate reports to the UI.
type ActivationResult struct {
	Outcome Outcome
	Tier    license.Tier
	Reason  Reason

	// CanReactivate is set on a failed already-activated result when the
	// stored slot for this machine may still be reactivated.
	CanReactivate bool

	Err error
}

// OK reports whether the machine ended up licensed.
func (r ActivationResult) OK() bool {
	return r.Outcome == OutcomeActivated || r.Outcome == OutcomeAlreadyActivated
}

func failed(reason Reason, err error) ActivationResult {
	return ActivationResult{Outcome: OutcomeFailed, Reason: reason, Err: err}
}

// reasonFor classifies err.
func reasonFor(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, license.ErrMalformedKey):
		return ReasonMalformedKey
	case errors.Is(err, credstore.ErrMissingCapability):
		return ReasonMissingCapability
	}
	switch licenseapi.KindOf(err) {
	case licenseapi.KindNetworkError:
		return ReasonNetwork
	case licenseapi.KindInvalidKey:
		return ReasonInvalidKey
	case licenseapi.KindLicenseNotFound:
		return ReasonLicenseNotFound
	case licenseapi.KindMachineAlreadyActivated:
		return ReasonMachineAlreadyActivated
	case licenseapi.KindMachineLimitReached:
		return ReasonMachineLimitReached
	case licenseapi.KindLicenseRevoked:
		return ReasonLicenseRevoked
	case licenseapi.KindDecodingError:
		return ReasonDecoding
	case licenseapi.KindRateLimited:
		return ReasonRateLimited
	}
	return ReasonServer
}
