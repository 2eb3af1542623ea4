package orchestrator

import (
	"time"

	"github.com/KevinTCoughlin/licensegate/internal/license"
)

// Report is a display-ready summary of the published state. License keys
// are masked.
type Report struct {
	State             string       `json:"state"`
	Valid             bool         `json:"valid"`
	Summary           string       `json:"summary"`
	DaysRemaining     int          `json:"days_remaining,omitempty"`
	HoursRemaining    int          `json:"hours_remaining,omitempty"`
	TrialEndsAt       *time.Time   `json:"trial_ends_at,omitempty"`
	Tier              license.Tier `json:"tier,omitempty"`
	Reason            string       `json:"reason,omitempty"`
	Warning           string       `json:"warning,omitempty"`
	Key               string       `json:"key,omitempty"`
	Email             string       `json:"email,omitempty"`
	MaxMachines       int          `json:"max_machines,omitempty"`
	ActivatedMachines int          `json:"activated_machines,omitempty"`
	LastValidated     *time.Time   `json:"last_validated,omitempty"`
	CacheValidUntil   *time.Time   `json:"cache_valid_until,omitempty"`
	ExpiresAt         *time.Time   `json:"expires_at,omitempty"`
}

// Report summarizes the current state.
func (o *Orchestrator) Report() Report {
	s := o.Status()

	o.mu.RLock()
	warning, lic, trial := o.warning, o.licView, o.trialView
	o.mu.RUnlock()

	r := Report{
		State:         s.State.String(),
		Valid:         s.IsValid(),
		Summary:       s.String(),
		DaysRemaining: s.DaysRemaining,
		Tier:          s.Tier,
		Reason:        s.Reason,
		Warning:       warning,
	}
	if trial != nil && s.State == license.StateTrial {
		ends := trial.ExpirationDate()
		r.TrialEndsAt = &ends
		r.HoursRemaining = trial.HoursRemaining(o.now())
	}
	if lic != nil {
		validated, until := lic.LastValidated, lic.CacheValidUntil
		r.Key = license.MaskKey(lic.Key)
		r.Email = lic.Email
		r.MaxMachines = lic.MaxMachines
		r.ActivatedMachines = lic.ActivatedMachines
		r.LastValidated = &validated
		r.CacheValidUntil = &until
		r.ExpiresAt = lic.ExpiresAt
	}
	return r
}
