package license

import (
	"fmt"
	"time"
)

const (
	// CacheWindow is how long a validated license is trusted without
	// contacting the license server.
	CacheWindow = 30 * 24 * time.Hour

	// DefaultReactivationsLimit is the number of reactivations granted to
	// each machine slot.
	DefaultReactivationsLimit = 3

	// reactivationCooldownMonths is the minimum spacing between two
	// reactivations of the same machine.
	reactivationCooldownMonths = 12
)

// MachineEntry is one activation slot on a license.
type MachineEntry struct {
	HardwareID           string     `json:"hardware_id"`
	MachineName          string     `json:"machine_name"`
	ActivatedDate        time.Time  `json:"activated_date"`
	ReactivationsUsed    int        `json:"reactivations_used"`
	ReactivationsLimit   int        `json:"reactivations_limit"`
	LastReactivationDate *time.Time `json:"last_reactivation_date,omitempty"`
}

// CanReactivate reports whether the slot may be reactivated at now. A slot
// that was never reactivated may be while reactivations remain. Once
// reactivated, the slot is locked for twelve months, after which the
// allowance renews.
func (m MachineEntry) CanReactivate(now time.Time) bool {
	if m.ReactivationsLimit <= 0 {
		return false
	}
	if m.LastReactivationDate == nil {
		return m.ReactivationsUsed < m.ReactivationsLimit
	}
	return m.LastReactivationDate.AddDate(0, reactivationCooldownMonths, 0).Before(now)
}

// License is a purchased license as known to this machine.
type License struct {
	Tier         Tier      `json:"tier"`
	Key          string    `json:"key"`
	Email        string    `json:"email"`
	PurchaseDate time.Time `json:"purchase_date"`

	// Signature is carried for wire compatibility. It is never verified and
	// provides no tamper resistance.
	Signature string `json:"signature,omitempty"`

	MaxMachines       int            `json:"max_machines"`
	ActiveMachines    []MachineEntry `json:"active_machines"`
	ActivatedMachines int            `json:"activated_machines"`
	LastValidated     time.Time      `json:"last_validated"`
	CacheValidUntil   time.Time      `json:"cache_valid_until"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
}

// Snapshot is the license server's view of a license. It carries machine
// counts only, never other machines' metadata.
type Snapshot struct {
	Tier              Tier
	Email             string
	MaxMachines       int
	ActivatedMachines int
	ExpiresAt         *time.Time
	PurchasedAt       *time.Time
	Signature         string
}

// FromSnapshot builds a License for the current machine from a server
// snapshot. The roster holds a single entry for hardwareID activated at now.
func FromSnapshot(s Snapshot, key, hardwareID, machineName string, now time.Time) *License {
	purchased := now
	if s.PurchasedAt != nil {
		purchased = *s.PurchasedAt
	}
	l := &License{
		Tier:         s.Tier,
		Key:          key,
		Email:        s.Email,
		PurchaseDate: purchased,
		Signature:    s.Signature,
		ActiveMachines: []MachineEntry{{
			HardwareID:         hardwareID,
			MachineName:        machineName,
			ActivatedDate:      now,
			ReactivationsLimit: DefaultReactivationsLimit,
		}},
	}
	l.applySnapshot(s)
	l.MarkValidated(now)
	return l
}

// Refresh applies a fresh server snapshot and restarts the cache window.
// The local roster and purchase facts are kept.
func (l *License) Refresh(s Snapshot, now time.Time) {
	l.applySnapshot(s)
	if s.Signature != "" {
		l.Signature = s.Signature
	}
	l.MarkValidated(now)
}

func (l *License) applySnapshot(s Snapshot) {
	if s.Tier.Valid() {
		l.Tier = s.Tier
	}
	if s.Email != "" {
		l.Email = s.Email
	}
	l.MaxMachines = s.MaxMachines
	if l.MaxMachines == 0 {
		l.MaxMachines = l.Tier.DefaultMaxMachines()
	}
	l.ActivatedMachines = s.ActivatedMachines
	l.ExpiresAt = s.ExpiresAt
}

// MarkValidated records a successful validation at now.
func (l *License) MarkValidated(now time.Time) {
	l.LastValidated = now
	l.CacheValidUntil = now.Add(CacheWindow)
}

// IsCacheValid reports whether the license may be used without network
// access at now.
func (l *License) IsCacheValid(now time.Time) bool {
	return now.Before(l.CacheValidUntil)
}

// IsExpired reports whether a time-limited license has lapsed.
func (l *License) IsExpired(now time.Time) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return now.After(*l.ExpiresAt)
}

// Machine returns the roster entry for hardwareID.
func (l *License) Machine(hardwareID string) (MachineEntry, bool) {
	for _, m := range l.ActiveMachines {
		if m.HardwareID == hardwareID {
			return m, true
		}
	}
	return MachineEntry{}, false
}

// HasMachine reports whether hardwareID is in the roster.
func (l *License) HasMachine(hardwareID string) bool {
	_, ok := l.Machine(hardwareID)
	return ok
}

// Check enforces the license invariants.
func (l *License) Check() error {
	if err := ValidateKey(l.Key); err != nil {
		return fmt.Errorf("license key: %w", err)
	}
	if !l.Tier.Valid() {
		return fmt.Errorf("invalid tier %q", l.Tier)
	}
	if l.MaxMachines > 0 && len(l.ActiveMachines) > l.MaxMachines {
		return fmt.Errorf("%d active machines exceeds limit of %d", len(l.ActiveMachines), l.MaxMachines)
	}
	return nil
}
