package license

import (
	"math"
	"time"
)

// DefaultTrialDays is the length of the trial granted on first launch.
const DefaultTrialDays = 3

// TrialInfo records the one trial a machine is entitled to.
type TrialInfo struct {
	StartDate    time.Time `json:"start_date"`
	DurationDays int       `json:"duration_days"`
}

// NewTrial starts a default-length trial at now.
func NewTrial(now time.Time) *TrialInfo {
	return &TrialInfo{StartDate: now, DurationDays: DefaultTrialDays}
}

// ExpirationDate returns when the trial ends.
func (t *TrialInfo) ExpirationDate() time.Time {
	return t.StartDate.AddDate(0, 0, t.DurationDays)
}

// IsExpired reports whether now is past the expiration date.
func (t *TrialInfo) IsExpired(now time.Time) bool {
	return now.After(t.ExpirationDate())
}

// DaysRemaining counts whole days left, with the current partial day
// counted: 72h left is 3, 71h is 3, 47h is 2. The expiration instant itself
// still belongs to the trial and counts as 1.
func (t *TrialInfo) DaysRemaining(now time.Time) int {
	left := t.ExpirationDate().Sub(now)
	switch {
	case left < 0:
		return 0
	case left == 0:
		return 1
	}
	return int(math.Ceil(left.Hours() / 24))
}

// HoursRemaining is the raw number of whole hours until expiration.
// It is negative once the trial has expired.
func (t *TrialInfo) HoursRemaining(now time.Time) int {
	return int(t.ExpirationDate().Sub(now).Hours())
}

// ConsumedTrial returns a trial record that has already run out at now.
// It is stored whenever the trial must stay used up across restarts.
func ConsumedTrial(now time.Time) *TrialInfo {
	return &TrialInfo{
		StartDate:    now.AddDate(0, 0, -DefaultTrialDays).Add(-time.Second),
		DurationDays: DefaultTrialDays,
	}
}
