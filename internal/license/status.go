package license

import "fmt"

// State identifies the variant of a Status.
type State int

// Status variants.
const (
	StateTrial State = iota + 1
	StateLicensed
	StateExpired
	StateInvalid
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateTrial:
		return "trial"
	case StateLicensed:
		return "licensed"
	case StateExpired:
		return "expired"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Reasons reported with Invalid.
const (
	ReasonNotActivatedHere   = "not activated on this machine"
	ReasonValidationRequired = "validation required, connect to internet"
	ReasonStorageUnavailable = "secure storage unavailable"
)

// Status is the externally observed license state. Exactly one of the
// variant fields is meaningful, selected by State. Construct it with Trial,
// Licensed, Expired or Invalid.
type Status struct {
	State         State
	DaysRemaining int
	Tier          Tier
	Reason        string
}

// Trial is the status of a running trial.
func Trial(daysRemaining int) Status {
	return Status{State: StateTrial, DaysRemaining: daysRemaining}
}

// Licensed is the status of an activated license.
func Licensed(tier Tier) Status {
	return Status{State: StateLicensed, Tier: tier}
}

// Expired is the status once the trial is consumed and no license is present.
func Expired() Status {
	return Status{State: StateExpired}
}

// Invalid blocks usage for the given reason.
func Invalid(reason string) Status {
	return Status{State: StateInvalid, Reason: reason}
}

// IsValid reports whether the application may be used.
func (s Status) IsValid() bool {
	return s.State == StateTrial || s.State == StateLicensed
}

func (s Status) String() string {
	switch s.State {
	case StateTrial:
		return fmt.Sprintf("trial(%d)", s.DaysRemaining)
	case StateLicensed:
		return fmt.Sprintf("licensed(%s)", s.Tier)
	case StateInvalid:
		return fmt.Sprintf("invalid(%s)", s.Reason)
	default:
		return s.State.String()
	}
}
