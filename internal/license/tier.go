package license

import (
	"fmt"
	"strings"
)

// Tier is a purchasable license tier.
type Tier string

// License tiers.
const (
	TierSolo       Tier = "solo"
	TierMultiple   Tier = "multiple"
	TierEnterprise Tier = "enterprise"
)

// Key prefixes. Enterprise licenses are issued as TEAM- keys and their
// individual seats as SEAT- keys.
const (
	PrefixSolo     = "SOLO"
	PrefixMultiple = "MULTI"
	PrefixTeam     = "TEAM"
	PrefixSeat     = "SEAT"
)

// DefaultMaxMachines returns the machine cap fixed by the tier. Enterprise
// returns 0: its cap is the seat count reported by the license server.
func (t Tier) DefaultMaxMachines() int {
	switch t {
	case TierSolo:
		return 1
	case TierMultiple:
		return 3
	default:
		return 0
	}
}

// PriceLabel returns the display price of the tier.
func (t Tier) PriceLabel() string {
	switch t {
	case TierSolo:
		return "$29 one-time"
	case TierMultiple:
		return "$59 one-time"
	case TierEnterprise:
		return "Per seat"
	default:
		return ""
	}
}

// KeyPrefix returns the license key prefix issued for the tier.
func (t Tier) KeyPrefix() string {
	switch t {
	case TierSolo:
		return PrefixSolo
	case TierMultiple:
		return PrefixMultiple
	case TierEnterprise:
		return PrefixTeam
	default:
		return ""
	}
}

// DisplayName returns a capitalized tier name.
func (t Tier) DisplayName() string {
	switch t {
	case TierSolo:
		return "Solo"
	case TierMultiple:
		return "Multiple"
	case TierEnterprise:
		return "Enterprise"
	default:
		return string(t)
	}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierSolo, TierMultiple, TierEnterprise:
		return true
	}
	return false
}

// ParseTier maps the license server's tier names onto a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "solo":
		return TierSolo, nil
	case "multiple", "multi":
		return TierMultiple, nil
	case "enterprise", "team", "seat":
		return TierEnterprise, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// TierForPrefix returns the tier implied by a key prefix.
func TierForPrefix(prefix string) (Tier, bool) {
	switch prefix {
	case PrefixSolo:
		return TierSolo, true
	case PrefixMultiple:
		return TierMultiple, true
	case PrefixTeam, PrefixSeat:
		return TierEnterprise, true
	}
	return "", false
}
