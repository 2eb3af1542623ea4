package license

import (
	"errors"
	"regexp"
	"strings"
)

// ErrMalformedKey is returned for keys that do not match the license key format.
// Malformed keys are rejected before any I/O.
var ErrMalformedKey = errors.New("malformed license key")

var keyPattern = regexp.MustCompile(`^(SOLO|MULTI|TEAM|SEAT)-[A-Z0-9]{5}-[A-Z0-9]{5}-[A-Z0-9]{5}$`)

// NormalizeKey trims surrounding whitespace and upper-cases a user-entered key.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// ValidateKey checks key against PREFIX-XXXXX-XXXXX-XXXXX.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return ErrMalformedKey
	}
	return nil
}

// TierForKey returns the tier implied by the key prefix.
func TierForKey(key string) (Tier, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	prefix, _, _ := strings.Cut(key, "-")
	tier, ok := TierForPrefix(prefix)
	if !ok {
		return "", ErrMalformedKey
	}
	return tier, nil
}

// MaskKey hides the middle groups of a key for logging.
func MaskKey(key string) string {
	if len(key) <= 10 {
		return "****"
	}
	return key[:5] + "****" + key[len(key)-5:]
}
