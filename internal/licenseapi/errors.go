package licenseapi

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed license API call. The orchestrator branches on
// the kind, never on HTTP status or message text.
type Kind int

// Error kinds.
const (
	KindInvalidKey Kind = iota + 1
	KindLicenseNotFound
	KindMachineAlreadyActivated
	KindMachineLimitReached
	KindLicenseRevoked
	KindServerError
	KindNetworkError
	KindDecodingError
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindInvalidKey:
		return "invalid key"
	case KindLicenseNotFound:
		return "license not found"
	case KindMachineAlreadyActivated:
		return "machine already activated"
	case KindMachineLimitReached:
		return "machine limit reached"
	case KindLicenseRevoked:
		return "license revoked"
	case KindServerError:
		return "server error"
	case KindNetworkError:
		return "network error"
	case KindDecodingError:
		return "decoding error"
	case KindRateLimited:
		return "rate limited"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// APIError is the error returned by every Client operation that reached
// the point of doing I/O.
type APIError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Sentinels for errors.Is. Matching compares Kind only.
var (
	ErrInvalidKey              = &APIError{Kind: KindInvalidKey}
	ErrLicenseNotFound         = &APIError{Kind: KindLicenseNotFound}
	ErrMachineAlreadyActivated = &APIError{Kind: KindMachineAlreadyActivated}
	ErrMachineLimitReached     = &APIError{Kind: KindMachineLimitReached}
	ErrLicenseRevoked          = &APIError{Kind: KindLicenseRevoked}
	ErrServer                  = &APIError{Kind: KindServerError}
	ErrNetwork                 = &APIError{Kind: KindNetworkError}
	ErrDecoding                = &APIError{Kind: KindDecodingError}
	ErrRateLimited             = &APIError{Kind: KindRateLimited}
)

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

// Is reports whether target is an *APIError of the same kind.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *APIError in err's chain, or 0.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// errorForCode maps a server errorCode to an APIError.
func errorForCode(code, message string) *APIError {
	kind := KindServerError
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "INVALID_KEY":
		kind = KindInvalidKey
	case "LICENSE_NOT_FOUND", "NOT_FOUND":
		kind = KindLicenseNotFound
	case "ALREADY_ACTIVATED":
		kind = KindMachineAlreadyActivated
	case "LIMIT_REACHED":
		kind = KindMachineLimitReached
	case "REVOKED":
		kind = KindLicenseRevoked
	}
	return &APIError{Kind: kind, Code: code, Message: message}
}
