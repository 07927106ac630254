package anthropic

import "fmt"

// FaultKind classifies a vendor-reported failure on the initial call.
type FaultKind int

const (
	// FaultConnection is a transport-level failure reaching the API.
	FaultConnection FaultKind = iota

	// FaultStatus is a non-2xx API response other than rate limiting.
	FaultStatus

	// FaultRateLimit is an HTTP 429 from the API.
	FaultRateLimit
)

func (k FaultKind) String() string {
	switch k {
	case FaultConnection:
		return "connection"
	case FaultStatus:
		return "status"
	case FaultRateLimit:
		return "rate_limit"
	default:
		return "unknown"
	}
}

// VendorError is a failure reported by the Messages API or its
// transport. The pipeline collapses these into a plain "Error: ..."
// text result; every other error propagates to the caller unchanged.
type VendorError struct {
	Kind    FaultKind
	Status  int
	Type    string
	Message string
	cause   error
}

func (e *VendorError) Error() string {
	switch {
	case e.Kind == FaultConnection:
		return fmt.Sprintf("anthropic connection error: %s", e.Message)
	case e.Type != "":
		return fmt.Sprintf("anthropic api error (%s): %s", e.Type, e.Message)
	default:
		return fmt.Sprintf("anthropic api error (status %d): %s", e.Status, e.Message)
	}
}

func (e *VendorError) Unwrap() error {
	return e.cause
}
