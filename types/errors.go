package types

import "errors"

// GatewayError is the typed error returned across package boundaries.
type GatewayError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *GatewayError) Error() string {
	return e.Message
}

// Common error codes
const (
	// ErrUnsupportedCurrency is a bad-input failure, never retried.
	ErrUnsupportedCurrency = "UNSUPPORTED_CURRENCY"

	// ErrRateUnavailable means no USD rate could be produced. The rate
	// cache degrades to a rate of 1 instead of surfacing this, so callers
	// rarely see it.
	ErrRateUnavailable = "RATE_UNAVAILABLE"

	// ErrAdapterUnavailable is a transient chain-fetch failure. The
	// monitor logs it and retries implicitly on the next poll tick; it is
	// never escalated to the payment.
	ErrAdapterUnavailable = "ADAPTER_UNAVAILABLE"

	// ErrDeliveryFailed means webhook delivery exhausted its retries.
	// Payment state is unaffected.
	ErrDeliveryFailed = "DELIVERY_FAILED"

	// ErrInvariantViolation signals a programming error, e.g. a state
	// transition attempted on a terminal payment through a path that
	// bypassed the idempotency check.
	ErrInvariantViolation = "INVARIANT_VIOLATION"

	ErrInvalidRequest = "INVALID_REQUEST"
	ErrNotFound       = "NOT_FOUND"
)

// CodeOf extracts the gateway error code from err, or "" when err is not a
// GatewayError.
func CodeOf(err error) string {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}
