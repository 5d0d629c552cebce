package providers

import (
	"fmt"
	"time"
)

// ValidationError reports an invalid request shape detected before any
// provider contact. It is never retried.
type ValidationError struct {
	// Field is the name of the invalid field
	Field string

	// Message describes what is invalid about the field
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %q: %s", e.Field, e.Message)
}

// TransientError represents a failure that is expected to clear on its
// own: network errors, connection timeouts, and 5xx-equivalent responses.
type TransientError struct {
	// Provider is the provider where the failure occurred
	Provider string

	// StatusCode is the HTTP status code (0 for connection-level failures)
	StatusCode int

	// Message is the error message (already secret-free)
	Message string

	// Cause is the underlying error, if any
	Cause error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q transient error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q transient error: %s", e.Provider, e.Message)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// FatalError represents a failure that retrying cannot fix:
// authentication rejections, unknown models, malformed requests.
type FatalError struct {
	// Provider is the provider that rejected the request
	Provider string

	// Kind is one of "auth", "not_found", "bad_request"
	Kind string

	// StatusCode is the HTTP status code, if applicable
	StatusCode int

	// Message is the error message from the provider
	Message string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("provider %q %s error: %s", e.Provider, e.Kind, e.Message)
}

// RateLimitedError is an explicit rate-limit signal from the provider
// (HTTP 429). It is retryable; RetryAfter, when set, overrides the
// computed backoff delay.
type RateLimitedError struct {
	// Provider is the provider that rate limited the request
	Provider string

	// RetryAfter is the provider-suggested wait, zero if not given
	RetryAfter time.Duration

	// Message is the error message from the provider
	Message string
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %q rate limited (retry after %s): %s", e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("provider %q rate limited: %s", e.Provider, e.Message)
}

// FatalError kinds.
const (
	FatalKindAuth       = "auth"
	FatalKindNotFound   = "not_found"
	FatalKindBadRequest = "bad_request"
)
