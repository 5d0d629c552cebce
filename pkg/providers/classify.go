package providers

import (
	"context"
	"errors"
	"net"

	"github.com/sableworks/bulwark/pkg/retry"
)

// Classify maps an invoker error onto a retry verdict.
//
// The contract is fixed here rather than at each call site: transient
// network errors, connection timeouts, and 5xx-equivalent responses are
// retryable; authentication, malformed-request, and not-found errors are
// not; explicit provider rate-limit signals are retryable with the
// provider's Retry-After honored as the suggested delay.
func Classify(err error) retry.Classification {
	if err == nil {
		return retry.Classification{}
	}

	var rateLimited *RateLimitedError
	if errors.As(err, &rateLimited) {
		return retry.Classification{Retryable: true, SuggestedDelay: rateLimited.RetryAfter}
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return retry.Classification{Retryable: true}
	}

	var fatal *FatalError
	if errors.As(err, &fatal) {
		return retry.Classification{}
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return retry.Classification{}
	}

	// Caller cancellation is not the provider's fault; re-invoking would
	// fail the same way.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Classification{}
	}

	// Raw net errors can surface when an Invoker bypasses the taxonomy.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return retry.Classification{Retryable: true}
	}

	return retry.Classification{}
}

// ErrorKind returns the stable metrics label for an error. The returned
// values form a closed set so metric cardinality stays bounded.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return "retry_exhausted"
	}

	var validation *ValidationError
	if errors.As(err, &validation) {
		return "validation"
	}
	var rateLimited *RateLimitedError
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return "fatal_" + fatal.Kind
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return "transient"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "deadline"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	return "unknown"
}
