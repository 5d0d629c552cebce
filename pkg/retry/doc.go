// Package retry provides bounded exponential backoff for fallible operations.
//
// The executor wraps an arbitrary operation and re-invokes it after
// transient failures, with delays that grow geometrically up to a cap and
// are perturbed by multiplicative jitter to avoid synchronized retry storms.
// Whether a failure is transient, and whether the upstream supplied an
// explicit retry-after hint, is decided by a caller-supplied Classifier.
//
// # Usage
//
//	resp, err := retry.Do(ctx, retry.DefaultPolicy(), providers.Classify,
//	    func(ctx context.Context) (*providers.Response, error) {
//	        return invoker.Invoke(ctx, req)
//	    })
//
// Attempt 0 is the first invocation; a policy with MaxRetries=3 invokes the
// operation at most four times. Non-retryable errors propagate unchanged on
// first occurrence. When retries are exhausted the last error is wrapped in
// an *ExhaustedError that records the attempt count and unwraps to the
// original error, so errors.As and errors.Is continue to see it.
//
// The backoff sleep honors context cancellation and never holds any lock,
// so callers can bound worst-case latency with a deadline.
package retry
