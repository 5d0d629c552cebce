// Package ratelimit provides client-side admission control for outbound
// provider requests.
//
// # Overview
//
// The package implements a keyed token bucket limiter. Each (provider,
// model) pair can carry its own sustained rate and burst capacity, with a
// "*" model wildcard providing a per-provider default. Keys with no
// configured limit are unlimited.
//
// # Token Bucket Algorithm
//
// Buckets refill continuously: available tokens are recomputed from the
// elapsed time on every observation rather than on a timer, so fractional
// capacity accrues between requests:
//
//	tokens = min(burst, tokens + elapsed * rate)
//
// A bucket starts full, allowing an initial burst up to its capacity.
//
// # Blocking Acquisition
//
// Acquire blocks until the requested cost is available or the context is
// done. When the bucket's refill rate cannot satisfy the cost before the
// context deadline, Acquire fails fast with a TimeoutError instead of
// sleeping pointlessly:
//
//	limiter := ratelimit.NewRateLimiter()
//	limiter.Configure(ratelimit.Key{Provider: "openai", Model: "*"}, 10, 20)
//
//	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
//	defer cancel()
//	if err := limiter.Acquire(ctx, key, 1); err != nil {
//	    var timeout *ratelimit.TimeoutError
//	    if errors.As(err, &timeout) {
//	        // Deficit and RetryAfter describe how far over budget we are.
//	    }
//	}
//
// # Thread Safety
//
// All operations are safe for concurrent use. No lock is held while a
// caller waits for refill, so blocked acquisitions do not serialize the
// limiter.
package ratelimit
