package ratelimit

import (
	"sync"
	"time"
)

// bucket is a single token bucket with continuous refill.
//
// Tokens are tracked as float64 so fractional capacity accrues between
// observations. The refill is lazy: every operation first folds the
// elapsed time since the last observation into the token count.
//
// This implementation uses monotonic time to avoid clock skew issues.
type bucket struct {
	rate     float64 // tokens added per second
	burst    float64 // maximum tokens in the bucket
	tokens   float64 // current available tokens
	lastSeen time.Time
	mu       sync.Mutex
}

// newBucket creates a full bucket with the given sustained rate and
// burst capacity.
func newBucket(rate, burst float64) *bucket {
	return &bucket{
		rate:     rate,
		burst:    burst,
		tokens:   burst,
		lastSeen: time.Now(),
	}
}

// refillLocked folds elapsed time into the token count. Caller must
// hold mu.
func (b *bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastSeen).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastSeen = now
}

// take attempts to consume cost tokens. On success it returns (0, true).
// On failure it returns the wait until cost tokens will be available
// and false; no tokens are consumed.
func (b *bucket) take(cost float64) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())

	if b.tokens >= cost {
		b.tokens -= cost
		return 0, true
	}

	deficit := cost - b.tokens
	return time.Duration(deficit / b.rate * float64(time.Second)), false
}

// deficit reports how many tokens short of cost the bucket currently is.
// Zero means cost is immediately available.
func (b *bucket) deficit(cost float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())

	if b.tokens >= cost {
		return 0
	}
	return cost - b.tokens
}

// available returns the current token count after refill.
func (b *bucket) available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())
	return b.tokens
}

// reset refills the bucket to capacity.
func (b *bucket) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = b.burst
	b.lastSeen = time.Now()
}
