package ratelimit

import (
	"context"
)

// ConcurrentLimiter bounds the number of requests in flight at once.
// It complements the token buckets: rate limits shape admission over
// time, the concurrent limiter caps instantaneous parallelism.
type ConcurrentLimiter struct {
	slots chan struct{}
}

// NewConcurrentLimiter creates a limiter allowing up to max simultaneous
// holders. A max of zero or less means unlimited.
func NewConcurrentLimiter(max int) *ConcurrentLimiter {
	if max <= 0 {
		return &ConcurrentLimiter{}
	}
	return &ConcurrentLimiter{slots: make(chan struct{}, max)}
}

// Acquire blocks until a slot is free or the context is done. A
// successful acquire must be paired with Release.
func (cl *ConcurrentLimiter) Acquire(ctx context.Context) error {
	if cl.slots == nil {
		return nil
	}
	select {
	case cl.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot without blocking, reporting whether one was
// free.
func (cl *ConcurrentLimiter) TryAcquire() bool {
	if cl.slots == nil {
		return true
	}
	select {
	case cl.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (cl *ConcurrentLimiter) Release() {
	if cl.slots == nil {
		return
	}
	select {
	case <-cl.slots:
	default:
	}
}

// InFlight returns the number of slots currently held.
func (cl *ConcurrentLimiter) InFlight() int {
	if cl.slots == nil {
		return 0
	}
	return len(cl.slots)
}

// Limit returns the configured maximum, zero meaning unlimited.
func (cl *ConcurrentLimiter) Limit() int {
	if cl.slots == nil {
		return 0
	}
	return cap(cl.slots)
}
