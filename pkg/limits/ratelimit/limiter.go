package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// Wildcard matches any model for a provider when used as Key.Model.
const Wildcard = "*"

// Key identifies the limit that governs a request.
type Key struct {
	// Provider is the provider name (e.g., "openai")
	Provider string

	// Model is the model identifier, or Wildcard for a provider-wide
	// default
	Model string
}

func (k Key) String() string {
	return k.Provider + "/" + k.Model
}

// TimeoutError reports that an acquisition could not complete before the
// caller's deadline.
type TimeoutError struct {
	// Key is the limit that could not be satisfied
	Key Key

	// Deficit is how many tokens short the bucket was at failure time
	Deficit float64

	// RetryAfter estimates how long until the cost would be available
	RetryAfter time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rate limit wait for %s exceeded deadline (deficit %.2f tokens, retry after %s)",
		e.Key, e.Deficit, e.RetryAfter.Round(time.Millisecond))
}

// Status is a point-in-time view of one configured limit.
type Status struct {
	// Key identifies the limit
	Key Key `json:"key"`

	// Rate is the sustained refill rate in tokens per second
	Rate float64 `json:"rate"`

	// Burst is the bucket capacity
	Burst float64 `json:"burst"`

	// Available is the current token count
	Available float64 `json:"available"`
}

// RateLimiter is a keyed token bucket limiter.
//
// Resolution order for a request keyed (provider, model):
//
//  1. An exact (provider, model) limit
//  2. The provider's (provider, "*") wildcard limit
//  3. No limit; the request is admitted immediately
//
// The zero value is not usable; construct with NewRateLimiter.
type RateLimiter struct {
	mu      sync.RWMutex
	buckets map[Key]*bucket
	limits  map[Key]limitSpec
}

type limitSpec struct {
	rate  float64
	burst float64
}

// NewRateLimiter creates an empty limiter. Until Configure is called,
// every acquisition succeeds immediately.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[Key]*bucket),
		limits:  make(map[Key]limitSpec),
	}
}

// Configure installs or replaces the limit for key. Rate is sustained
// tokens per second; burst is the bucket capacity. Replacing a limit
// resets its bucket to full.
func (rl *RateLimiter) Configure(key Key, rate, burst float64) error {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("rate for %s must be a positive finite number, got %v", key, rate)
	}
	if burst < 1 || math.IsNaN(burst) || math.IsInf(burst, 0) {
		return fmt.Errorf("burst for %s must be at least 1, got %v", key, burst)
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.limits[key] = limitSpec{rate: rate, burst: burst}
	rl.buckets[key] = newBucket(rate, burst)
	return nil
}

// Remove deletes the limit for key. Requests under that key become
// unlimited unless a wildcard limit still covers them.
func (rl *RateLimiter) Remove(key Key) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.limits, key)
	delete(rl.buckets, key)
}

// resolve finds the bucket governing key, trying the exact key first and
// the provider wildcard second. Returns nil when the key is unlimited.
func (rl *RateLimiter) resolve(key Key) *bucket {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if b, ok := rl.buckets[key]; ok {
		return b
	}
	if b, ok := rl.buckets[Key{Provider: key.Provider, Model: Wildcard}]; ok {
		return b
	}
	return nil
}

// TryAcquire consumes cost tokens without blocking. It reports whether
// the tokens were consumed.
func (rl *RateLimiter) TryAcquire(key Key, cost float64) bool {
	b := rl.resolve(key)
	if b == nil {
		return true
	}
	_, ok := b.take(cost)
	return ok
}

// Acquire blocks until cost tokens are available under key or the
// context is done. A cost above the bucket's burst capacity is rejected
// immediately; waiting could never satisfy it.
//
// When the context carries a deadline and the refill rate cannot deliver
// the cost in time, Acquire returns a TimeoutError immediately rather
// than waiting out the doomed deadline. Context cancellation mid-wait
// returns ctx.Err().
func (rl *RateLimiter) Acquire(ctx context.Context, key Key, cost float64) error {
	b := rl.resolve(key)
	if b == nil {
		return nil
	}

	// Tokens cap at burst, so a cost above capacity can never be
	// satisfied no matter how long the caller waits.
	if cost > b.burst {
		return fmt.Errorf("cost %v exceeds burst capacity %v for %s", cost, b.burst, key)
	}

	for {
		wait, ok := b.take(cost)
		if ok {
			return nil
		}

		if deadline, has := ctx.Deadline(); has {
			if time.Until(deadline) < wait {
				return &TimeoutError{
					Key:        key,
					Deficit:    b.deficit(cost),
					RetryAfter: wait,
				}
			}
		}

		// Sleep outside any lock, then re-race for the tokens. Another
		// waiter may win them, in which case the loop waits again.
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Snapshot returns the current status of every configured limit, in no
// particular order.
func (rl *RateLimiter) Snapshot() []Status {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	out := make([]Status, 0, len(rl.limits))
	for key, spec := range rl.limits {
		out = append(out, Status{
			Key:       key,
			Rate:      spec.rate,
			Burst:     spec.burst,
			Available: rl.buckets[key].available(),
		})
	}
	return out
}

// Shortfall reports how many tokens short of cost the limit governing
// key currently is, and how long the refill rate needs to cover the
// gap. Both are zero when the key is unlimited or the cost is already
// available.
func (rl *RateLimiter) Shortfall(key Key, cost float64) (float64, time.Duration) {
	b := rl.resolve(key)
	if b == nil {
		return 0, 0
	}
	deficit := b.deficit(cost)
	if deficit <= 0 {
		return 0, 0
	}
	return deficit, time.Duration(deficit / b.rate * float64(time.Second))
}

// Reset refills every bucket to capacity. This is primarily for testing
// and manual limit resets.
func (rl *RateLimiter) Reset() {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	for _, b := range rl.buckets {
		b.reset()
	}
}
