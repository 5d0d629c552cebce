package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Policy controls the backoff schedule for a single Do invocation.
// A Policy is immutable for the duration of the call.
type Policy struct {
	// MaxRetries is the number of re-invocations after the first attempt.
	// Zero means the operation runs exactly once.
	MaxRetries int

	// InitialDelay is the base delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration

	// Multiplier is the geometric growth factor between retries (>1).
	Multiplier float64

	// JitterFraction perturbs each delay multiplicatively in
	// [1-j, 1+j]. Zero disables jitter. Valid range is [0, 1].
	JitterFraction float64
}

// DefaultPolicy returns the backoff policy used when none is configured:
// 3 retries, 1s initial delay doubling up to 60s, 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialDelay:   time.Second,
		MaxDelay:       60 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// Validate checks the policy fields against their allowed ranges.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.InitialDelay <= 0 {
		return fmt.Errorf("initial_delay must be > 0, got %s", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("max_delay %s must be >= initial_delay %s", p.MaxDelay, p.InitialDelay)
	}
	if p.Multiplier <= 1 {
		return fmt.Errorf("multiplier must be > 1, got %g", p.Multiplier)
	}
	if p.JitterFraction < 0 || p.JitterFraction > 1 {
		return fmt.Errorf("jitter_fraction must be in [0, 1], got %g", p.JitterFraction)
	}
	return nil
}

// Classification is the verdict a Classifier renders for a failed attempt.
type Classification struct {
	// Retryable reports whether the operation may be re-invoked.
	Retryable bool

	// SuggestedDelay is an explicit wait requested by the upstream
	// (for example a provider's Retry-After header). When set, the
	// executor waits max(computed backoff, SuggestedDelay).
	SuggestedDelay time.Duration
}

// Classifier decides whether an error is worth retrying.
type Classifier func(error) Classification

// ExhaustedError wraps the final error after all retries failed.
// It unwraps to the original error so type assertions via errors.As
// still reach the underlying failure.
type ExhaustedError struct {
	// Attempts is the total invocation count, including the first call.
	Attempts int

	// Err is the error returned by the last attempt.
	Err error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Attempts reports how many times the operation behind err was invoked.
// Returns 1 for errors that never went through the retry loop.
func Attempts(err error) int {
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		return ex.Attempts
	}
	return 1
}

// BaseDelay computes the pre-jitter backoff delay for retry n (1-based):
// min(MaxDelay, InitialDelay * Multiplier^(n-1)).
func BaseDelay(p Policy, retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(retry-1))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// jitter applies the multiplicative perturbation from the policy:
// delay * (1 - j + rand(0, 2j)).
func jitter(p Policy, d time.Duration) time.Duration {
	if p.JitterFraction <= 0 {
		return d
	}
	factor := 1 - p.JitterFraction + rand.Float64()*2*p.JitterFraction
	return time.Duration(float64(d) * factor)
}

// Do invokes op, retrying per the policy when classify deems the failure
// transient. The first invocation is attempt 0 and does not count against
// MaxRetries.
//
// Non-retryable errors and context errors propagate unchanged. After
// MaxRetries retryable failures the last error is returned wrapped in an
// *ExhaustedError.
func Do[T any](ctx context.Context, p Policy, classify Classifier, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Caller cancellation is distinct from an upstream failure.
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		verdict := Classification{}
		if classify != nil {
			verdict = classify(err)
		}
		if !verdict.Retryable {
			return zero, err
		}

		if attempt >= p.MaxRetries {
			return zero, &ExhaustedError{Attempts: attempt + 1, Err: lastErr}
		}

		delay := jitter(p, BaseDelay(p, attempt+1))
		if verdict.SuggestedDelay > delay {
			delay = verdict.SuggestedDelay
		}

		slog.Debug("retrying after transient failure",
			"attempt", attempt+1,
			"max_retries", p.MaxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
}
