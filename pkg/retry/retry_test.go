package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("upstream hiccup")
var errFatal = errors.New("bad credentials")

func classifyTest(err error) Classification {
	if errors.Is(err, errTransient) {
		return Classification{Retryable: true}
	}
	return Classification{Retryable: false}
}

func fastPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastPolicy(), classifyTest, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected ok, got %q", result)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_FailTwiceThenSucceed(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastPolicy(), classifyTest, func(context.Context) (int, error) {
		calls++
		if calls <= 2 {
			return 0, errTransient
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %d", result)
	}
	if calls != 3 {
		t.Errorf("expected 3 invocations, got %d", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(), classifyTest, func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	})
	if err == nil {
		t.Fatal("expected error")
	}

	// maxRetries+1 total invocations
	if calls != 4 {
		t.Errorf("expected 4 invocations, got %d", calls)
	}

	// Original error type preserved through the wrapper
	if !errors.Is(err, errTransient) {
		t.Errorf("expected errors.Is to find original error, got %v", err)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected *ExhaustedError, got %T", err)
	}
	if ex.Attempts != 4 {
		t.Errorf("expected 4 attempts recorded, got %d", ex.Attempts)
	}
	if Attempts(err) != 4 {
		t.Errorf("Attempts() = %d, want 4", Attempts(err))
	}
}

func TestDo_NonRetryablePropagatesUnchanged(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(), classifyTest, func(context.Context) (int, error) {
		calls++
		return 0, errFatal
	})
	if calls != 1 {
		t.Errorf("expected 1 invocation, got %d", calls)
	}
	if !errors.Is(err, errFatal) {
		t.Errorf("expected original error, got %v", err)
	}
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		t.Error("non-retryable error must not be wrapped")
	}
}

func TestDo_ContextCancellationAbortsBackoff(t *testing.T) {
	p := fastPolicy()
	p.InitialDelay = time.Second
	p.MaxDelay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Do(ctx, p, classifyTest, func(context.Context) (int, error) {
		return 0, errTransient
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("backoff did not honor cancellation, slept %v", elapsed)
	}
}

func TestDo_SuggestedDelayWins(t *testing.T) {
	classify := func(error) Classification {
		return Classification{Retryable: true, SuggestedDelay: 30 * time.Millisecond}
	}

	p := fastPolicy()
	p.MaxRetries = 1

	calls := 0
	start := time.Now()
	_, _ = Do(context.Background(), p, classify, func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	})
	elapsed := time.Since(start)

	if calls != 2 {
		t.Fatalf("expected 2 invocations, got %d", calls)
	}
	// Backoff base is 1ms but the suggestion is 30ms; the larger wins.
	if elapsed < 30*time.Millisecond {
		t.Errorf("expected suggested delay to be honored, elapsed %v", elapsed)
	}
}

func TestBaseDelay_MonotonicCapped(t *testing.T) {
	p := Policy{
		MaxRetries:   10,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for i, expected := range want {
		got := BaseDelay(p, i+1)
		if got != expected {
			t.Errorf("retry %d: BaseDelay = %v, want %v", i+1, got, expected)
		}
	}
}

func TestJitter_StaysWithinFraction(t *testing.T) {
	p := Policy{JitterFraction: 0.25}
	base := 100 * time.Millisecond

	for i := 0; i < 1000; i++ {
		d := jitter(p, base)
		if d < 75*time.Millisecond || d > 125*time.Millisecond {
			t.Fatalf("jittered delay %v outside [75ms, 125ms]", d)
		}
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Policy)
		wantErr bool
	}{
		{"valid", func(*Policy) {}, false},
		{"negative retries", func(p *Policy) { p.MaxRetries = -1 }, true},
		{"zero initial delay", func(p *Policy) { p.InitialDelay = 0 }, true},
		{"max below initial", func(p *Policy) { p.MaxDelay = p.InitialDelay / 2 }, true},
		{"multiplier one", func(p *Policy) { p.Multiplier = 1.0 }, true},
		{"jitter above one", func(p *Policy) { p.JitterFraction = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
