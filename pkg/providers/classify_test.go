package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sableworks/bulwark/pkg/retry"
)

// ============================================================================
// Classification Tests
// ============================================================================

func TestClassifyRetryVerdicts(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		suggested time.Duration
	}{
		{
			name:      "nil error",
			err:       nil,
			retryable: false,
		},
		{
			name:      "transient error is retryable",
			err:       &TransientError{Provider: "openai", StatusCode: 503, Message: "overloaded"},
			retryable: true,
		},
		{
			name:      "connection-level transient is retryable",
			err:       &TransientError{Provider: "openai", Message: "connection reset"},
			retryable: true,
		},
		{
			name:      "rate limited carries suggested delay",
			err:       &RateLimitedError{Provider: "openai", RetryAfter: 7 * time.Second},
			retryable: true,
			suggested: 7 * time.Second,
		},
		{
			name:      "rate limited without retry-after",
			err:       &RateLimitedError{Provider: "anthropic"},
			retryable: true,
		},
		{
			name:      "auth error is not retryable",
			err:       &FatalError{Provider: "openai", Kind: FatalKindAuth, StatusCode: 401},
			retryable: false,
		},
		{
			name:      "not found is not retryable",
			err:       &FatalError{Provider: "openai", Kind: FatalKindNotFound, StatusCode: 404},
			retryable: false,
		},
		{
			name:      "bad request is not retryable",
			err:       &FatalError{Provider: "openai", Kind: FatalKindBadRequest, StatusCode: 400},
			retryable: false,
		},
		{
			name:      "validation error is not retryable",
			err:       &ValidationError{Field: "messages", Message: "must not be empty"},
			retryable: false,
		},
		{
			name:      "context canceled is not retryable",
			err:       context.Canceled,
			retryable: false,
		},
		{
			name:      "deadline exceeded is not retryable",
			err:       context.DeadlineExceeded,
			retryable: false,
		},
		{
			name:      "unknown error is not retryable",
			err:       errors.New("something odd"),
			retryable: false,
		},
		{
			name:      "wrapped transient error is still retryable",
			err:       fmt.Errorf("invoke: %w", &TransientError{Provider: "openai", Message: "timeout"}),
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err)
			if c.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", c.Retryable, tt.retryable)
			}
			if c.SuggestedDelay != tt.suggested {
				t.Errorf("SuggestedDelay = %v, want %v", c.SuggestedDelay, tt.suggested)
			}
		})
	}
}

// ============================================================================
// Error Kind Tests
// ============================================================================

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", &ValidationError{Field: "model"}, "validation"},
		{"transient", &TransientError{Provider: "openai"}, "transient"},
		{"rate limited", &RateLimitedError{Provider: "openai"}, "rate_limited"},
		{"fatal auth", &FatalError{Kind: FatalKindAuth}, "fatal_auth"},
		{"fatal not found", &FatalError{Kind: FatalKindNotFound}, "fatal_not_found"},
		{"deadline", context.DeadlineExceeded, "deadline"},
		{"canceled", context.Canceled, "canceled"},
		{"unknown", errors.New("boom"), "unknown"},
		{
			// Exhaustion unwraps to the original error, so the exhausted
			// check must win over the wrapped error's own kind.
			"exhausted wins over wrapped transient",
			&retry.ExhaustedError{Attempts: 4, Err: &TransientError{Provider: "openai"}},
			"retry_exhausted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ============================================================================
// Provider Detection Tests
// ============================================================================

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4", "openai"},
		{"gpt-3.5-turbo", "openai"},
		{"GPT-4o", "openai"},
		{"o1-preview", "openai"},
		{"o3-mini", "openai"},
		{"text-davinci-003", "openai"},
		{"claude-3-opus", "anthropic"},
		{"Claude-3-Haiku", "anthropic"},
		{"mistralai/Mistral-7B-Instruct", "huggingface"},
		{"llama-70b", "fallback"},
		{"", "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := DetectProvider(tt.model, "fallback"); got != tt.want {
				t.Errorf("DetectProvider(%q) = %q, want %q", tt.model, got, tt.want)
			}
		})
	}
}

// ============================================================================
// Error Message Tests
// ============================================================================

func TestErrorMessages(t *testing.T) {
	t.Run("transient with status", func(t *testing.T) {
		err := &TransientError{Provider: "openai", StatusCode: 502, Message: "bad gateway"}
		want := `provider "openai" transient error (status 502): bad gateway`
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("transient unwraps to cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := &TransientError{Provider: "openai", Message: "request failed", Cause: cause}
		if !errors.Is(err, cause) {
			t.Error("expected errors.Is to find the cause")
		}
	})

	t.Run("rate limited includes retry-after", func(t *testing.T) {
		err := &RateLimitedError{Provider: "openai", RetryAfter: 3 * time.Second, Message: "slow down"}
		want := `provider "openai" rate limited (retry after 3s): slow down`
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})
}
