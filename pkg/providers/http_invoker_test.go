package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestInvoker(t *testing.T, handler http.HandlerFunc) *HTTPInvoker {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	inv := NewHTTPInvoker(InvokerConfig{
		Name:    "testprov",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
	t.Cleanup(func() { inv.Close() })
	return inv
}

func chatRequest() *ChatRequest {
	return &ChatRequest{
		Model: "gpt-4",
		Messages: []Message{
			{Role: RoleUser, Content: "hello"},
		},
	}
}

// ============================================================================
// Invoke Tests
// ============================================================================

func TestInvokeSuccess(t *testing.T) {
	var gotAuth string
	inv := newTestInvoker(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}

		var wire wireRequest
		if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if wire.Stream {
			t.Error("non-streaming invoke set stream=true")
		}

		json.NewEncoder(w).Encode(wireResponse{
			ID:      "resp-1",
			Model:   "gpt-4",
			Created: 1700000000,
			Choices: []wireChoice{{
				Message:      Message{Role: RoleAssistant, Content: "hi there"},
				FinishReason: "stop",
			}},
			Usage: &TokenUsage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8},
		})
	})

	resp, err := inv.Invoke(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want bearer key", gotAuth)
	}
	if resp.ID != "resp-1" || resp.Content != "hi there" || resp.FinishReason != "stop" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Provider != "testprov" {
		t.Errorf("Provider = %q, want %q", resp.Provider, "testprov")
	}
	if resp.Usage.TotalTokens != 8 {
		t.Errorf("TotalTokens = %d, want 8", resp.Usage.TotalTokens)
	}
}

func TestInvokeStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		headers    map[string]string
		check      func(t *testing.T, err error)
	}{
		{
			name:   "401 maps to auth fatal",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var fatal *FatalError
				if !errors.As(err, &fatal) || fatal.Kind != FatalKindAuth {
					t.Fatalf("want auth FatalError, got %v", err)
				}
				// The body may carry the key back; the mapped error must not.
				if strings.Contains(err.Error(), "test-key") {
					t.Error("auth error leaked credential material")
				}
			},
		},
		{
			name:   "403 maps to auth fatal",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				var fatal *FatalError
				if !errors.As(err, &fatal) || fatal.Kind != FatalKindAuth {
					t.Fatalf("want auth FatalError, got %v", err)
				}
			},
		},
		{
			name:   "404 maps to not found fatal",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				var fatal *FatalError
				if !errors.As(err, &fatal) || fatal.Kind != FatalKindNotFound {
					t.Fatalf("want not_found FatalError, got %v", err)
				}
			},
		},
		{
			name:    "429 maps to rate limited with retry-after",
			status:  http.StatusTooManyRequests,
			headers: map[string]string{"Retry-After": "12"},
			check: func(t *testing.T, err error) {
				var rl *RateLimitedError
				if !errors.As(err, &rl) {
					t.Fatalf("want RateLimitedError, got %v", err)
				}
				if rl.RetryAfter != 12*time.Second {
					t.Errorf("RetryAfter = %v, want 12s", rl.RetryAfter)
				}
			},
		},
		{
			name:   "422 maps to bad request fatal",
			status: http.StatusUnprocessableEntity,
			check: func(t *testing.T, err error) {
				var fatal *FatalError
				if !errors.As(err, &fatal) || fatal.Kind != FatalKindBadRequest {
					t.Fatalf("want bad_request FatalError, got %v", err)
				}
			},
		},
		{
			name:   "500 maps to transient",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var transient *TransientError
				if !errors.As(err, &transient) {
					t.Fatalf("want TransientError, got %v", err)
				}
				if transient.StatusCode != 500 {
					t.Errorf("StatusCode = %d, want 500", transient.StatusCode)
				}
			},
		},
		{
			name:   "503 maps to transient",
			status: http.StatusServiceUnavailable,
			check: func(t *testing.T, err error) {
				var transient *TransientError
				if !errors.As(err, &transient) {
					t.Fatalf("want TransientError, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newTestInvoker(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, "upstream message")
			})

			_, err := inv.Invoke(context.Background(), chatRequest())
			if err == nil {
				t.Fatal("expected an error")
			}
			tt.check(t, err)
		})
	}
}

func TestInvokeConnectionFailure(t *testing.T) {
	// Nothing listens on this address.
	inv := NewHTTPInvoker(InvokerConfig{
		Name:    "testprov",
		BaseURL: "http://127.0.0.1:1",
		Timeout: 2 * time.Second,
	})
	defer inv.Close()

	_, err := inv.Invoke(context.Background(), chatRequest())
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("want TransientError for connection failure, got %v", err)
	}
}

func TestInvokeContextCancellation(t *testing.T) {
	inv := newTestInvoker(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := inv.Invoke(ctx, chatRequest())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}
}

func TestInvokeEmptyChoices(t *testing.T) {
	inv := newTestInvoker(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireResponse{ID: "resp-1"})
	})

	_, err := inv.Invoke(context.Background(), chatRequest())
	var fatal *FatalError
	if !errors.As(err, &fatal) || fatal.Kind != FatalKindBadRequest {
		t.Fatalf("want bad_request FatalError for empty choices, got %v", err)
	}
}

// ============================================================================
// Streaming Tests
// ============================================================================

func TestInvokeStream(t *testing.T) {
	inv := newTestInvoker(t, func(w http.ResponseWriter, r *http.Request) {
		var wire wireRequest
		json.NewDecoder(r.Body).Decode(&wire)
		if !wire.Stream {
			t.Error("streaming invoke did not set stream=true")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"id":"s1","model":"gpt-4","choices":[{"delta":{"content":"hel"}}]}`,
			`{"id":"s1","model":"gpt-4","choices":[{"delta":{"content":"lo"}}]}`,
			`{"id":"s1","model":"gpt-4","choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"total_tokens":9}}`,
		}
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	chunks, err := inv.InvokeStream(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("InvokeStream() error = %v", err)
	}

	var content strings.Builder
	var finish string
	var usage *TokenUsage
	for chunk := range chunks {
		if chunk.Err != nil {
			t.Fatalf("unexpected stream error: %v", chunk.Err)
		}
		content.WriteString(chunk.Delta)
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}

	if content.String() != "hello" {
		t.Errorf("assembled content = %q, want %q", content.String(), "hello")
	}
	if finish != "stop" {
		t.Errorf("finish reason = %q, want %q", finish, "stop")
	}
	if usage == nil || usage.TotalTokens != 9 {
		t.Errorf("usage = %+v, want total 9", usage)
	}
}

func TestInvokeStreamConnectionError(t *testing.T) {
	inv := newTestInvoker(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := inv.InvokeStream(context.Background(), chatRequest())
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("want TransientError for failed stream setup, got %v", err)
	}
}

// ============================================================================
// Retry-After Parsing Tests
// ============================================================================

func TestParseRetryAfter(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if d := parseRetryAfter(""); d != 0 {
			t.Errorf("parseRetryAfter(\"\") = %v, want 0", d)
		}
	})

	t.Run("delay seconds", func(t *testing.T) {
		if d := parseRetryAfter("30"); d != 30*time.Second {
			t.Errorf("parseRetryAfter(\"30\") = %v, want 30s", d)
		}
	})

	t.Run("http date", func(t *testing.T) {
		future := time.Now().Add(45 * time.Second).UTC().Format(http.TimeFormat)
		d := parseRetryAfter(future)
		if d < 40*time.Second || d > 46*time.Second {
			t.Errorf("parseRetryAfter(date) = %v, want about 45s", d)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if d := parseRetryAfter("soon"); d != 0 {
			t.Errorf("parseRetryAfter(\"soon\") = %v, want 0", d)
		}
	})
}
