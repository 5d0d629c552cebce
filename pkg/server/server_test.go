package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sableworks/bulwark/internal/mock"
	"github.com/sableworks/bulwark/pkg/cache"
	"github.com/sableworks/bulwark/pkg/config"
	"github.com/sableworks/bulwark/pkg/pipeline"
	"github.com/sableworks/bulwark/pkg/providers"
	"github.com/sableworks/bulwark/pkg/retry"
	"github.com/sableworks/bulwark/pkg/telemetry/health"
	"github.com/sableworks/bulwark/pkg/telemetry/logging"
	"github.com/sableworks/bulwark/pkg/telemetry/metrics"
)

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:     2,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2,
		JitterFraction: 0,
	}
}

func newTestServer(t *testing.T, invoker providers.Invoker) (*Server, *metrics.Collector) {
	t.Helper()

	collector := metrics.NewCollector(metrics.Config{}, nil)
	pipe, err := pipeline.New(
		pipeline.Config{
			DefaultProvider: "openai",
			RetryPolicy:     testPolicy(),
		},
		pipeline.Options{
			Invokers:  map[string]providers.Invoker{"openai": invoker},
			Collector: collector,
		},
	)
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: "error", Format: "text", Writer: os.Stderr})
	if err != nil {
		t.Fatal(err)
	}

	aggregator := health.NewAggregator(collector, health.Config{})

	srv, err := New(
		config.ServerConfig{ListenAddress: ":0", ShutdownTimeout: time.Second},
		Options{
			Pipe:       pipe,
			Aggregator: aggregator,
			Collector:  collector,
			Logger:     logger,
			Build:      BuildInfo{Version: "test", Commit: "abc", BuildTime: "now"},
		},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return srv, collector
}

func chatBody(t *testing.T, extra string) *bytes.Reader {
	t.Helper()
	body := `{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]` + extra + `}`
	return bytes.NewReader([]byte(body))
}

// ============================================================================
// Chat endpoint
// ============================================================================

func TestChatSuccess(t *testing.T) {
	invoker := mock.NewInvoker(mock.Step{Response: &providers.Response{
		ID:           "resp-1",
		Content:      "hello there",
		FinishReason: "stop",
		Usage:        providers.TokenUsage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
	}})
	srv, _ := newTestServer(t, invoker)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", chatBody(t, ""))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("response should carry a request ID header")
	}

	var out providers.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Content != "hello there" {
		t.Errorf("content = %q, want %q", out.Content, "hello there")
	}
	if out.Usage.TotalTokens != 8 {
		t.Errorf("total tokens = %d, want 8", out.Usage.TotalTokens)
	}
}

func TestChatMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, mock.NewInvoker())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/chat/completions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestChatMalformedJSON(t *testing.T) {
	srv, _ := newTestServer(t, mock.NewInvoker())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json",
		strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("error envelope should be JSON: %v", err)
	}
	if body.Error.Code != "invalid_json" {
		t.Errorf("error code = %q, want invalid_json", body.Error.Code)
	}
}

func TestChatValidationFailure(t *testing.T) {
	invoker := mock.NewInvoker()
	srv, _ := newTestServer(t, invoker)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// Missing messages.
	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json",
		strings.NewReader(`{"model":"gpt-4","messages":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if invoker.Calls() != 0 {
		t.Errorf("invoker ran %d times for an invalid request", invoker.Calls())
	}
}

func TestChatErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "auth failure",
			err:        &providers.FatalError{Provider: "openai", Kind: providers.FatalKindAuth, StatusCode: 401, Message: "authentication rejected"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "authentication_failed",
		},
		{
			name:       "model not found",
			err:        &providers.FatalError{Provider: "openai", Kind: providers.FatalKindNotFound, StatusCode: 404, Message: "no such model"},
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
		{
			name:       "provider rate limit",
			err:        &providers.RateLimitedError{Provider: "openai", RetryAfter: 2 * time.Second, Message: "slow down"},
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "rate_limited",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, mock.NewInvoker(mock.Step{Err: tt.err}))
			ts := httptest.NewServer(srv.Handler())
			defer ts.Close()

			resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", chatBody(t, ""))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			var body errorBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode error envelope: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", body.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestChatTransientErrorExhaustsRetries(t *testing.T) {
	invoker := mock.NewInvoker(mock.Step{Err: &providers.TransientError{
		Provider: "openai", StatusCode: 503, Message: "overloaded",
	}})
	srv, _ := newTestServer(t, invoker)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", chatBody(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	if got := invoker.Calls(); got != 3 {
		t.Errorf("invoker ran %d times, want 3 (initial + 2 retries)", got)
	}
}

// ============================================================================
// Streaming
// ============================================================================

func TestChatStreaming(t *testing.T) {
	invoker := mock.NewInvoker()
	invoker.StreamChunks = []*providers.StreamChunk{
		{ID: "s1", Delta: "hel"},
		{ID: "s1", Delta: "lo", FinishReason: "stop"},
	}
	srv, _ := newTestServer(t, invoker)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json",
		chatBody(t, `,"stream":true`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}

	var assembled string
	var sawDone bool
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			sawDone = true
			break
		}
		var chunk providers.StreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			t.Fatalf("chunk is not JSON: %q: %v", payload, err)
		}
		assembled += chunk.Delta
	}

	if assembled != "hello" {
		t.Errorf("assembled = %q, want hello", assembled)
	}
	if !sawDone {
		t.Error("stream should end with [DONE]")
	}
}

// ============================================================================
// Metrics and health endpoints
// ============================================================================

func TestMetricsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, mock.NewInvoker())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// Drive one request through so the exports have content.
	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", chatBody(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	for _, path := range []string{
		"/metrics",
		"/metrics?format=json",
		"/metrics?format=statsd",
		"/metrics/prometheus",
	} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
		if len(body) == 0 {
			t.Errorf("GET %s returned an empty body", path)
		}
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, mock.NewInvoker())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, path := range []string{"/live", "/ready", "/health", "/version"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestVersionEndpointContent(t *testing.T) {
	srv, _ := newTestServer(t, mock.NewInvoker())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/version")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var info map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if info["version"] != "test" {
		t.Errorf("version = %q, want test", info["version"])
	}
}

// ============================================================================
// Middleware behavior
// ============================================================================

func TestClientSuppliedRequestIDIsHonored(t *testing.T) {
	srv, _ := newTestServer(t, mock.NewInvoker())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/chat/completions", chatBody(t, ""))
	req.Header.Set(RequestIDHeader, "client-id-42")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get(RequestIDHeader); got != "client-id-42" {
		t.Errorf("request ID = %q, want client-id-42", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger, err := logging.New(logging.Config{Level: "error", Format: "text", Writer: os.Stderr})
	if err != nil {
		t.Fatal(err)
	}

	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(fmt.Errorf("boom"))
	})
	handler := recoveryMiddleware(logger)(panicking)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("panic response should be the JSON error envelope: %v", err)
	}
	if strings.Contains(body.Error.Message, "boom") {
		t.Error("panic details must not reach the client")
	}
}

func TestCachedResponseSetsHeader(t *testing.T) {
	invoker := mock.NewInvoker()
	collector := metrics.NewCollector(metrics.Config{}, nil)
	pipe, err := pipeline.New(
		pipeline.Config{
			DefaultProvider: "openai",
			CacheTTL:        time.Minute,
			RetryPolicy:     testPolicy(),
		},
		pipeline.Options{
			Invokers:  map[string]providers.Invoker{"openai": invoker},
			Collector: collector,
			Store:     cache.New(cache.Config{MaxEntries: 16}),
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	logger, err := logging.New(logging.Config{Level: "error", Format: "text", Writer: os.Stderr})
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(config.ServerConfig{ShutdownTimeout: time.Second}, Options{Pipe: pipe, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for i, wantCache := range []string{"", "hit"} {
		resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", chatBody(t, ""))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if got := resp.Header.Get("X-Cache"); got != wantCache {
			t.Errorf("request %d: X-Cache = %q, want %q", i, got, wantCache)
		}
	}
	if invoker.Calls() != 1 {
		t.Errorf("invoker ran %d times, want 1 (second response from cache)", invoker.Calls())
	}
}
