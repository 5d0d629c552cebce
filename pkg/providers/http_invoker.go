package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// InvokerConfig contains the settings for a single HTTPInvoker.
type InvokerConfig struct {
	// Name is the provider identifier (e.g., "openai", "anthropic")
	Name string

	// BaseURL is the API endpoint base URL
	BaseURL string

	// APIKey is the authentication key. It never appears in errors or logs.
	APIKey string

	// Timeout is the per-request timeout
	Timeout time.Duration

	// MaxIdleConns is the connection pool size
	MaxIdleConns int

	// MaxIdleConnsPerHost is the per-host idle connection limit
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection stays pooled
	IdleConnTimeout time.Duration
}

// HTTPInvoker is a generic Invoker for OpenAI-compatible chat completion
// endpoints. It owns a pooled HTTP client and maps transport and status
// failures onto the package error taxonomy. It performs no retries of its
// own; retry policy is the caller's concern.
type HTTPInvoker struct {
	config InvokerConfig
	client *http.Client
}

// NewHTTPInvoker creates an invoker with connection pooling configured
// from cfg. Zero pool fields fall back to modest defaults.
func NewHTTPInvoker(cfg InvokerConfig) *HTTPInvoker {
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 32
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 8
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPInvoker{
		config: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}
}

// Name returns the configured provider name.
func (p *HTTPInvoker) Name() string { return p.config.Name }

// wire types for the OpenAI-compatible chat completions endpoint.

type wireRequest struct {
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	TopP        float64           `json:"top_p,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
	Extra       map[string]string `json:"metadata,omitempty"`
}

type wireChoice struct {
	Message      Message `json:"message"`
	Delta        Message `json:"delta"`
	FinishReason string  `json:"finish_reason"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Created int64        `json:"created"`
	Choices []wireChoice `json:"choices"`
	Usage   *TokenUsage  `json:"usage"`
}

// Invoke sends the request and returns the decoded response.
func (p *HTTPInvoker) Invoke(ctx context.Context, req *ChatRequest) (*Response, error) {
	resp, err := p.send(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{
			Provider: p.config.Name,
			Message:  "failed to read response body",
			Cause:    err,
		}
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &FatalError{
			Provider:   p.config.Name,
			Kind:       FatalKindBadRequest,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("malformed response: %v", err),
		}
	}
	if len(wire.Choices) == 0 {
		return nil, &FatalError{
			Provider:   p.config.Name,
			Kind:       FatalKindBadRequest,
			StatusCode: resp.StatusCode,
			Message:    "response contained no choices",
		}
	}

	out := &Response{
		ID:           wire.ID,
		Provider:     p.config.Name,
		Model:        wire.Model,
		Content:      wire.Choices[0].Message.Content,
		FinishReason: wire.Choices[0].FinishReason,
		Created:      wire.Created,
	}
	if wire.Usage != nil {
		out.Usage = *wire.Usage
	}
	return out, nil
}

// InvokeStream establishes an SSE stream and forwards decoded chunks.
// Errors establishing the connection are returned directly; mid-stream
// failures arrive as a final chunk with Err set.
func (p *HTTPInvoker) InvokeStream(ctx context.Context, req *ChatRequest) (<-chan *StreamChunk, error) {
	resp, err := p.send(ctx, req, true)
	if err != nil {
		return nil, err
	}

	chunks := make(chan *StreamChunk)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var wire wireResponse
			if err := json.Unmarshal([]byte(data), &wire); err != nil {
				slog.Debug("skipping undecodable stream event", "provider", p.config.Name, "error", err)
				continue
			}
			chunk := &StreamChunk{ID: wire.ID, Model: wire.Model, Usage: wire.Usage}
			if len(wire.Choices) > 0 {
				chunk.Delta = wire.Choices[0].Delta.Content
				chunk.FinishReason = wire.Choices[0].FinishReason
			}

			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			chunks <- &StreamChunk{Err: &TransientError{
				Provider: p.config.Name,
				Message:  "stream interrupted",
				Cause:    err,
			}}
		}
	}()

	return chunks, nil
}

// send performs one HTTP exchange and maps non-2xx statuses onto the
// error taxonomy. On success the caller owns resp.Body.
func (p *HTTPInvoker) send(ctx context.Context, req *ChatRequest, stream bool) (*http.Response, error) {
	payload := wireRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
		Extra:       req.Extra,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &ValidationError{Field: "request", Message: fmt.Sprintf("not serializable: %v", err)}
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &FatalError{
			Provider: p.config.Name,
			Kind:     FatalKindBadRequest,
			Message:  fmt.Sprintf("failed to build request: %v", err),
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{
			Provider: p.config.Name,
			Message:  "request failed",
			Cause:    err,
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	msg := strings.TrimSpace(string(errBody))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &FatalError{
			Provider:   p.config.Name,
			Kind:       FatalKindAuth,
			StatusCode: resp.StatusCode,
			Message:    "authentication rejected",
		}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &FatalError{
			Provider:   p.config.Name,
			Kind:       FatalKindNotFound,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitedError{
			Provider:   p.config.Name,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    msg,
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &FatalError{
			Provider:   p.config.Name,
			Kind:       FatalKindBadRequest,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	default:
		return nil, &TransientError{
			Provider:   p.config.Name,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}
}

// Close releases pooled connections.
func (p *HTTPInvoker) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// parseRetryAfter parses a Retry-After header value in either
// delay-seconds or HTTP-date form.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}

	return 0
}
