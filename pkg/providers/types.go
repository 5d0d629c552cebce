package providers

import (
	"context"
	"time"
)

// Message represents a single message in a conversation.
// It is provider-agnostic and transformed to provider-specific formats
// by the invoker.
type Message struct {
	// Role identifies the message sender (system, user, assistant)
	Role string `json:"role"`

	// Content is the message text content
	Content string `json:"content"`

	// Name is an optional name for the message sender
	Name string `json:"name,omitempty"`
}

// TokenUsage tracks token consumption for a request.
type TokenUsage struct {
	// PromptTokens is the number of tokens in the prompt
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the total number of tokens used (prompt + completion)
	TotalTokens int `json:"total_tokens"`
}

// ChatRequest is a provider-agnostic chat completion request.
//
// Provider-specific knobs that have no named field here go through Extra,
// a typed string map validated at the pipeline boundary; nothing is passed
// through implicitly.
type ChatRequest struct {
	// Provider is the target provider name. Empty means detect from the
	// model name.
	Provider string `json:"provider,omitempty"`

	// Model is the model identifier (e.g., "gpt-4", "claude-3-opus")
	Model string `json:"model"`

	// Messages is the conversation history. Must be non-empty.
	Messages []Message `json:"messages"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int `json:"max_tokens,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0)
	TopP float64 `json:"top_p,omitempty"`

	// Stop sequences that halt generation
	Stop []string `json:"stop,omitempty"`

	// Extra holds additional provider-specific string parameters.
	// Keys and values count against the pipeline's size limits.
	Extra map[string]string `json:"extra,omitempty"`
}

// Response is a provider-agnostic chat completion response.
type Response struct {
	// ID is the unique response identifier assigned by the provider
	ID string `json:"id"`

	// Provider is the provider that served the request
	Provider string `json:"provider"`

	// Model is the model that generated the response
	Model string `json:"model"`

	// Content is the generated text
	Content string `json:"content"`

	// FinishReason indicates why generation stopped (stop, length, ...)
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage contains token consumption information
	Usage TokenUsage `json:"usage"`

	// Created is the Unix timestamp when the response was created
	Created int64 `json:"created"`

	// CacheTTL is an optional provider-declared freshness hint consumed
	// by the response cache. Zero means use the configured default.
	CacheTTL time.Duration `json:"-"`

	// Cached is true when the response was served from the cache rather
	// than the provider.
	Cached bool `json:"cached,omitempty"`
}

// StreamChunk is a single increment of a streaming response.
type StreamChunk struct {
	// ID is the response identifier (same across all chunks)
	ID string `json:"id"`

	// Model is the model generating the response
	Model string `json:"model"`

	// Delta is the incremental content in this chunk
	Delta string `json:"delta"`

	// FinishReason is set in the final chunk
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage is included in the final chunk when the provider reports it
	Usage *TokenUsage `json:"usage,omitempty"`

	// Err is set if the stream failed after it was established
	Err error `json:"-"`
}

// Invoker performs the actual provider exchange. Implementations must
// respect context cancellation and return errors from the package
// taxonomy; they must not retry internally, retry policy belongs to the
// caller.
type Invoker interface {
	// Invoke sends a completion request and returns the full response.
	Invoke(ctx context.Context, req *ChatRequest) (*Response, error)

	// InvokeStream establishes a streaming completion. The returned
	// channel is closed when the stream ends; a mid-stream failure is
	// delivered as a final chunk with Err set.
	InvokeStream(ctx context.Context, req *ChatRequest) (<-chan *StreamChunk, error)
}

// Message role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
