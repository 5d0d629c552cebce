// Package mock provides a scripted providers.Invoker for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/sableworks/bulwark/pkg/providers"
)

// Step is one scripted invocation outcome. Exactly one of Response or
// Err should be set.
type Step struct {
	Response *providers.Response
	Err      error

	// Delay is slept before the outcome is returned
	Delay time.Duration
}

// Invoker replays a script of outcomes in order. Once the script is
// exhausted the last step repeats. The zero value returns a canned
// success for every call.
type Invoker struct {
	mu    sync.Mutex
	steps []Step
	calls int

	// StreamChunks, when set, is replayed by InvokeStream
	StreamChunks []*providers.StreamChunk
}

// NewInvoker creates a scripted invoker.
func NewInvoker(steps ...Step) *Invoker {
	return &Invoker{steps: steps}
}

// Calls returns how many times Invoke has run.
func (m *Invoker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Invoker) next() Step {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if len(m.steps) == 0 {
		return Step{Response: cannedResponse()}
	}
	i := m.calls - 1
	if i >= len(m.steps) {
		i = len(m.steps) - 1
	}
	return m.steps[i]
}

// Invoke implements providers.Invoker.
func (m *Invoker) Invoke(ctx context.Context, req *providers.ChatRequest) (*providers.Response, error) {
	step := m.next()
	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}

	resp := *step.Response
	if resp.Provider == "" {
		resp.Provider = req.Provider
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return &resp, nil
}

// InvokeStream implements providers.Invoker. It replays StreamChunks,
// or fails like Invoke when the current step scripts an error.
func (m *Invoker) InvokeStream(ctx context.Context, req *providers.ChatRequest) (<-chan *providers.StreamChunk, error) {
	step := m.next()
	if step.Err != nil {
		return nil, step.Err
	}

	chunks := make(chan *providers.StreamChunk)
	go func() {
		defer close(chunks)
		for _, chunk := range m.StreamChunks {
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return chunks, nil
}

func cannedResponse() *providers.Response {
	return &providers.Response{
		ID:           "mock-1",
		Content:      "mock response",
		FinishReason: "stop",
		Usage:        providers.TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
		Created:      time.Now().Unix(),
	}
}
