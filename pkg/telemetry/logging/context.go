package logging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type contextKey int

const requestIDKey contextKey = iota

// NewRequestID generates a fresh request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

// WithRequestID returns a context carrying id. An empty id gets a fresh
// one.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewRequestID()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request identifier from ctx, empty if none was
// attached.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns logger annotated with the context's request ID,
// or logger unchanged when the context has none.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := RequestID(ctx); id != "" {
		return logger.With("request_id", id)
	}
	return logger
}
