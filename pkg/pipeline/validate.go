package pipeline

import (
	"fmt"

	"github.com/sableworks/bulwark/pkg/providers"
)

// Validation bounds. Requests outside them are rejected before any
// resource is consumed.
const (
	maxMessages      = 1000
	maxContentLength = 1 << 20 // 1 MiB per message
	maxStopSequences = 8
)

var validRoles = map[string]bool{
	providers.RoleSystem:    true,
	providers.RoleUser:      true,
	providers.RoleAssistant: true,
}

// validate checks the request shape. It returns a
// *providers.ValidationError describing the first problem found.
func validate(req *providers.ChatRequest) error {
	if req == nil {
		return &providers.ValidationError{Field: "request", Message: "must not be nil"}
	}
	if req.Model == "" {
		return &providers.ValidationError{Field: "model", Message: "must not be empty"}
	}
	if len(req.Messages) == 0 {
		return &providers.ValidationError{Field: "messages", Message: "must not be empty"}
	}
	if len(req.Messages) > maxMessages {
		return &providers.ValidationError{
			Field:   "messages",
			Message: fmt.Sprintf("at most %d messages allowed", maxMessages),
		}
	}

	for i, m := range req.Messages {
		if !validRoles[m.Role] {
			return &providers.ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: fmt.Sprintf("unknown role %q", m.Role),
			}
		}
		if m.Content == "" {
			return &providers.ValidationError{
				Field:   fmt.Sprintf("messages[%d].content", i),
				Message: "must not be empty",
			}
		}
		if len(m.Content) > maxContentLength {
			return &providers.ValidationError{
				Field:   fmt.Sprintf("messages[%d].content", i),
				Message: fmt.Sprintf("exceeds %d bytes", maxContentLength),
			}
		}
	}

	if req.Temperature < 0 || req.Temperature > 2 {
		return &providers.ValidationError{
			Field:   "temperature",
			Message: "must be between 0.0 and 2.0",
		}
	}
	if req.TopP < 0 || req.TopP > 1 {
		return &providers.ValidationError{
			Field:   "top_p",
			Message: "must be between 0.0 and 1.0",
		}
	}
	if req.MaxTokens < 0 {
		return &providers.ValidationError{
			Field:   "max_tokens",
			Message: "must not be negative",
		}
	}
	if len(req.Stop) > maxStopSequences {
		return &providers.ValidationError{
			Field:   "stop",
			Message: fmt.Sprintf("at most %d stop sequences allowed", maxStopSequences),
		}
	}

	return nil
}
