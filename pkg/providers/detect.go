package providers

import "strings"

// DetectProvider infers a provider name from a model identifier when the
// request does not name one explicitly. Unknown model families map to the
// default provider.
func DetectProvider(model, defaultProvider string) string {
	lower := strings.ToLower(model)

	switch {
	case strings.HasPrefix(lower, "gpt"), strings.HasPrefix(lower, "o1"),
		strings.HasPrefix(lower, "o3"), strings.Contains(lower, "davinci"):
		return "openai"
	case strings.HasPrefix(lower, "claude"):
		return "anthropic"
	case strings.Contains(lower, "/"):
		// HuggingFace-style "org/model" identifiers.
		return "huggingface"
	default:
		return defaultProvider
	}
}
