package logging

import (
	"fmt"
	"regexp"
)

// Pattern is a custom redaction rule.
type Pattern struct {
	// Name identifies the pattern
	Name string `yaml:"name"`

	// Pattern is the regular expression to match
	Pattern string `yaml:"pattern"`

	// Replacement substitutes matched text
	Replacement string `yaml:"replacement"`
}

// Redactor masks credential material in strings before they are logged.
type Redactor struct {
	patterns []compiledPattern
}

type compiledPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternAPIKey      = "api_key"
	PatternBearerToken = "bearer_token"
	PatternPassword    = "password"
)

var defaultPatterns = []Pattern{
	{
		Name:        PatternAPIKey,
		Pattern:     `(sk-[a-zA-Z0-9_-]{8,}|api[-_]?key[-_:=]\s*[a-zA-Z0-9_-]{8,})`,
		Replacement: "[REDACTED_KEY]",
	},
	{
		Name:        PatternBearerToken,
		Pattern:     `(?i)bearer\s+[a-zA-Z0-9._~+/-]+=*`,
		Replacement: "Bearer [REDACTED]",
	},
	{
		Name:        PatternPassword,
		Pattern:     `(?i)(password|passwd|secret)[-_:=]\s*\S+`,
		Replacement: "$1=[REDACTED]",
	},
}

// NewRedactor creates a redactor with the built-in patterns plus any
// custom ones. An invalid custom pattern is an error rather than a
// silent no-op: a typo in a redaction rule must not leak secrets.
func NewRedactor(custom []Pattern) (*Redactor, error) {
	r := &Redactor{}

	for _, p := range append(append([]Pattern{}, defaultPatterns...), custom...) {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", p.Name, err)
		}
		r.patterns = append(r.patterns, compiledPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		})
	}

	return r, nil
}

// Redact applies every pattern to s.
func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}
