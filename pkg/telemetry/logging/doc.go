// Package logging builds the structured slog logger used across the
// service.
//
// The logger supports JSON and text output, a configurable minimum
// level, and automatic secret redaction: string attributes pass through
// a Redactor that masks API keys, bearer tokens, and other credential
// shapes before they reach the output. Request-scoped loggers carry the
// request ID from the context.
package logging
