package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for this service. Custom keys live under the
// "bulwark.*" namespace; error keys follow OpenTelemetry conventions.
const (
	AttrProvider  = "bulwark.provider"
	AttrModel     = "bulwark.model"
	AttrRequestID = "bulwark.request_id"

	AttrTokensPrompt     = "bulwark.tokens.prompt"
	AttrTokensCompletion = "bulwark.tokens.completion"

	AttrCacheHit   = "bulwark.cache.hit"
	AttrRetryCount = "bulwark.retry_count"

	AttrErrorKind = "bulwark.error.kind"
)

// SetRequestAttributes annotates span with the request identity.
func SetRequestAttributes(span trace.Span, requestID, provider, model string) {
	span.SetAttributes(
		attribute.String(AttrRequestID, requestID),
		attribute.String(AttrProvider, provider),
		attribute.String(AttrModel, model),
	)
}

// SetOutcomeAttributes annotates span with how the request resolved.
func SetOutcomeAttributes(span trace.Span, cached bool, retries, promptTokens, completionTokens int) {
	span.SetAttributes(
		attribute.Bool(AttrCacheHit, cached),
		attribute.Int(AttrRetryCount, retries),
		attribute.Int(AttrTokensPrompt, promptTokens),
		attribute.Int(AttrTokensCompletion, completionTokens),
	)
}

// SetError records err on span and marks the span status. A nil err
// sets status OK.
func SetError(span trace.Span, err error, kind string) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if kind != "" {
		span.SetAttributes(attribute.String(AttrErrorKind, kind))
	}
}

// TraceID returns the trace ID from ctx as a string, empty when no
// valid span context exists.
func TraceID(span trace.Span) string {
	sc := span.SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
