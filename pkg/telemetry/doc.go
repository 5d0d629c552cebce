// Package telemetry groups the observability subpackages.
//
//   - logging: structured logging with secret redaction
//   - metrics: request aggregation and the three export formats
//   - tracing: OpenTelemetry distributed tracing
//   - health: liveness and readiness probes
//
// The subpackages are independent; each can be used without the others.
// Health is the exception in that it reads its error rate from the
// metrics collector through a narrow interface.
package telemetry
