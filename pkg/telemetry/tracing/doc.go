// Package tracing initializes OpenTelemetry tracing with an OTLP gRPC
// exporter.
//
// When tracing is disabled the package hands out noop spans, so call
// sites never branch on whether tracing is on. Span attributes for this
// service live under the "bulwark.*" namespace; helpers in this package
// keep the attribute names consistent across call sites.
package tracing
