// Package health derives liveness and readiness from request telemetry
// and registered dependency probes.
//
// # Probes
//
// Liveness answers only "is the process running" and never degrades.
// Readiness combines two signals: the rolling error rate reported by the
// metrics collector, compared against a configurable threshold, and the
// outcome of every registered dependency probe. Probes run concurrently
// with a per-probe timeout.
//
// # Status Mapping
//
// The overall status is one of healthy, degraded, or unhealthy. A
// failing dependency probe degrades the system; an error rate at or over
// the threshold makes it unhealthy. Degraded still serves traffic: only
// unhealthy maps to HTTP 503.
package health
