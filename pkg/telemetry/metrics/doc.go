// Package metrics collects per-provider, per-model request telemetry.
//
// # Overview
//
// The Collector aggregates one Sample per completed request: outcome,
// duration, retries, cache hits, and token usage, keyed by (provider,
// model). The same aggregates feed three export formats (Prometheus
// text, JSON, StatsD) so the numbers agree regardless of how they are
// scraped.
//
// Samples missing a provider or model are folded into the "unknown"
// key rather than dropped, so totals stay accurate even when a request
// fails before it is fully resolved.
//
// # Prometheus Integration
//
// Alongside its own aggregates the Collector mirrors every sample into
// a prometheus.Registry, giving scrapes histogram buckets and the rest
// of the client_golang exposition for free. Handler() serves that
// registry via promhttp.
//
// # Error Rate Window
//
// The Collector also maintains a rolling window of recent request
// outcomes. WindowErrorRate reports the failure fraction over that
// window; the health aggregator compares it against its readiness
// threshold.
package metrics
