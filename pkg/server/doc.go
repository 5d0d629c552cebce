// Package server exposes the request pipeline over HTTP.
//
// The server mounts a chat completion endpoint, the metrics exports,
// and the health probes on a single listener:
//
//	POST /v1/chat/completions   completion requests, JSON or SSE stream
//	GET  /metrics               aggregated stats (?format=prometheus|json|statsd)
//	GET  /metrics/prometheus    the Prometheus registry scrape endpoint
//	GET  /live                  liveness probe
//	GET  /ready                 readiness probe
//	GET  /version               build information
//
// Every request passes through the middleware chain: panic recovery,
// request ID assignment, and access logging, in that order from the
// outside in.
package server
