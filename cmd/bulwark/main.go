// Bulwark is a resilience and observability layer for LLM API traffic.
//
// It sits between applications and LLM providers, providing:
//   - Token bucket rate limiting per provider and model
//   - Response caching with TTL and LRU eviction
//   - Retries with exponential backoff and jitter
//   - Request metrics in Prometheus, JSON, and StatsD formats
//   - Liveness and readiness probes driven by the error rate
//
// Usage:
//
//	# Start the server with the default configuration file
//	bulwark run
//
//	# Start with a custom configuration file
//	bulwark run --config /etc/bulwark/config.yaml
//
//	# Check a configuration file without starting the server
//	bulwark validate --config /etc/bulwark/config.yaml
//
//	# Show version information
//	bulwark version
package main

func main() {
	Execute()
}
