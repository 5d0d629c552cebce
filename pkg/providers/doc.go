// Package providers defines the provider-agnostic request and response
// types, the error taxonomy shared by the resilience layer, and a generic
// HTTP invoker for OpenAI-compatible chat endpoints.
//
// The pipeline treats the provider exchange as a black box behind the
// Invoker interface; everything in this package that touches the network
// is replaceable without affecting admission control, caching, retry, or
// metrics.
//
// # Error taxonomy
//
// Errors surfaced by an Invoker fall into a fixed set of types:
//
//   - *ValidationError: the request shape is invalid; never retried.
//   - *TransientError: network failures, timeouts, and 5xx responses;
//     retried per policy.
//   - *FatalError: authentication failures, unknown models, and malformed
//     requests; never retried.
//   - *RateLimitedError: an explicit provider rate-limit signal (429);
//     retried, honoring the Retry-After hint.
//
// Classify maps any of these onto a retry.Classification, fixing the
// retry contract in one place. Error messages never contain API keys.
package providers
