// Package pipeline composes the resilience layers around a provider
// call.
//
// # Request Flow
//
// Chat runs each request through a fixed sequence:
//
//  1. Validation: shape errors are rejected before any resource is
//     consumed.
//  2. Provider resolution: an explicit provider wins, otherwise the
//     model name decides.
//  3. Cache lookup: a fresh cached response short-circuits everything
//     below, including rate limiting.
//  4. Admission: the concurrency cap and the keyed token bucket, the
//     latter bounded by the configured acquire wait.
//  5. Invocation under the retry policy, with provider errors
//     classified for retryability.
//  6. Telemetry: exactly one metrics sample per request, whatever the
//     outcome, plus a span covering the whole sequence.
//
// Streaming requests follow the same admission path but skip the cache;
// retries apply only to establishing the stream, never to a stream that
// already delivered chunks.
package pipeline
