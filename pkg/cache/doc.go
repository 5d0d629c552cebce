// Package cache provides a TTL-aware response cache with LRU eviction.
//
// # Overview
//
// The cache stores opaque byte payloads keyed by a deterministic request
// fingerprint. Entries expire after their time-to-live and are evicted
// least-recently-used first when the configured entry or byte bounds are
// reached.
//
// Two backends implement the Store interface: the in-memory Cache in this
// package and the SQLite-backed store in the sqlite subpackage for
// persistence across restarts.
//
// # Expiry Semantics
//
// Expiry is observed, not scheduled: an expired entry is detected and
// removed when a lookup touches it or when a sweep runs. The Sweeper runs
// periodic sweeps on a cron schedule so expired entries do not linger and
// hold memory between lookups.
//
// # Fingerprinting
//
// Fingerprint derives a SHA-256 hex key from the request fields that
// affect the response. Message order is preserved; two requests differing
// only in message order produce different fingerprints.
package cache
