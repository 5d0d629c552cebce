// Package config loads, defaults, validates, and watches the service
// configuration.
//
// Configuration is a single YAML document. Loading follows a fixed
// sequence: parse the file, apply defaults to anything unset, apply
// BULWARK_* environment overrides, then validate the final result.
// Environment variables always win over file values.
//
// API keys never live in the file itself: each provider names the
// environment variable that carries its key, and Load resolves it.
//
// Watch uses fsnotify with debouncing to reload the file on change, so
// rate limits and retry tuning can be adjusted without a restart.
package config
