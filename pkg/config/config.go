package config

import (
	"time"

	"github.com/sableworks/bulwark/pkg/telemetry/logging"
	"github.com/sableworks/bulwark/pkg/telemetry/tracing"
)

// Config is the root configuration document.
type Config struct {
	// Server configures the HTTP listener
	Server ServerConfig `yaml:"server"`

	// Pipeline configures request orchestration
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Providers maps provider names to their connection settings
	Providers map[string]ProviderConfig `yaml:"providers"`

	// RateLimits lists the token bucket limits to install
	RateLimits []RateLimitConfig `yaml:"rate_limits"`

	// Cache configures the response cache
	Cache CacheConfig `yaml:"cache"`

	// Retry configures the backoff policy
	Retry RetryConfig `yaml:"retry"`

	// Health configures readiness thresholds
	Health HealthConfig `yaml:"health"`

	// Metrics configures telemetry aggregation
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging configures the structured logger
	Logging logging.Config `yaml:"logging"`

	// Tracing configures OpenTelemetry export
	Tracing tracing.Config `yaml:"tracing"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// ListenAddress is the host:port to bind
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout bounds reading a request
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing a response. Streaming responses need
	// headroom here.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive connections
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PipelineConfig configures request orchestration.
type PipelineConfig struct {
	// DefaultProvider handles models that match no known family
	DefaultProvider string `yaml:"default_provider"`

	// AcquireMaxWait bounds the wait for rate limit tokens
	AcquireMaxWait time.Duration `yaml:"acquire_max_wait"`

	// MaxConcurrent caps in-flight provider requests, zero is unlimited
	MaxConcurrent int `yaml:"max_concurrent"`
}

// ProviderConfig configures one upstream provider.
type ProviderConfig struct {
	// BaseURL is the API endpoint base URL
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never appears in the file.
	APIKeyEnv string `yaml:"api_key_env"`

	// Timeout bounds a single request to this provider
	Timeout time.Duration `yaml:"timeout"`

	// MaxIdleConns sizes the connection pool
	MaxIdleConns int `yaml:"max_idle_conns"`

	// resolved API key, populated by Load
	APIKey string `yaml:"-"`
}

// RateLimitConfig is one token bucket limit.
type RateLimitConfig struct {
	// Provider the limit applies to
	Provider string `yaml:"provider"`

	// Model the limit applies to, "*" for all of the provider's models
	Model string `yaml:"model"`

	// Rate is sustained requests per second
	Rate float64 `yaml:"rate"`

	// Burst is the bucket capacity
	Burst float64 `yaml:"burst"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	// Enabled turns caching on
	Enabled bool `yaml:"enabled"`

	// Backend is "memory" or "sqlite"
	Backend string `yaml:"backend"`

	// Path is the database file for the sqlite backend
	Path string `yaml:"path"`

	// MaxEntries caps the entry count, zero is unbounded
	MaxEntries int `yaml:"max_entries"`

	// MaxBytes caps total payload size for the memory backend
	MaxBytes int64 `yaml:"max_bytes"`

	// DefaultTTL applies when a response carries no freshness hint
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// SweepSchedule is the cron expression for expired-entry sweeps
	SweepSchedule string `yaml:"sweep_schedule"`
}

// RetryConfig configures the backoff policy.
//
// MaxRetries and JitterFraction are pointers because zero is a valid
// explicit setting for both; a nil pointer means the field was absent
// from the file and takes the default.
type RetryConfig struct {
	// MaxRetries is re-invocations beyond the first attempt. Zero
	// disables retries.
	MaxRetries *int `yaml:"max_retries"`

	// InitialDelay seeds the exponential backoff
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps any single backoff
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier grows the delay between attempts
	Multiplier float64 `yaml:"multiplier"`

	// JitterFraction randomizes each delay, 0.1 means +-10%. Zero
	// disables jitter.
	JitterFraction *float64 `yaml:"jitter_fraction"`
}

// HealthConfig configures readiness thresholds.
type HealthConfig struct {
	// ErrorRateThreshold flips readiness when the windowed error rate
	// reaches it
	ErrorRateThreshold float64 `yaml:"error_rate_threshold"`

	// MinWindowRequests is the sample floor before the rate is trusted
	MinWindowRequests int64 `yaml:"min_window_requests"`

	// CheckTimeout bounds each dependency probe
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// MetricsConfig configures telemetry aggregation.
type MetricsConfig struct {
	// Namespace prefixes exported metric names
	Namespace string `yaml:"namespace"`

	// Window is the rolling period for the error rate
	Window time.Duration `yaml:"window"`
}
