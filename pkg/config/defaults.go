package config

import "time"

// Defaults applied to unset fields.
const (
	DefaultListenAddress   = ":8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 5 * time.Minute
	DefaultIdleTimeout     = 2 * time.Minute
	DefaultShutdownTimeout = 15 * time.Second

	DefaultProviderName   = "openai"
	DefaultAcquireMaxWait = 10 * time.Second

	DefaultProviderTimeout = 2 * time.Minute

	DefaultCacheBackend  = "memory"
	DefaultCacheEntries  = 1024
	DefaultCacheTTL      = 5 * time.Minute
	DefaultSweepSchedule = "@every 1m"

	DefaultMaxRetries     = 3
	DefaultInitialDelay   = time.Second
	DefaultMaxDelay       = time.Minute
	DefaultMultiplier     = 2.0
	DefaultJitterFraction = 0.1

	DefaultErrorRateThreshold = 0.5
	DefaultMinWindowRequests  = 10
	DefaultCheckTimeout       = 5 * time.Second

	DefaultMetricsNamespace = "bulwark"
	DefaultMetricsWindow    = time.Minute
)

// ApplyDefaults fills every unset field in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Pipeline.DefaultProvider == "" {
		cfg.Pipeline.DefaultProvider = DefaultProviderName
	}
	if cfg.Pipeline.AcquireMaxWait == 0 {
		cfg.Pipeline.AcquireMaxWait = DefaultAcquireMaxWait
	}

	for name, p := range cfg.Providers {
		if p.Timeout == 0 {
			p.Timeout = DefaultProviderTimeout
		}
		cfg.Providers[name] = p
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = DefaultCacheBackend
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultCacheEntries
	}
	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = DefaultCacheTTL
	}
	if cfg.Cache.SweepSchedule == "" {
		cfg.Cache.SweepSchedule = DefaultSweepSchedule
	}

	// Zero is a valid explicit value for these two, so absence is the
	// nil pointer, not the zero value.
	if cfg.Retry.MaxRetries == nil {
		v := DefaultMaxRetries
		cfg.Retry.MaxRetries = &v
	}
	if cfg.Retry.JitterFraction == nil {
		v := DefaultJitterFraction
		cfg.Retry.JitterFraction = &v
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = DefaultInitialDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = DefaultMaxDelay
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = DefaultMultiplier
	}

	if cfg.Health.ErrorRateThreshold == 0 {
		cfg.Health.ErrorRateThreshold = DefaultErrorRateThreshold
	}
	if cfg.Health.MinWindowRequests == 0 {
		cfg.Health.MinWindowRequests = DefaultMinWindowRequests
	}
	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = DefaultCheckTimeout
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Window == 0 {
		cfg.Metrics.Window = DefaultMetricsWindow
	}
}
