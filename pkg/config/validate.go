package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError aggregates every problem found in a configuration,
// so one load reports all mistakes instead of the first.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + formatProblems(e.Problems)
}

// Validate checks cfg for consistency. All problems are collected into
// a single ValidationError.
func Validate(cfg *Config) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if _, _, err := net.SplitHostPort(cfg.Server.ListenAddress); err != nil {
		add("server.listen_address %q is not host:port", cfg.Server.ListenAddress)
	}

	if len(cfg.Providers) == 0 {
		add("at least one provider must be configured")
	}
	for name, p := range cfg.Providers {
		if p.BaseURL == "" {
			add("providers.%s.base_url is required", name)
		} else if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("providers.%s.base_url %q is not an absolute URL", name, p.BaseURL)
		}
		if p.Timeout < 0 {
			add("providers.%s.timeout must not be negative", name)
		}
	}

	if _, ok := cfg.Providers[cfg.Pipeline.DefaultProvider]; !ok && len(cfg.Providers) > 0 {
		add("pipeline.default_provider %q is not a configured provider", cfg.Pipeline.DefaultProvider)
	}
	if cfg.Pipeline.AcquireMaxWait < 0 {
		add("pipeline.acquire_max_wait must not be negative")
	}
	if cfg.Pipeline.MaxConcurrent < 0 {
		add("pipeline.max_concurrent must not be negative")
	}

	seen := make(map[string]bool)
	for i, rl := range cfg.RateLimits {
		if rl.Provider == "" {
			add("rate_limits[%d].provider is required", i)
		}
		if rl.Model == "" {
			add("rate_limits[%d].model is required (use \"*\" for all models)", i)
		}
		if rl.Rate <= 0 {
			add("rate_limits[%d].rate must be positive", i)
		}
		if rl.Burst < 1 {
			add("rate_limits[%d].burst must be at least 1", i)
		}
		key := rl.Provider + "/" + rl.Model
		if seen[key] {
			add("rate_limits[%d] duplicates limit for %s", i, key)
		}
		seen[key] = true
	}

	switch cfg.Cache.Backend {
	case "memory":
	case "sqlite":
		if cfg.Cache.Enabled && cfg.Cache.Path == "" {
			add("cache.path is required for the sqlite backend")
		}
	default:
		add("cache.backend %q must be \"memory\" or \"sqlite\"", cfg.Cache.Backend)
	}
	if cfg.Cache.MaxEntries < 0 {
		add("cache.max_entries must not be negative")
	}
	if cfg.Cache.DefaultTTL < 0 {
		add("cache.default_ttl must not be negative")
	}

	if cfg.Retry.MaxRetries != nil && *cfg.Retry.MaxRetries < 0 {
		add("retry.max_retries must not be negative")
	}
	if cfg.Retry.InitialDelay <= 0 {
		add("retry.initial_delay must be positive")
	}
	if cfg.Retry.MaxDelay < cfg.Retry.InitialDelay {
		add("retry.max_delay must be at least retry.initial_delay")
	}
	if cfg.Retry.Multiplier <= 1 {
		add("retry.multiplier must be greater than 1")
	}
	if j := cfg.Retry.JitterFraction; j != nil && (*j < 0 || *j > 1) {
		add("retry.jitter_fraction must be between 0 and 1")
	}

	if cfg.Health.ErrorRateThreshold <= 0 || cfg.Health.ErrorRateThreshold > 1 {
		add("health.error_rate_threshold must be in (0, 1]")
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		add("tracing.endpoint is required when tracing is enabled")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Is reports whether err is a configuration validation failure.
func Is(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func formatProblems(problems []string) string {
	if len(problems) == 1 {
		return problems[0]
	}
	return fmt.Sprintf("%d problems:\n  - %s", len(problems), strings.Join(problems, "\n  - "))
}
