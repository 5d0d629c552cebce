package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads, defaults, overrides, and validates the configuration at
// path.
//
// The sequence is fixed: parse YAML, apply defaults, apply BULWARK_*
// environment overrides, resolve provider API keys from their named
// environment variables, validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration file %q: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a configuration from raw YAML using the same sequence
// as Load.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	resolveAPIKeys(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies BULWARK_SECTION_FIELD environment
// variables on top of the file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BULWARK_SERVER_LISTEN_ADDRESS"); v != "" {
		cfg.Server.ListenAddress = v
	}
	if v := os.Getenv("BULWARK_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("BULWARK_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	if v := os.Getenv("BULWARK_PIPELINE_DEFAULT_PROVIDER"); v != "" {
		cfg.Pipeline.DefaultProvider = v
	}
	if v := os.Getenv("BULWARK_PIPELINE_ACQUIRE_MAX_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.AcquireMaxWait = d
		}
	}
	if v := os.Getenv("BULWARK_PIPELINE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxConcurrent = n
		}
	}

	if v := os.Getenv("BULWARK_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if v := os.Getenv("BULWARK_CACHE_DEFAULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DefaultTTL = d
		}
	}

	if v := os.Getenv("BULWARK_RETRY_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxRetries = &n
		}
	}

	if v := os.Getenv("BULWARK_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BULWARK_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("BULWARK_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
}

// resolveAPIKeys reads each provider's key from its named environment
// variable.
func resolveAPIKeys(cfg *Config) {
	for name, p := range cfg.Providers {
		if p.APIKeyEnv != "" {
			p.APIKey = os.Getenv(p.APIKeyEnv)
		}
		cfg.Providers[name] = p
	}
}
