package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sableworks/bulwark/pkg/cache"
	"github.com/sableworks/bulwark/pkg/cache/sqlite"
	"github.com/sableworks/bulwark/pkg/config"
	"github.com/sableworks/bulwark/pkg/limits/ratelimit"
	"github.com/sableworks/bulwark/pkg/pipeline"
	"github.com/sableworks/bulwark/pkg/providers"
	"github.com/sableworks/bulwark/pkg/retry"
	"github.com/sableworks/bulwark/pkg/server"
	"github.com/sableworks/bulwark/pkg/telemetry/health"
	"github.com/sableworks/bulwark/pkg/telemetry/logging"
	"github.com/sableworks/bulwark/pkg/telemetry/metrics"
	"github.com/sableworks/bulwark/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	watch         bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Bulwark server",
	Long: `Start the Bulwark server with the specified configuration.

The server listens on the configured address and runs completion
requests through the cache, rate limiter, and retry pipeline before
forwarding them to the configured providers.

Examples:
  # Start with the default config
  bulwark run

  # Start with a custom config
  bulwark run --config /etc/bulwark/config.yaml

  # Override the listen address
  bulwark run --listen 0.0.0.0:8080

  # Validate the config without starting the server
  bulwark run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", true, "reload rate limits when the config file changes")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("configuration valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	tracer, err := tracing.New(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	// Metrics
	collector := metrics.NewCollector(metrics.Config{
		Namespace: cfg.Metrics.Namespace,
		Window:    cfg.Metrics.Window,
	}, nil)

	// Rate limiting
	limiter := ratelimit.NewRateLimiter()
	if err := applyRateLimits(limiter, cfg.RateLimits); err != nil {
		return err
	}
	var concurrent *ratelimit.ConcurrentLimiter
	if cfg.Pipeline.MaxConcurrent > 0 {
		concurrent = ratelimit.NewConcurrentLimiter(cfg.Pipeline.MaxConcurrent)
	}

	// Response cache
	var store cache.Store
	if cfg.Cache.Enabled {
		switch cfg.Cache.Backend {
		case "sqlite":
			sqliteStore, err := sqlite.Open(cfg.Cache.Path, cfg.Cache.MaxEntries, logger)
			if err != nil {
				return fmt.Errorf("failed to open cache database: %w", err)
			}
			defer sqliteStore.Close()
			store = sqliteStore
		default:
			store = cache.New(cache.Config{
				MaxEntries: cfg.Cache.MaxEntries,
				MaxBytes:   cfg.Cache.MaxBytes,
				DefaultTTL: cfg.Cache.DefaultTTL,
			})
		}

		sweeper := cache.NewSweeper(store, cfg.Cache.SweepSchedule, logger)
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("failed to start cache sweeper: %w", err)
		}
		defer sweeper.Stop()
		logger.Info("response cache enabled", "backend", cfg.Cache.Backend, "default_ttl", cfg.Cache.DefaultTTL)
	}

	// Provider invokers
	invokers := make(map[string]providers.Invoker, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if pc.APIKey == "" && pc.APIKeyEnv != "" {
			logger.Warn("provider API key environment variable is empty", "provider", name, "env", pc.APIKeyEnv)
		}
		invoker := providers.NewHTTPInvoker(providers.InvokerConfig{
			Name:         name,
			BaseURL:      pc.BaseURL,
			APIKey:       pc.APIKey,
			Timeout:      pc.Timeout,
			MaxIdleConns: pc.MaxIdleConns,
		})
		defer invoker.Close()
		invokers[name] = invoker
	}
	logger.Info("providers initialized", "count", len(invokers))

	// Pipeline
	pipe, err := pipeline.New(
		pipeline.Config{
			DefaultProvider: cfg.Pipeline.DefaultProvider,
			AcquireMaxWait:  cfg.Pipeline.AcquireMaxWait,
			CacheTTL:        cfg.Cache.DefaultTTL,
			RetryPolicy: retry.Policy{
				MaxRetries:     *cfg.Retry.MaxRetries,
				InitialDelay:   cfg.Retry.InitialDelay,
				MaxDelay:       cfg.Retry.MaxDelay,
				Multiplier:     cfg.Retry.Multiplier,
				JitterFraction: *cfg.Retry.JitterFraction,
			},
		},
		pipeline.Options{
			Invokers:   invokers,
			Limiter:    limiter,
			Concurrent: concurrent,
			Store:      store,
			Collector:  collector,
			Tracer:     tracer,
			Logger:     logger,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to assemble pipeline: %w", err)
	}

	// Health
	aggregator := health.NewAggregator(collector, health.Config{
		ErrorRateThreshold: cfg.Health.ErrorRateThreshold,
		MinWindowRequests:  cfg.Health.MinWindowRequests,
		CheckTimeout:       cfg.Health.CheckTimeout,
	})
	if cfg.Cache.Enabled {
		aggregator.RegisterCheck("cache", func(ctx context.Context) error {
			if store.Len() < 0 {
				return fmt.Errorf("cache store unavailable")
			}
			return nil
		})
	}

	// Config hot reload: rate limits can change without a restart.
	if runFlags.watch {
		watcher := config.NewWatcher(cfgFile, 0, logger)
		go func() {
			err := watcher.Watch(ctx, func(next *config.Config) {
				// Drop limits absent from the new file, then install
				// the new set.
				for _, status := range limiter.Snapshot() {
					limiter.Remove(status.Key)
				}
				if err := applyRateLimits(limiter, next.RateLimits); err != nil {
					logger.Error("failed to apply reloaded rate limits", "error", err)
					return
				}
				logger.Info("rate limits reloaded", "count", len(next.RateLimits))
			})
			if err != nil && ctx.Err() == nil {
				logger.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	// HTTP server
	srv, err := server.New(cfg.Server, server.Options{
		Pipe:       pipe,
		Aggregator: aggregator,
		Collector:  collector,
		Logger:     logger,
		Build: server.BuildInfo{
			Version:   Version,
			Commit:    GitCommit,
			BuildTime: BuildDate,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("bulwark starting",
		"version", Version,
		"address", cfg.Server.ListenAddress,
		"providers", len(invokers),
		"cache", cfg.Cache.Enabled,
	)

	// Start blocks until the signal context is cancelled, then shuts
	// down gracefully.
	return srv.Start(ctx)
}

func applyRateLimits(limiter *ratelimit.RateLimiter, limits []config.RateLimitConfig) error {
	for _, rl := range limits {
		key := ratelimit.Key{Provider: rl.Provider, Model: rl.Model}
		if err := limiter.Configure(key, rl.Rate, rl.Burst); err != nil {
			return fmt.Errorf("invalid rate limit for %s: %w", key, err)
		}
	}
	return nil
}
