package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/sableworks/bulwark/pkg/config"
	"github.com/sableworks/bulwark/pkg/pipeline"
	"github.com/sableworks/bulwark/pkg/telemetry/health"
	"github.com/sableworks/bulwark/pkg/telemetry/metrics"
)

// BuildInfo identifies the running binary on the version endpoint.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Server serves the pipeline over HTTP.
type Server struct {
	config     config.ServerConfig
	pipe       *pipeline.Pipeline
	aggregator *health.Aggregator
	collector  *metrics.Collector
	logger     *slog.Logger
	build      BuildInfo

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	running      bool
}

// Options carries the server's collaborators. Pipe is required;
// Aggregator and Collector may be nil, dropping their endpoints.
type Options struct {
	Pipe       *pipeline.Pipeline
	Aggregator *health.Aggregator
	Collector  *metrics.Collector
	Logger     *slog.Logger
	Build      BuildInfo
}

// New creates a server bound to cfg.
func New(cfg config.ServerConfig, opts Options) (*Server, error) {
	if opts.Pipe == nil {
		return nil, fmt.Errorf("a pipeline is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		config:     cfg,
		pipe:       opts.Pipe,
		aggregator: opts.Aggregator,
		collector:  opts.Collector,
		logger:     opts.Logger,
		build:      opts.Build,
	}, nil
}

// Start starts the listener and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true

	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown stops the listener gracefully, waiting up to the configured
// shutdown timeout for in-flight requests to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the listener is up.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Handler returns the routed handler with the middleware chain applied.
// Exposed for tests and for embedding in another mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/v1/chat/completions", s.chatHandler())

	if s.collector != nil {
		mux.Handle("/metrics", s.collector.StatsHandler())
		mux.Handle("/metrics/prometheus", s.collector.Handler())
	}

	if s.aggregator != nil {
		health.Register(mux, s.aggregator, s.build.Version, s.build.Commit, s.build.BuildTime)
	}

	var handler http.Handler = mux
	handler = loggingMiddleware(s.logger)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	return handler
}
