package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/sableworks/bulwark/pkg/cache"
	"github.com/sableworks/bulwark/pkg/limits/ratelimit"
	"github.com/sableworks/bulwark/pkg/providers"
	"github.com/sableworks/bulwark/pkg/retry"
	"github.com/sableworks/bulwark/pkg/telemetry/logging"
	"github.com/sableworks/bulwark/pkg/telemetry/metrics"
	"github.com/sableworks/bulwark/pkg/telemetry/tracing"
)

// ErrUnknownProvider reports a request whose resolved provider has no
// registered invoker.
var ErrUnknownProvider = errors.New("no invoker registered for provider")

// Config tunes the pipeline.
type Config struct {
	// DefaultProvider resolves requests whose model matches no known
	// family
	DefaultProvider string

	// AcquireMaxWait bounds how long a request may wait for rate limit
	// tokens. Zero means wait as long as the caller's context allows.
	AcquireMaxWait time.Duration

	// CacheTTL applies to responses without a provider freshness hint
	CacheTTL time.Duration

	// RetryPolicy governs re-invocation on retryable failures
	RetryPolicy retry.Policy
}

// Pipeline runs requests through validation, caching, admission, retry,
// and telemetry. Construct with New; the zero value is not usable.
type Pipeline struct {
	config     Config
	invokers   map[string]providers.Invoker
	limiter    *ratelimit.RateLimiter
	concurrent *ratelimit.ConcurrentLimiter
	store      cache.Store
	collector  *metrics.Collector
	tracer     *tracing.Tracer
	logger     *slog.Logger
}

// Options carries the collaborators for New. Limiter, Store, Collector,
// Tracer, and Concurrent may each be nil, disabling that layer.
type Options struct {
	Invokers   map[string]providers.Invoker
	Limiter    *ratelimit.RateLimiter
	Concurrent *ratelimit.ConcurrentLimiter
	Store      cache.Store
	Collector  *metrics.Collector
	Tracer     *tracing.Tracer
	Logger     *slog.Logger
}

// New assembles a pipeline.
func New(cfg Config, opts Options) (*Pipeline, error) {
	if len(opts.Invokers) == 0 {
		return nil, errors.New("at least one invoker is required")
	}
	if err := cfg.RetryPolicy.Validate(); err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		t, _ := tracing.New(context.Background(), tracing.Config{Enabled: false})
		opts.Tracer = t
	}

	return &Pipeline{
		config:     cfg,
		invokers:   opts.Invokers,
		limiter:    opts.Limiter,
		concurrent: opts.Concurrent,
		store:      opts.Store,
		collector:  opts.Collector,
		tracer:     opts.Tracer,
		logger:     opts.Logger,
	}, nil
}

// Chat runs one completion request through the full sequence. The
// returned response has Cached set when it was served from the cache.
func (p *Pipeline) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.Response, error) {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "pipeline.chat")
	defer span.End()

	if err := validate(req); err != nil {
		p.finish(span, start, req, nil, 0, false, err)
		return nil, err
	}

	provider := req.Provider
	if provider == "" {
		provider = providers.DetectProvider(req.Model, p.config.DefaultProvider)
	}
	invoker, ok := p.invokers[provider]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
		p.finish(span, start, req, nil, 0, false, err)
		return nil, err
	}

	resolved := *req
	resolved.Provider = provider

	requestID := logging.RequestID(ctx)
	tracing.SetRequestAttributes(span, requestID, provider, resolved.Model)
	logger := logging.FromContext(ctx, p.logger).With("provider", provider, "model", resolved.Model)

	key := cache.Fingerprint(&resolved)
	if p.store != nil {
		if payload, ok := p.store.Get(key); ok {
			var resp providers.Response
			if err := json.Unmarshal(payload, &resp); err == nil {
				resp.Cached = true
				logger.Debug("served from cache", "key", key)
				p.finish(span, start, &resolved, &resp, 0, true, nil)
				return &resp, nil
			}
			// An undecodable entry is poison; drop it and fall through.
			p.store.Invalidate(key)
		}
	}

	if err := p.admit(ctx, &resolved); err != nil {
		p.finish(span, start, &resolved, nil, 0, false, err)
		return nil, err
	}
	if p.concurrent != nil {
		defer p.concurrent.Release()
	}

	attempts := 0
	resp, err := retry.Do(ctx, p.config.RetryPolicy, providers.Classify,
		func(ctx context.Context) (*providers.Response, error) {
			attempts++
			return invoker.Invoke(ctx, &resolved)
		})

	retries := attempts - 1
	if err != nil {
		logger.Warn("request failed", "error", err, "attempts", attempts)
		p.finish(span, start, &resolved, nil, retries, false, err)
		return nil, err
	}

	resp.Provider = provider
	if resp.Model == "" {
		resp.Model = resolved.Model
	}

	if p.store != nil {
		ttl := resp.CacheTTL
		if ttl == 0 {
			ttl = p.config.CacheTTL
		}
		if ttl > 0 {
			if payload, err := json.Marshal(resp); err == nil {
				p.store.Put(key, payload, ttl)
			}
		}
	}

	logger.Debug("request completed",
		"duration", time.Since(start),
		"retries", retries,
		"tokens", resp.Usage.TotalTokens)
	p.finish(span, start, &resolved, resp, retries, false, nil)
	return resp, nil
}

// StreamChat establishes a streaming completion. Admission matches
// Chat, but the cache is bypassed and retries cover only stream
// establishment: chunks already delivered cannot be unwound.
func (p *Pipeline) StreamChat(ctx context.Context, req *providers.ChatRequest) (<-chan *providers.StreamChunk, error) {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "pipeline.stream_chat")
	defer span.End()

	if err := validate(req); err != nil {
		p.finish(span, start, req, nil, 0, false, err)
		return nil, err
	}

	provider := req.Provider
	if provider == "" {
		provider = providers.DetectProvider(req.Model, p.config.DefaultProvider)
	}
	invoker, ok := p.invokers[provider]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
		p.finish(span, start, req, nil, 0, false, err)
		return nil, err
	}

	resolved := *req
	resolved.Provider = provider
	tracing.SetRequestAttributes(span, logging.RequestID(ctx), provider, resolved.Model)

	if err := p.admit(ctx, &resolved); err != nil {
		p.finish(span, start, &resolved, nil, 0, false, err)
		return nil, err
	}

	attempts := 0
	chunks, err := retry.Do(ctx, p.config.RetryPolicy, providers.Classify,
		func(ctx context.Context) (<-chan *providers.StreamChunk, error) {
			attempts++
			return invoker.InvokeStream(ctx, &resolved)
		})

	if err != nil {
		if p.concurrent != nil {
			p.concurrent.Release()
		}
		p.finish(span, start, &resolved, nil, attempts-1, false, err)
		return nil, err
	}

	// Release the concurrency slot when the stream drains.
	out := make(chan *providers.StreamChunk)
	go func() {
		defer close(out)
		if p.concurrent != nil {
			defer p.concurrent.Release()
		}

		var streamErr error
		var usage providers.TokenUsage
		for chunk := range chunks {
			if chunk.Err != nil {
				streamErr = chunk.Err
			}
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				streamErr = ctx.Err()
				p.recordStream(&resolved, start, attempts-1, usage, streamErr)
				return
			}
		}
		p.recordStream(&resolved, start, attempts-1, usage, streamErr)
	}()

	return out, nil
}

// ConfigureLimit installs a rate limit at runtime.
func (p *Pipeline) ConfigureLimit(key ratelimit.Key, rate, burst float64) error {
	if p.limiter == nil {
		return errors.New("rate limiting is disabled")
	}
	return p.limiter.Configure(key, rate, burst)
}

// InvalidateCache drops the cached response for a specific request.
func (p *Pipeline) InvalidateCache(req *providers.ChatRequest) bool {
	if p.store == nil {
		return false
	}
	return p.store.Invalidate(cache.Fingerprint(req))
}

// admit takes a concurrency slot and rate limit tokens for req. On a
// rate limit error the already-taken concurrency slot is returned.
func (p *Pipeline) admit(ctx context.Context, req *providers.ChatRequest) error {
	if p.concurrent != nil {
		if err := p.concurrent.Acquire(ctx); err != nil {
			return err
		}
	}

	if p.limiter == nil {
		return nil
	}

	acquireCtx := ctx
	if p.config.AcquireMaxWait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.config.AcquireMaxWait)
		defer cancel()
	}

	key := ratelimit.Key{Provider: req.Provider, Model: req.Model}
	if err := p.limiter.Acquire(acquireCtx, key, 1); err != nil {
		if p.concurrent != nil {
			p.concurrent.Release()
		}
		// The acquire deadline belongs to this layer; surface it as a
		// limiter timeout rather than a generic context error.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			deficit, retryAfter := p.limiter.Shortfall(key, 1)
			return &ratelimit.TimeoutError{Key: key, Deficit: deficit, RetryAfter: retryAfter}
		}
		return err
	}
	return nil
}

// errorKind maps err to its stable metrics label, recognizing limiter
// timeouts that the providers package cannot know about.
func errorKind(err error) string {
	if err == nil {
		return ""
	}
	var limiterTimeout *ratelimit.TimeoutError
	if errors.As(err, &limiterTimeout) {
		return "rate_limit_timeout"
	}
	if errors.Is(err, ErrUnknownProvider) {
		return "unknown_provider"
	}
	return providers.ErrorKind(err)
}

// finish emits the single telemetry sample for a request and closes
// out the span.
func (p *Pipeline) finish(span trace.Span, start time.Time, req *providers.ChatRequest, resp *providers.Response, retries int, cached bool, err error) {
	kind := errorKind(err)
	tracing.SetError(span, err, kind)

	sample := metrics.Sample{
		Duration:  time.Since(start),
		ErrorKind: kind,
		Cached:    cached,
		Retries:   retries,
	}
	if req != nil {
		sample.Provider = req.Provider
		sample.Model = req.Model
	}
	if resp != nil {
		// A cache hit consumes no provider tokens; counting the stored
		// usage again would inflate the totals on every hit.
		if !cached {
			sample.PromptTokens = resp.Usage.PromptTokens
			sample.CompletionTokens = resp.Usage.CompletionTokens
		}
		tracing.SetOutcomeAttributes(span, cached, retries,
			sample.PromptTokens, sample.CompletionTokens)
	}

	if p.collector != nil {
		p.collector.Record(sample)
	}
}

// recordStream emits the telemetry sample for a drained stream.
func (p *Pipeline) recordStream(req *providers.ChatRequest, start time.Time, retries int, usage providers.TokenUsage, err error) {
	if p.collector == nil {
		return
	}
	p.collector.Record(metrics.Sample{
		Provider:         req.Provider,
		Model:            req.Model,
		Duration:         time.Since(start),
		ErrorKind:        errorKind(err),
		Retries:          retries,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
	})
}
