package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promMetrics mirrors samples into client_golang collectors so scrapes
// get histogram buckets and exposition-format details the hand-rolled
// aggregates do not track.
type promMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	cacheHitsTotal  *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
}

func newPromMetrics(cfg Config, registry *prometheus.Registry) *promMetrics {
	pm := &promMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"provider", "model", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of requests in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"provider", "model"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "tokens_total",
				Help:      "Total number of tokens processed",
			},
			[]string{"provider", "model", "type"},
		),

		cacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "cache_hits_total",
				Help:      "Responses served from the cache",
			},
			[]string{"provider", "model"},
		),

		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "retries_total",
				Help:      "Re-invocations beyond the first attempt",
			},
			[]string{"provider", "model"},
		),
	}

	registry.MustRegister(
		pm.requestsTotal,
		pm.requestDuration,
		pm.tokensTotal,
		pm.cacheHitsTotal,
		pm.retriesTotal,
	)

	return pm
}

func (pm *promMetrics) record(provider, model string, s Sample) {
	status := "success"
	if s.ErrorKind != "" {
		status = s.ErrorKind
	}
	pm.requestsTotal.WithLabelValues(provider, model, status).Inc()
	pm.requestDuration.WithLabelValues(provider, model).Observe(s.Duration.Seconds())

	if s.PromptTokens > 0 {
		pm.tokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(s.PromptTokens))
	}
	if s.CompletionTokens > 0 {
		pm.tokensTotal.WithLabelValues(provider, model, "completion").Add(float64(s.CompletionTokens))
	}
	if s.Cached {
		pm.cacheHitsTotal.WithLabelValues(provider, model).Inc()
	}
	if s.Retries > 0 {
		pm.retriesTotal.WithLabelValues(provider, model).Add(float64(s.Retries))
	}
}

// Handler serves the collector's Prometheus registry in the standard
// exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
