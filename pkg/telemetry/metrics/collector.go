package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UnknownLabel is the aggregation key component used when a sample
// arrives without a provider or model. Folding malformed samples into a
// fixed label keeps totals accurate and metric cardinality bounded.
const UnknownLabel = "unknown"

// Sample describes one completed request.
type Sample struct {
	// Provider is the provider name, empty if never resolved
	Provider string

	// Model is the model identifier, empty if never resolved
	Model string

	// Duration is the wall-clock time of the whole attempt sequence
	Duration time.Duration

	// ErrorKind is the stable failure label, empty for success
	ErrorKind string

	// Cached is true when the response came from the cache
	Cached bool

	// Retries is the number of re-invocations beyond the first attempt
	Retries int

	// PromptTokens and CompletionTokens are the provider-reported usage
	PromptTokens     int
	CompletionTokens int
}

// DurationStats summarizes observed request durations for one key.
type DurationStats struct {
	// Count is the number of observations
	Count int64 `json:"count"`

	// Sum is the total observed duration
	Sum time.Duration `json:"sum"`

	// Min and Max are the observed extremes, zero when Count is zero
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
}

// Mean returns Sum/Count, zero when nothing was observed.
func (d DurationStats) Mean() time.Duration {
	if d.Count == 0 {
		return 0
	}
	return d.Sum / time.Duration(d.Count)
}

// KeyStats is the aggregate for one (provider, model) pair.
type KeyStats struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`

	Requests  int64 `json:"requests"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
	CacheHits int64 `json:"cache_hits"`
	Retries   int64 `json:"retries"`

	// FailuresByKind breaks Failures down by error kind
	FailuresByKind map[string]int64 `json:"failures_by_kind,omitempty"`

	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`

	Duration DurationStats `json:"duration"`
}

// Snapshot is a point-in-time copy of every aggregate.
type Snapshot struct {
	// StartedAt is when the collector was created or last reset
	StartedAt time.Time `json:"started_at"`

	// Keys holds one aggregate per (provider, model), sorted by
	// provider then model for stable output
	Keys []KeyStats `json:"keys"`
}

// Totals sums every key's aggregate into one KeyStats with empty
// provider and model fields.
func (s Snapshot) Totals() KeyStats {
	var t KeyStats
	for _, k := range s.Keys {
		t.Requests += k.Requests
		t.Successes += k.Successes
		t.Failures += k.Failures
		t.CacheHits += k.CacheHits
		t.Retries += k.Retries
		t.PromptTokens += k.PromptTokens
		t.CompletionTokens += k.CompletionTokens
		t.Duration.Count += k.Duration.Count
		t.Duration.Sum += k.Duration.Sum
		if k.Duration.Count > 0 {
			if t.Duration.Min == 0 || k.Duration.Min < t.Duration.Min {
				t.Duration.Min = k.Duration.Min
			}
			if k.Duration.Max > t.Duration.Max {
				t.Duration.Max = k.Duration.Max
			}
		}
	}
	return t
}

type sampleKey struct {
	provider string
	model    string
}

type aggregate struct {
	requests  int64
	successes int64
	failures  int64
	cacheHits int64
	retries   int64

	failuresByKind map[string]int64

	promptTokens     int64
	completionTokens int64

	duration DurationStats
}

// Config configures a Collector.
type Config struct {
	// Namespace prefixes every exported metric name. Defaults to
	// "bulwark".
	Namespace string

	// Window is the rolling period for WindowErrorRate. Defaults to
	// one minute.
	Window time.Duration

	// DurationBuckets overrides the Prometheus histogram buckets.
	DurationBuckets []float64
}

// Collector aggregates request samples. All methods are safe for
// concurrent use.
type Collector struct {
	mu         sync.RWMutex
	aggregates map[sampleKey]*aggregate
	startedAt  time.Time
	namespace  string

	windowRequests *slidingWindow
	windowFailures *slidingWindow

	registry *prometheus.Registry
	prom     *promMetrics
}

// NewCollector creates an empty collector. If registry is nil a private
// registry is created.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if cfg.Namespace == "" {
		cfg.Namespace = "bulwark"
	}
	if cfg.Window == 0 {
		cfg.Window = time.Minute
	}
	if len(cfg.DurationBuckets) == 0 {
		// LLM request latencies cluster between 100ms and 30s.
		cfg.DurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0}
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &Collector{
		aggregates:     make(map[sampleKey]*aggregate),
		startedAt:      time.Now(),
		namespace:      cfg.Namespace,
		windowRequests: newSlidingWindow(cfg.Window, cfg.Window/60),
		windowFailures: newSlidingWindow(cfg.Window, cfg.Window/60),
		registry:       registry,
		prom:           newPromMetrics(cfg, registry),
	}
}

// Record folds one sample into the aggregates.
func (c *Collector) Record(s Sample) {
	key := sampleKey{provider: s.Provider, model: s.Model}
	if key.provider == "" {
		key.provider = UnknownLabel
	}
	if key.model == "" {
		key.model = UnknownLabel
	}

	c.mu.Lock()
	agg, ok := c.aggregates[key]
	if !ok {
		agg = &aggregate{failuresByKind: make(map[string]int64)}
		c.aggregates[key] = agg
	}

	agg.requests++
	if s.ErrorKind == "" {
		agg.successes++
	} else {
		agg.failures++
		agg.failuresByKind[s.ErrorKind]++
	}
	if s.Cached {
		agg.cacheHits++
	}
	agg.retries += int64(s.Retries)
	agg.promptTokens += int64(s.PromptTokens)
	agg.completionTokens += int64(s.CompletionTokens)

	d := &agg.duration
	d.Count++
	d.Sum += s.Duration
	if d.Count == 1 || s.Duration < d.Min {
		d.Min = s.Duration
	}
	if s.Duration > d.Max {
		d.Max = s.Duration
	}
	c.mu.Unlock()

	c.windowRequests.add(1)
	if s.ErrorKind != "" {
		c.windowFailures.add(1)
	}

	c.prom.record(key.provider, key.model, s)
}

// Stats returns a copy of every aggregate, sorted for stable output.
func (c *Collector) Stats() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		StartedAt: c.startedAt,
		Keys:      make([]KeyStats, 0, len(c.aggregates)),
	}
	for key, agg := range c.aggregates {
		ks := KeyStats{
			Provider:         key.provider,
			Model:            key.model,
			Requests:         agg.requests,
			Successes:        agg.successes,
			Failures:         agg.failures,
			CacheHits:        agg.cacheHits,
			Retries:          agg.retries,
			PromptTokens:     agg.promptTokens,
			CompletionTokens: agg.completionTokens,
			Duration:         agg.duration,
		}
		if len(agg.failuresByKind) > 0 {
			ks.FailuresByKind = make(map[string]int64, len(agg.failuresByKind))
			for kind, n := range agg.failuresByKind {
				ks.FailuresByKind[kind] = n
			}
		}
		snap.Keys = append(snap.Keys, ks)
	}

	sort.Slice(snap.Keys, func(i, j int) bool {
		if snap.Keys[i].Provider != snap.Keys[j].Provider {
			return snap.Keys[i].Provider < snap.Keys[j].Provider
		}
		return snap.Keys[i].Model < snap.Keys[j].Model
	})
	return snap
}

// WindowErrorRate returns the failure fraction over the rolling window,
// zero when the window holds no requests.
func (c *Collector) WindowErrorRate() float64 {
	requests := c.windowRequests.sum()
	if requests == 0 {
		return 0
	}
	return float64(c.windowFailures.sum()) / float64(requests)
}

// WindowRequests returns the number of requests inside the rolling
// window.
func (c *Collector) WindowRequests() int64 {
	return c.windowRequests.sum()
}

// Uptime returns the time since the collector was created or last
// reset.
func (c *Collector) Uptime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.startedAt)
}

// Reset drops every aggregate and restarts the uptime clock. The
// Prometheus registry is not reset; Prometheus counters are cumulative
// by contract.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.aggregates = make(map[sampleKey]*aggregate)
	c.startedAt = time.Now()
	c.mu.Unlock()

	c.windowRequests.reset()
	c.windowFailures.reset()
}
