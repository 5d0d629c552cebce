package metrics

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Export formats selectable on the stats endpoint.
const (
	FormatPrometheus = "prometheus"
	FormatJSON       = "json"
	FormatStatsD     = "statsd"
)

// ExportPrometheus renders the aggregates in the Prometheus text
// exposition format. The same Snapshot feeds every export format, so
// totals here always agree with ExportJSON and ExportStatsD.
func (c *Collector) ExportPrometheus() string {
	snap := c.Stats()
	ns := c.namespace

	var b strings.Builder

	writeHeader := func(name, help, typ string) {
		fmt.Fprintf(&b, "# HELP %s_%s %s\n", ns, name, help)
		fmt.Fprintf(&b, "# TYPE %s_%s %s\n", ns, name, typ)
	}

	writeHeader("requests_total", "Total number of requests processed", "counter")
	for _, k := range snap.Keys {
		fmt.Fprintf(&b, "%s_requests_total{provider=%q,model=%q,status=\"success\"} %d\n",
			ns, k.Provider, k.Model, k.Successes)
		for kind, n := range k.FailuresByKind {
			fmt.Fprintf(&b, "%s_requests_total{provider=%q,model=%q,status=%q} %d\n",
				ns, k.Provider, k.Model, kind, n)
		}
	}

	writeHeader("cache_hits_total", "Responses served from the cache", "counter")
	for _, k := range snap.Keys {
		fmt.Fprintf(&b, "%s_cache_hits_total{provider=%q,model=%q} %d\n",
			ns, k.Provider, k.Model, k.CacheHits)
	}

	writeHeader("retries_total", "Re-invocations beyond the first attempt", "counter")
	for _, k := range snap.Keys {
		fmt.Fprintf(&b, "%s_retries_total{provider=%q,model=%q} %d\n",
			ns, k.Provider, k.Model, k.Retries)
	}

	writeHeader("tokens_total", "Total number of tokens processed", "counter")
	for _, k := range snap.Keys {
		fmt.Fprintf(&b, "%s_tokens_total{provider=%q,model=%q,type=\"prompt\"} %d\n",
			ns, k.Provider, k.Model, k.PromptTokens)
		fmt.Fprintf(&b, "%s_tokens_total{provider=%q,model=%q,type=\"completion\"} %d\n",
			ns, k.Provider, k.Model, k.CompletionTokens)
	}

	writeHeader("request_duration_seconds", "Duration of requests in seconds", "summary")
	for _, k := range snap.Keys {
		fmt.Fprintf(&b, "%s_request_duration_seconds_count{provider=%q,model=%q} %d\n",
			ns, k.Provider, k.Model, k.Duration.Count)
		fmt.Fprintf(&b, "%s_request_duration_seconds_sum{provider=%q,model=%q} %g\n",
			ns, k.Provider, k.Model, k.Duration.Sum.Seconds())
	}

	writeHeader("request_duration_seconds_min", "Shortest observed request", "gauge")
	for _, k := range snap.Keys {
		fmt.Fprintf(&b, "%s_request_duration_seconds_min{provider=%q,model=%q} %g\n",
			ns, k.Provider, k.Model, k.Duration.Min.Seconds())
	}

	writeHeader("request_duration_seconds_max", "Longest observed request", "gauge")
	for _, k := range snap.Keys {
		fmt.Fprintf(&b, "%s_request_duration_seconds_max{provider=%q,model=%q} %g\n",
			ns, k.Provider, k.Model, k.Duration.Max.Seconds())
	}

	writeHeader("uptime_seconds", "Time since the collector started", "gauge")
	fmt.Fprintf(&b, "%s_uptime_seconds %g\n", ns, time.Since(snap.StartedAt).Seconds())

	return b.String()
}

// jsonExport is the envelope for ExportJSON.
type jsonExport struct {
	StartedAt     time.Time  `json:"started_at"`
	UptimeSeconds float64    `json:"uptime_seconds"`
	Totals        KeyStats   `json:"totals"`
	Keys          []KeyStats `json:"keys"`
}

// ExportJSON renders the aggregates as an indented JSON document.
func (c *Collector) ExportJSON() ([]byte, error) {
	snap := c.Stats()
	return json.MarshalIndent(jsonExport{
		StartedAt:     snap.StartedAt,
		UptimeSeconds: time.Since(snap.StartedAt).Seconds(),
		Totals:        snap.Totals(),
		Keys:          snap.Keys,
	}, "", "  ")
}

// ExportStatsD renders the aggregates as StatsD metric lines, one per
// line, with dotted metric paths:
//
//	bulwark.openai.gpt-4.requests:42|c
//	bulwark.openai.gpt-4.duration.mean_ms:833|ms
func (c *Collector) ExportStatsD() string {
	snap := c.Stats()
	ns := c.namespace

	var b strings.Builder
	for _, k := range snap.Keys {
		prefix := fmt.Sprintf("%s.%s.%s", ns, statsdSegment(k.Provider), statsdSegment(k.Model))

		fmt.Fprintf(&b, "%s.requests:%d|c\n", prefix, k.Requests)
		fmt.Fprintf(&b, "%s.successes:%d|c\n", prefix, k.Successes)
		fmt.Fprintf(&b, "%s.failures:%d|c\n", prefix, k.Failures)
		fmt.Fprintf(&b, "%s.cache_hits:%d|c\n", prefix, k.CacheHits)
		fmt.Fprintf(&b, "%s.retries:%d|c\n", prefix, k.Retries)
		fmt.Fprintf(&b, "%s.tokens.prompt:%d|c\n", prefix, k.PromptTokens)
		fmt.Fprintf(&b, "%s.tokens.completion:%d|c\n", prefix, k.CompletionTokens)
		if k.Duration.Count > 0 {
			fmt.Fprintf(&b, "%s.duration.mean_ms:%d|ms\n", prefix, k.Duration.Mean().Milliseconds())
			fmt.Fprintf(&b, "%s.duration.max_ms:%d|ms\n", prefix, k.Duration.Max.Milliseconds())
		}
	}
	return b.String()
}

// statsdSegment makes a label safe for use inside a dotted StatsD path.
func statsdSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
