package metrics

import (
	"net/http"
)

// StatsHandler serves the collector's own aggregates. The format query
// parameter selects the output: "json" (default), "prometheus", or
// "statsd". The registry-backed exposition endpoint is served
// separately by Handler().
func (c *Collector) StatsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := r.URL.Query().Get("format")
		if format == "" {
			format = FormatJSON
		}

		switch format {
		case FormatJSON:
			body, err := c.ExportJSON()
			if err != nil {
				http.Error(w, "failed to encode stats", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(body)

		case FormatPrometheus:
			w.Header().Set("Content-Type", "text/plain; version=0.0.4")
			w.Write([]byte(c.ExportPrometheus()))

		case FormatStatsD:
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte(c.ExportStatsD()))

		default:
			http.Error(w, "unknown format "+format, http.StatusBadRequest)
		}
	})
}
