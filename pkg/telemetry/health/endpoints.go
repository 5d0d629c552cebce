package health

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// VersionInfo contains build and version information.
type VersionInfo struct {
	// Version is the semantic version (e.g., "1.0.0")
	Version string `json:"version"`

	// Commit is the git commit hash
	Commit string `json:"commit"`

	// BuildTime is when the binary was built
	BuildTime string `json:"build_time"`

	// GoVersion is the Go version used to build
	GoVersion string `json:"go_version"`
}

func writeReport(w http.ResponseWriter, r *http.Request, report Report) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(report.Status))
	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(report)
	}
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// LivenessHandler serves the liveness probe. It always answers 200 for
// a running process.
func (a *Aggregator) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		writeReport(w, r, a.Liveness())
	}
}

// ReadinessHandler serves the readiness probe.
//
// Returns:
//   - 200 OK: healthy or degraded, the system can serve traffic
//   - 503 Service Unavailable: unhealthy, the error rate is over
//     threshold
func (a *Aggregator) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		writeReport(w, r, a.Readiness(r.Context()))
	}
}

// VersionHandler serves build information.
func VersionHandler(version, commit, buildTime string) http.HandlerFunc {
	info := VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_ = json.NewEncoder(w).Encode(info)
		}
	}
}

// Register mounts the standard probe paths on mux:
//
//   - /live: liveness probe
//   - /ready: readiness probe
//   - /health: full aggregated report (same as /ready)
//   - /version: build information
func Register(mux *http.ServeMux, a *Aggregator, version, commit, buildTime string) {
	mux.HandleFunc("/live", a.LivenessHandler())
	mux.HandleFunc("/ready", a.ReadinessHandler())
	mux.HandleFunc("/health", a.ReadinessHandler())
	mux.HandleFunc("/version", VersionHandler(version, commit, buildTime))
}
