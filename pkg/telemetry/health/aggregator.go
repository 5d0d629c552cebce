package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status is the overall system verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckFunc probes one dependency. It returns nil when the dependency
// is usable.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of a single dependency probe.
type CheckResult struct {
	// Status is "ok" or "unhealthy"
	Status string `json:"status"`

	// Required marks a dependency the instance cannot serve without
	Required bool `json:"required,omitempty"`

	// Message carries the probe error for unhealthy results
	Message string `json:"message,omitempty"`

	// Duration is how long the probe took
	Duration time.Duration `json:"duration_ms,omitempty"`
}

// Report is the aggregated health view.
type Report struct {
	// Status is the overall verdict
	Status Status `json:"status"`

	// ErrorRate is the rolling-window failure fraction
	ErrorRate float64 `json:"error_rate"`

	// WindowRequests is how many requests the window holds
	WindowRequests int64 `json:"window_requests"`

	// UptimeSeconds is the time since telemetry started
	UptimeSeconds float64 `json:"uptime_seconds"`

	// Checks holds per-dependency probe results
	Checks map[string]CheckResult `json:"checks,omitempty"`

	// AllRequiredAvailable is false when any required dependency probe
	// failed
	AllRequiredAvailable bool `json:"all_required_available"`

	// Issues lists what is wrong, empty when healthy
	Issues []string `json:"issues,omitempty"`

	// Timestamp is when the report was assembled
	Timestamp time.Time `json:"timestamp"`
}

// Telemetry is the slice of the metrics collector the aggregator reads.
type Telemetry interface {
	WindowErrorRate() float64
	WindowRequests() int64
	Uptime() time.Duration
}

// Config tunes an Aggregator.
type Config struct {
	// ErrorRateThreshold is the window error rate at or above which the
	// system is unhealthy. Defaults to 0.5.
	ErrorRateThreshold float64

	// MinWindowRequests is the minimum number of windowed requests
	// before the error rate is trusted. Below it the rate is ignored,
	// so a single early failure cannot flip readiness. Defaults to 10.
	MinWindowRequests int64

	// CheckTimeout bounds each dependency probe. Defaults to 5s.
	CheckTimeout time.Duration
}

// registeredCheck pairs a probe with its severity.
type registeredCheck struct {
	fn       CheckFunc
	required bool
}

// Aggregator combines telemetry-derived readiness with dependency
// probes.
type Aggregator struct {
	telemetry Telemetry
	config    Config

	mu     sync.RWMutex
	checks map[string]registeredCheck
}

// NewAggregator creates an aggregator reading from telemetry.
func NewAggregator(telemetry Telemetry, cfg Config) *Aggregator {
	if cfg.ErrorRateThreshold <= 0 {
		cfg.ErrorRateThreshold = 0.5
	}
	if cfg.MinWindowRequests <= 0 {
		cfg.MinWindowRequests = 10
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 5 * time.Second
	}

	return &Aggregator{
		telemetry: telemetry,
		config:    cfg,
		checks:    make(map[string]registeredCheck),
	}
}

// RegisterCheck installs or replaces a named optional dependency probe.
// An optional probe failing degrades the instance but keeps it in
// rotation.
func (a *Aggregator) RegisterCheck(name string, check CheckFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checks[name] = registeredCheck{fn: check}
}

// RegisterRequiredCheck installs or replaces a named required
// dependency probe. A required probe failing makes readiness unhealthy
// and takes the instance out of rotation.
func (a *Aggregator) RegisterRequiredCheck(name string, check CheckFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checks[name] = registeredCheck{fn: check, required: true}
}

// UnregisterCheck removes a named dependency probe.
func (a *Aggregator) UnregisterCheck(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.checks, name)
}

// Liveness reports whether the process is running. It is deliberately
// trivial: a process drowning in upstream failures is still alive, and
// restarting it would not help.
func (a *Aggregator) Liveness() Report {
	return Report{
		Status:               StatusHealthy,
		AllRequiredAvailable: true,
		Timestamp:            time.Now(),
	}
}

// Readiness assembles the full aggregated report: rolling error rate
// plus every registered dependency probe, run concurrently.
func (a *Aggregator) Readiness(ctx context.Context) Report {
	report := Report{
		Status:               StatusHealthy,
		AllRequiredAvailable: true,
		Timestamp:            time.Now(),
	}

	if a.telemetry != nil {
		report.ErrorRate = a.telemetry.WindowErrorRate()
		report.WindowRequests = a.telemetry.WindowRequests()
		report.UptimeSeconds = a.telemetry.Uptime().Seconds()
	}

	report.Checks = a.runChecks(ctx)
	for name, result := range report.Checks {
		if result.Status == "ok" {
			continue
		}
		report.Issues = append(report.Issues,
			fmt.Sprintf("dependency %s: %s", name, result.Message))
		if result.Required {
			report.Status = StatusUnhealthy
			report.AllRequiredAvailable = false
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}

	if report.WindowRequests >= a.config.MinWindowRequests &&
		report.ErrorRate >= a.config.ErrorRateThreshold {
		report.Status = StatusUnhealthy
		report.Issues = append(report.Issues,
			fmt.Sprintf("error rate %.2f over the last window exceeds threshold %.2f",
				report.ErrorRate, a.config.ErrorRateThreshold))
	}

	return report
}

// runChecks executes every registered probe concurrently, each under
// its own timeout.
func (a *Aggregator) runChecks(ctx context.Context) map[string]CheckResult {
	a.mu.RLock()
	checks := make(map[string]registeredCheck, len(a.checks))
	for name, check := range a.checks {
		checks[name] = check
	}
	a.mu.RUnlock()

	if len(checks) == 0 {
		return nil
	}

	results := make(map[string]CheckResult, len(checks))
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check registeredCheck) {
			defer wg.Done()
			result := a.runCheck(ctx, check.fn)
			result.Required = check.required

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	return results
}

func (a *Aggregator) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, a.config.CheckTimeout)
	defer cancel()

	start := time.Now()
	errCh := make(chan error, 1)
	go func() {
		errCh <- check(checkCtx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return CheckResult{
				Status:   "unhealthy",
				Message:  err.Error(),
				Duration: time.Since(start),
			}
		}
		return CheckResult{Status: "ok", Duration: time.Since(start)}

	case <-checkCtx.Done():
		return CheckResult{
			Status:   "unhealthy",
			Message:  "probe timeout",
			Duration: time.Since(start),
		}
	}
}

// HTTPStatus maps a verdict to a response code. Degraded still serves
// traffic; only unhealthy sheds it.
func HTTPStatus(s Status) int {
	if s == StatusUnhealthy {
		return 503
	}
	return 200
}
