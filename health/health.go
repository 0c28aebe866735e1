// Package health runs named, independently-failing probes and aggregates
// them into one overall status. A probe that panics is reported as unhealthy
// with the panic text; it never aborts the other probes.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/applyflow/telemetry/common/logger"
)

// Status of one probe or of the whole system.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// ProbeFunc is one health check: healthy yes/no plus a human-readable
// message.
type ProbeFunc func(ctx context.Context) (bool, string)

// Result is the outcome of one probe run.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Report aggregates every probe's result.
type Report struct {
	OverallStatus Status            `json:"overall_status"`
	Checks        map[string]Result `json:"checks"`
	CheckedAt     time.Time         `json:"checked_at"`
}

// Healthy reports whether every registered probe passed.
func (r Report) Healthy() bool {
	return r.OverallStatus == StatusHealthy
}

// Registry holds named probes. Register during startup; RunChecks is safe
// to call concurrently afterwards.
type Registry struct {
	mu     sync.RWMutex
	probes map[string]ProbeFunc
	log    *logger.Logger
}

// NewRegistry builds an empty probe registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Instance()
	}
	return &Registry{
		probes: make(map[string]ProbeFunc),
		log:    log,
	}
}

// Register adds or replaces a named probe.
func (r *Registry) Register(name string, probe ProbeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = probe
}

// Names lists registered probes in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.probes))
	for name := range r.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunChecks executes every probe and aggregates the results. One failing or
// panicking probe never prevents the rest from running.
func (r *Registry) RunChecks(ctx context.Context) Report {
	r.mu.RLock()
	probes := make(map[string]ProbeFunc, len(r.probes))
	for name, probe := range r.probes {
		probes[name] = probe
	}
	r.mu.RUnlock()

	report := Report{
		OverallStatus: StatusHealthy,
		Checks:        make(map[string]Result, len(probes)),
		CheckedAt:     time.Now(),
	}

	for name, probe := range probes {
		result := r.runProbe(ctx, name, probe)
		report.Checks[name] = result
		if result.Status != StatusHealthy {
			report.OverallStatus = StatusUnhealthy
		}
	}
	return report
}

func (r *Registry) runProbe(ctx context.Context, name string, probe ProbeFunc) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("health probe panicked",
				logger.String("probe", name),
				logger.String("panic", fmt.Sprintf("%v", rec)),
			)
			result = Result{Status: StatusUnhealthy, Message: fmt.Sprintf("probe panicked: %v", rec)}
		}
	}()

	healthy, message := probe(ctx)
	if healthy {
		return Result{Status: StatusHealthy, Message: message}
	}
	return Result{Status: StatusUnhealthy, Message: message}
}
