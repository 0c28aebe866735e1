// Package metrics aggregates request counters, timers and custom numeric
// series in bounded in-memory structures. Running request stats are strictly
// additive; only windowed queries scan retained points.
package metrics

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/applyflow/telemetry/common/logger"
)

// DefaultRetention is how long raw points and error events are kept when no
// retention window is configured.
const DefaultRetention = time.Hour

// maxRecentErrors bounds the error ring independently of retention so a
// crash loop cannot grow it without bound between cleanups.
const maxRecentErrors = 1000

// Point is one sample of a named custom series.
type Point struct {
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// RequestStats is the additive per-path aggregate.
type RequestStats struct {
	TotalRequests   int64            `json:"total_requests"`
	TotalErrors     int64            `json:"total_errors"`
	TotalDurationMS float64          `json:"total_duration_ms"`
	AvgDurationMS   float64          `json:"avg_duration_ms"`
	MinDurationMS   float64          `json:"min_duration_ms"`
	MaxDurationMS   float64          `json:"max_duration_ms"`
	StatusCodes     map[int]int64    `json:"status_codes"`
	Methods         map[string]int64 `json:"methods"`
}

// Summary describes a custom series over a query window.
type Summary struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Avg    float64 `json:"avg"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Latest float64 `json:"latest"`
}

// ErrorEvent is one recorded application error.
type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	ErrorType string    `json:"error_type"`
	Message   string    `json:"message,omitempty"`
}

// ErrorSummary aggregates recorded errors over a query window.
type ErrorSummary struct {
	TotalErrors int            `json:"total_errors"`
	ByType      map[string]int `json:"by_type"`
	ByPath      map[string]int `json:"by_path"`
	Recent      []ErrorEvent   `json:"recent"`
}

type pathStats struct {
	mu    sync.Mutex
	stats RequestStats
}

type series struct {
	mu     sync.Mutex
	points []Point
}

// Collector is the thread-safe metrics aggregator. Locking is scoped per
// path and per series; the maps themselves are guarded by short read-write
// locks so no single global lock serializes the hot path.
type Collector struct {
	retention time.Duration
	log       *logger.Logger

	requestsMu sync.RWMutex
	requests   map[string]*pathStats

	seriesMu sync.RWMutex
	series   map[string]*series

	errorsMu sync.Mutex
	errors   []ErrorEvent
}

// Option configures a Collector.
type Option func(c *Collector)

// WithRetention sets the retention window for raw points and error events.
func WithRetention(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.retention = d
		}
	}
}

// WithLogger sets the logger used for cleanup reporting.
func WithLogger(log *logger.Logger) Option {
	return func(c *Collector) {
		c.log = log
	}
}

// NewCollector builds an empty collector.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		retention: DefaultRetention,
		log:       logger.Instance(),
		requests:  make(map[string]*pathStats),
		series:    make(map[string]*series),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) pathStats(path string) *pathStats {
	c.requestsMu.RLock()
	ps := c.requests[path]
	c.requestsMu.RUnlock()
	if ps != nil {
		return ps
	}

	c.requestsMu.Lock()
	defer c.requestsMu.Unlock()
	if ps = c.requests[path]; ps == nil {
		ps = &pathStats{stats: RequestStats{
			StatusCodes: make(map[int]int64),
			Methods:     make(map[string]int64),
		}}
		c.requests[path] = ps
	}
	return ps
}

// RecordRequest feeds one completed request into the per-path aggregate.
func (c *Collector) RecordRequest(method, path string, status int, duration time.Duration) {
	ms := float64(duration) / float64(time.Millisecond)
	ps := c.pathStats(path)

	ps.mu.Lock()
	defer ps.mu.Unlock()
	s := &ps.stats
	s.TotalRequests++
	s.TotalDurationMS += ms
	s.AvgDurationMS = s.TotalDurationMS / float64(s.TotalRequests)
	if s.TotalRequests == 1 || ms < s.MinDurationMS {
		s.MinDurationMS = ms
	}
	if ms > s.MaxDurationMS {
		s.MaxDurationMS = ms
	}
	if status >= 400 {
		s.TotalErrors++
	}
	s.StatusCodes[status]++
	s.Methods[method]++
}

// RecordError records an application error event alongside the request
// aggregates.
func (c *Collector) RecordError(method, path, errorType, message string) {
	ev := ErrorEvent{
		Timestamp: time.Now(),
		Method:    method,
		Path:      path,
		ErrorType: errorType,
		Message:   message,
	}

	c.errorsMu.Lock()
	defer c.errorsMu.Unlock()
	c.errors = append(c.errors, ev)
	if len(c.errors) > maxRecentErrors {
		c.errors = append(c.errors[:0], c.errors[len(c.errors)-maxRecentErrors:]...)
	}
}

// RecordCustom appends a sample to a named series. Business modules use this
// for domain counters (jobs scraped, documents generated, tokens spent...).
func (c *Collector) RecordCustom(name string, value float64, labels map[string]string) {
	c.seriesMu.RLock()
	sr := c.series[name]
	c.seriesMu.RUnlock()
	if sr == nil {
		c.seriesMu.Lock()
		if sr = c.series[name]; sr == nil {
			sr = &series{}
			c.series[name] = sr
		}
		c.seriesMu.Unlock()
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.points = append(sr.points, Point{
		Timestamp: time.Now(),
		Value:     value,
		Labels:    maps.Clone(labels),
	})
}

// RequestMetrics returns a snapshot of one path's aggregate.
func (c *Collector) RequestMetrics(path string) (RequestStats, bool) {
	c.requestsMu.RLock()
	ps := c.requests[path]
	c.requestsMu.RUnlock()
	if ps == nil {
		return RequestStats{}, false
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	return snapshotStats(&ps.stats), true
}

// AllRequestMetrics returns a snapshot of every path's aggregate.
func (c *Collector) AllRequestMetrics() map[string]RequestStats {
	c.requestsMu.RLock()
	paths := make([]string, 0, len(c.requests))
	holders := make([]*pathStats, 0, len(c.requests))
	for p, ps := range c.requests {
		paths = append(paths, p)
		holders = append(holders, ps)
	}
	c.requestsMu.RUnlock()

	out := make(map[string]RequestStats, len(paths))
	for i, ps := range holders {
		ps.mu.Lock()
		out[paths[i]] = snapshotStats(&ps.stats)
		ps.mu.Unlock()
	}
	return out
}

func snapshotStats(s *RequestStats) RequestStats {
	out := *s
	out.StatusCodes = maps.Clone(s.StatusCodes)
	out.Methods = maps.Clone(s.Methods)
	return out
}

// SeriesSummary scans a named series' retained points newer than the window
// and summarizes them. ok is false when the series does not exist.
func (c *Collector) SeriesSummary(name string, window time.Duration) (Summary, bool) {
	c.seriesMu.RLock()
	sr := c.series[name]
	c.seriesMu.RUnlock()
	if sr == nil {
		return Summary{}, false
	}

	cutoff := time.Now().Add(-window)
	var sum Summary

	sr.mu.Lock()
	defer sr.mu.Unlock()
	for _, p := range sr.points {
		if p.Timestamp.Before(cutoff) {
			continue
		}
		if sum.Count == 0 || p.Value < sum.Min {
			sum.Min = p.Value
		}
		if sum.Count == 0 || p.Value > sum.Max {
			sum.Max = p.Value
		}
		sum.Count++
		sum.Sum += p.Value
		sum.Latest = p.Value
	}
	if sum.Count > 0 {
		sum.Avg = sum.Sum / float64(sum.Count)
	}
	return sum, true
}

// SeriesNames lists the custom series recorded so far.
func (c *Collector) SeriesNames() []string {
	c.seriesMu.RLock()
	defer c.seriesMu.RUnlock()
	names := make([]string, 0, len(c.series))
	for name := range c.series {
		names = append(names, name)
	}
	return names
}

// ErrorsSummary aggregates error events recorded within the window.
func (c *Collector) ErrorsSummary(window time.Duration) ErrorSummary {
	cutoff := time.Now().Add(-window)
	sum := ErrorSummary{
		ByType: make(map[string]int),
		ByPath: make(map[string]int),
	}

	c.errorsMu.Lock()
	defer c.errorsMu.Unlock()
	for _, ev := range c.errors {
		if ev.Timestamp.Before(cutoff) {
			continue
		}
		sum.TotalErrors++
		sum.ByType[ev.ErrorType]++
		sum.ByPath[ev.Path]++
		sum.Recent = append(sum.Recent, ev)
	}
	return sum
}

// CleanupOldMetrics drops points and error events older than the retention
// window. Safe to call concurrently with recording; per-series locks keep
// readers from ever observing a torn state.
func (c *Collector) CleanupOldMetrics() {
	cutoff := time.Now().Add(-c.retention)
	var dropped int

	c.seriesMu.RLock()
	all := make([]*series, 0, len(c.series))
	for _, sr := range c.series {
		all = append(all, sr)
	}
	c.seriesMu.RUnlock()

	for _, sr := range all {
		sr.mu.Lock()
		kept := sr.points[:0]
		for _, p := range sr.points {
			if p.Timestamp.Before(cutoff) {
				dropped++
				continue
			}
			kept = append(kept, p)
		}
		sr.points = kept
		sr.mu.Unlock()
	}

	c.errorsMu.Lock()
	keptErrs := c.errors[:0]
	for _, ev := range c.errors {
		if ev.Timestamp.Before(cutoff) {
			dropped++
			continue
		}
		keptErrs = append(keptErrs, ev)
	}
	c.errors = keptErrs
	c.errorsMu.Unlock()

	if dropped > 0 {
		c.log.Debug("metrics cleanup", logger.Int("dropped", dropped))
	}
}

// StartCleanup runs CleanupOldMetrics on the given interval until the
// context is canceled.
func (c *Collector) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.CleanupOldMetrics()
			}
		}
	}()
}

// Export dumps the collector's full state: per-path request aggregates and
// the summaries of every custom series over the retention window.
func (c *Collector) Export() map[string]any {
	custom := make(map[string]Summary)
	for _, name := range c.SeriesNames() {
		if sum, ok := c.SeriesSummary(name, c.retention); ok {
			custom[name] = sum
		}
	}
	return map[string]any{
		"requests":       c.AllRequestMetrics(),
		"custom_metrics": custom,
		"errors":         c.ErrorsSummary(c.retention),
	}
}
