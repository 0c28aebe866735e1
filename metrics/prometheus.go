package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	descRequestsTotal = prometheus.NewDesc(
		"telemetry_requests_total",
		"Requests handled, by path.",
		[]string{"path"}, nil,
	)
	descRequestErrorsTotal = prometheus.NewDesc(
		"telemetry_request_errors_total",
		"Requests answered with a 4xx/5xx status, by path.",
		[]string{"path"}, nil,
	)
	descRequestDurationAvg = prometheus.NewDesc(
		"telemetry_request_duration_avg_ms",
		"Average request duration in milliseconds, by path.",
		[]string{"path"}, nil,
	)
	descRequestDurationMax = prometheus.NewDesc(
		"telemetry_request_duration_max_ms",
		"Maximum request duration in milliseconds, by path.",
		[]string{"path"}, nil,
	)
	descCustomLatest = prometheus.NewDesc(
		"telemetry_custom_metric",
		"Latest value of a custom series.",
		[]string{"name"}, nil,
	)
)

// bridge exposes the collector's snapshots in the Prometheus exposition
// format. Values are read at scrape time, so the bridge adds no work to the
// request hot path.
type bridge struct {
	collector *Collector
}

var _ prometheus.Collector = (*bridge)(nil)

func (b *bridge) Describe(ch chan<- *prometheus.Desc) {
	ch <- descRequestsTotal
	ch <- descRequestErrorsTotal
	ch <- descRequestDurationAvg
	ch <- descRequestDurationMax
	ch <- descCustomLatest
}

func (b *bridge) Collect(ch chan<- prometheus.Metric) {
	for path, stats := range b.collector.AllRequestMetrics() {
		ch <- prometheus.MustNewConstMetric(descRequestsTotal, prometheus.CounterValue, float64(stats.TotalRequests), path)
		ch <- prometheus.MustNewConstMetric(descRequestErrorsTotal, prometheus.CounterValue, float64(stats.TotalErrors), path)
		ch <- prometheus.MustNewConstMetric(descRequestDurationAvg, prometheus.GaugeValue, stats.AvgDurationMS, path)
		ch <- prometheus.MustNewConstMetric(descRequestDurationMax, prometheus.GaugeValue, stats.MaxDurationMS, path)
	}
	for _, name := range b.collector.SeriesNames() {
		if sum, ok := b.collector.SeriesSummary(name, b.collector.retention); ok && sum.Count > 0 {
			ch <- prometheus.MustNewConstMetric(descCustomLatest, prometheus.GaugeValue, sum.Latest, name)
		}
	}
}

// PrometheusHandler returns an HTTP handler serving this collector's state
// in the Prometheus exposition format.
func (c *Collector) PrometheusHandler() http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(&bridge{collector: c})
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
