// Package metrics exposes Prometheus counters and histograms for the
// bridge's session and subprocess lifecycle, supplementing the spec's
// required /stats JSON endpoint with a scrape-friendly surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors bundles every metric the bridge updates as it runs.
type Collectors struct {
	SessionsCreated   prometheus.Counter
	SessionsDestroyed prometheus.Counter
	SessionsActive    prometheus.Gauge

	SubprocessRestarts   prometheus.Counter
	SubprocessCrashTotal prometheus.Counter

	CorrelationLatency prometheus.Histogram

	registry *prometheus.Registry
}

// New constructs Collectors registered on a dedicated registry so the
// /metrics endpoint never collides with default-registry collectors
// pulled in by a dependency.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcpbridge_sessions_created_total",
			Help: "Total sessions created across all servers.",
		}),
		SessionsDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcpbridge_sessions_destroyed_total",
			Help: "Total sessions destroyed (expired, client DELETE, or crash-triggered).",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcpbridge_sessions_active",
			Help: "Currently live sessions.",
		}),
		SubprocessRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcpbridge_subprocess_restarts_total",
			Help: "Total subprocess restart attempts across all handles.",
		}),
		SubprocessCrashTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcpbridge_subprocess_crashed_total",
			Help: "Total subprocess exits whose restart budget was exhausted.",
		}),
		CorrelationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mcpbridge_correlation_latency_seconds",
			Help:    "Time from writing a request to the subprocess to observing its correlated response.",
			Buckets: prometheus.DefBuckets,
		}),
		registry: reg,
	}
	reg.MustRegister(
		c.SessionsCreated,
		c.SessionsDestroyed,
		c.SessionsActive,
		c.SubprocessRestarts,
		c.SubprocessCrashTotal,
		c.CorrelationLatency,
	)
	return c
}

// Handler returns the /metrics http.Handler for this Collectors' registry.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SessionCreated satisfies registry.MetricsRecorder.
func (c *Collectors) SessionCreated() {
	c.SessionsCreated.Inc()
}

// SessionDestroyed satisfies registry.MetricsRecorder.
func (c *Collectors) SessionDestroyed() {
	c.SessionsDestroyed.Inc()
}

// SetSessionsActive satisfies registry.MetricsRecorder.
func (c *Collectors) SetSessionsActive(n int) {
	c.SessionsActive.Set(float64(n))
}

// SubprocessRestart satisfies proxy.MetricsRecorder.
func (c *Collectors) SubprocessRestart() {
	c.SubprocessRestarts.Inc()
}

// SubprocessCrashed satisfies proxy.MetricsRecorder.
func (c *Collectors) SubprocessCrashed() {
	c.SubprocessCrashTotal.Inc()
}

// ObserveCorrelationLatency satisfies proxy.MetricsRecorder.
func (c *Collectors) ObserveCorrelationLatency(d time.Duration) {
	c.CorrelationLatency.Observe(d.Seconds())
}
