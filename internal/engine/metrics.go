package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the engine facade.
type Metrics struct {
	Started   *prometheus.CounterVec
	Completed *prometheus.CounterVec
	Failed    *prometheus.CounterVec
	Latency   *prometheus.HistogramVec
	JobsOpen  prometheus.Gauge
}

// NewMetrics creates and registers engine metrics on the given
// registry. A nil registry yields unregistered (but usable)
// instruments, which keeps tests free of duplicate-registration
// failures.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spatialkit_analyses_started_total",
			Help: "Analysis requests accepted for execution",
		}, []string{"category", "method"}),
		Completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spatialkit_analyses_completed_total",
			Help: "Analysis requests that produced a result",
		}, []string{"category", "method"}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spatialkit_analyses_failed_total",
			Help: "Analysis requests that terminated with an error",
		}, []string{"category", "method", "code"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spatialkit_analysis_duration_seconds",
			Help:    "Wall time per analysis, cache hits included",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"category", "method"}),
		JobsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spatialkit_jobs_open",
			Help: "Async jobs currently tracked, finished but unretired included",
		}),
	}
	if registry != nil {
		registry.MustRegister(m.Started, m.Completed, m.Failed, m.Latency, m.JobsOpen)
	}
	return m
}
