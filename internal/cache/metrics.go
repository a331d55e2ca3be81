package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the result cache.
type Metrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions prometheus.Counter
	Waits     prometheus.Counter // callers that joined an in-flight computation
	Entries   prometheus.Gauge
}

// NewMetrics creates and registers cache metrics on the given
// registry. A nil registry yields unregistered (but usable)
// instruments, which keeps tests free of duplicate-registration
// failures.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spatialkit_cache_hits_total",
			Help: "Analysis results served from cache",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spatialkit_cache_misses_total",
			Help: "Cache lookups that triggered computation",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spatialkit_cache_evictions_total",
			Help: "Entries evicted by LRU pressure",
		}),
		Waits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spatialkit_cache_singleflight_waits_total",
			Help: "Callers that waited on an in-flight identical request",
		}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spatialkit_cache_entries",
			Help: "Entries currently resident in the cache",
		}),
	}
	if registry != nil {
		registry.MustRegister(m.Hits, m.Misses, m.Evictions, m.Waits, m.Entries)
	}
	return m
}
