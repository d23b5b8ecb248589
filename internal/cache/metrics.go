package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a Store. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Hits         prometheus.Counter
	Misses       prometheus.Counter
	Passthroughs *prometheus.CounterVec
	FetchErrors  prometheus.Counter
	Evictions    prometheus.Counter
	EvictedBytes prometheus.Counter
	UsedBytes    prometheus.Gauge
	LimitBytes   prometheus.Gauge
}

// NewMetrics creates and registers all cache metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pathly_cache_hits_total",
			Help: "Requests served from a published cache file",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pathly_cache_misses_total",
			Help: "Requests that started an upstream fetch",
		}),
		Passthroughs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pathly_cache_passthrough_total",
			Help: "Upstream responses streamed without being cached",
		}, []string{"reason"}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pathly_cache_fetch_errors_total",
			Help: "Upstream fetches that failed before the file was published",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pathly_cache_evictions_total",
			Help: "Cache files removed to make room for new downloads",
		}),
		EvictedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pathly_cache_evicted_bytes_total",
			Help: "Bytes reclaimed by eviction",
		}),
		UsedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pathly_cache_used_bytes",
			Help: "Bytes currently accounted against the cache budget",
		}),
		LimitBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pathly_cache_limit_bytes",
			Help: "Configured cache budget in bytes",
		}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Passthroughs, m.FetchErrors,
		m.Evictions, m.EvictedBytes, m.UsedBytes, m.LimitBytes)
	return m
}

const (
	passthroughNoLength = "no_length"
	passthroughNoSpace  = "no_space"
)

func (m *Metrics) hit() {
	if m != nil {
		m.Hits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.Misses.Inc()
	}
}

func (m *Metrics) passthrough(reason string) {
	if m != nil {
		m.Passthroughs.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) fetchError() {
	if m != nil {
		m.FetchErrors.Inc()
	}
}

func (m *Metrics) evicted(size uint64) {
	if m != nil {
		m.Evictions.Inc()
		m.EvictedBytes.Add(float64(size))
	}
}

func (m *Metrics) observeSpace(used, limit uint64) {
	if m != nil {
		m.UsedBytes.Set(float64(used))
		m.LimitBytes.Set(float64(limit))
	}
}
