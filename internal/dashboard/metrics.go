package dashboard

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes the response cache.
type Metrics struct {
	hits   *prometheus.CounterVec
	misses *prometheus.CounterVec
	builds *prometheus.HistogramVec
}

// NewMetrics registers the cache collectors once per registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salesdash_cache_hits_total",
			Help: "Number of cache hits for dashboard responses.",
		}, []string{"report"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salesdash_cache_miss_total",
			Help: "Number of cache misses for dashboard responses.",
		}, []string{"report"}),
		builds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "salesdash_report_build_duration_seconds",
			Help:    "Duration required to build dashboard responses.",
			Buckets: prometheus.DefBuckets,
		}, []string{"report"}),
	}
	m.hits = registerCounter(reg, m.hits)
	m.misses = registerCounter(reg, m.misses)
	if err := reg.Register(m.builds); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				m.builds = existing
			}
		}
	}
	return m
}

func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) record(report string, hit bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	if hit {
		m.hits.WithLabelValues(report).Inc()
		return
	}
	m.misses.WithLabelValues(report).Inc()
	m.builds.WithLabelValues(report).Observe(elapsed.Seconds())
}
