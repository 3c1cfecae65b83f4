package ledger

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-collection call counts and latency.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the ledger collectors. Already registered collectors are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salesdash_ledger_calls_total",
		Help: "Remote ledger calls partitioned by collection, method and outcome.",
	}, []string{"model", "method", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "salesdash_ledger_call_duration_seconds",
		Help:    "Latency of remote ledger calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "method"})

	m := &Metrics{calls: calls, duration: duration}
	if err := reg.Register(calls); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				m.calls = existing
			}
		}
	}
	if err := reg.Register(duration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				m.duration = existing
			}
		}
	}
	return m
}

func (m *Metrics) observe(model, method string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(model, method, outcome(err)).Inc()
	m.duration.WithLabelValues(model, method).Observe(elapsed.Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrOffline):
		return "offline"
	default:
		return "error"
	}
}
