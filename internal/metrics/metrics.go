// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Skip reasons used as the reason label of EventsSkipped.
const (
	SkipRouting   = "routing"
	SkipParse     = "parse"
	SkipDuplicate = "duplicate"
)

// Metrics groups the counter's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Contributions applied to the total
	EventsApplied prometheus.Counter

	// Events that produced no mutation, partitioned by reason
	EventsSkipped *prometheus.CounterVec

	// Failed applies partitioned by error code
	StoreErrors *prometheus.CounterVec

	// Last total observed by this process
	Total prometheus.Gauge

	// Time spent in Store.Apply, including the wait for the writer slot
	ApplyDuration prometheus.Histogram
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsApplied: f.NewCounter(prometheus.CounterOpts{
			Name: "salawat_events_applied_total",
			Help: "Total number of contributions applied to the counter",
		}),
		EventsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "salawat_events_skipped_total",
			Help: "Total number of events that did not change the counter",
		}, []string{"reason"}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "salawat_store_errors_total",
			Help: "Total number of failed counter mutations",
		}, []string{"code"}),
		Total: f.NewGauge(prometheus.GaugeOpts{
			Name: "salawat_total",
			Help: "Most recent counter total seen by this process",
		}),
		ApplyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "salawat_apply_duration_seconds",
			Help:    "Counter apply latencies in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) Skipped(reason string) {
	if m == nil {
		return
	}
	m.EventsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Applied(total int64, seconds float64) {
	if m == nil {
		return
	}
	m.EventsApplied.Inc()
	m.Total.Set(float64(total))
	m.ApplyDuration.Observe(seconds)
}

func (m *Metrics) Failed(code string, seconds float64) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(code).Inc()
	m.ApplyDuration.Observe(seconds)
}

func (m *Metrics) Observed(total int64) {
	if m == nil {
		return
	}
	m.Total.Set(float64(total))
}
