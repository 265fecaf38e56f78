package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics records outbox publisher activity per event type.
type DispatchMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewDispatchMetrics registers the dispatcher metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fintrack_outbox_dispatch_duration_seconds",
		Help:    "Time spent delivering one outbox event.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fintrack_outbox_dispatch_success_total",
		Help: "Outbox events delivered.",
	}, []string{"event_type"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fintrack_outbox_dispatch_failure_total",
		Help: "Outbox deliveries that failed.",
	}, []string{"event_type"})
	reg.MustRegister(duration, success, failure)
	return &DispatchMetrics{duration: duration, success: success, failure: failure}
}

func (d *DispatchMetrics) ObserveDuration(eventType string, duration time.Duration) {
	if d == nil || d.duration == nil {
		return
	}
	d.duration.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}

func (d *DispatchMetrics) IncSuccess(eventType string) {
	if d == nil || d.success == nil {
		return
	}
	d.success.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (d *DispatchMetrics) IncFailure(eventType string) {
	if d == nil || d.failure == nil {
		return
	}
	d.failure.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
