package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics tracks payment transitions, coupon redemptions, limit denials
// and gateway webhook handling.
type BillingMetrics struct {
	transitions *prometheus.CounterVec
	redemptions *prometheus.CounterVec
	denials     *prometheus.CounterVec
	webhooks    *prometheus.HistogramVec
}

// NewBillingMetrics registers the billing metrics. A nil registerer yields a
// no-op recorder, which is what tests use.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	m := &BillingMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fintrack_payment_transitions_total",
			Help: "Payment status transitions by family and target status.",
		}, []string{"family", "from", "to"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fintrack_coupon_redemptions_total",
			Help: "Coupons redeemed by completed payments.",
		}, []string{"code"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fintrack_limit_denials_total",
			Help: "Resource creations refused by plan limits.",
		}, []string{"resource", "plan"}),
		webhooks: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fintrack_gateway_webhook_duration_seconds",
			Help:    "Gateway webhook handling latency by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"event_type", "outcome"}),
	}
	reg.MustRegister(m.transitions, m.redemptions, m.denials, m.webhooks)
	return m
}

func (m *BillingMetrics) PaymentTransition(family, from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(family), normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *BillingMetrics) CouponRedeemed(code string) {
	if m == nil || m.redemptions == nil {
		return
	}
	m.redemptions.WithLabelValues(normalizeLabel(code)).Inc()
}

func (m *BillingMetrics) LimitDenied(resource, plan string) {
	if m == nil || m.denials == nil {
		return
	}
	m.denials.WithLabelValues(normalizeLabel(resource), normalizeLabel(plan)).Inc()
}

func (m *BillingMetrics) ObserveWebhook(eventType, outcome string, d time.Duration) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Observe(d.Seconds())
}
