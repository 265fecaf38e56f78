package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestDispatchMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewDispatchMetrics(reg)
	eventType := "payment.completed"
	metrics.ObserveDuration(eventType, 250*time.Millisecond)
	metrics.IncSuccess(eventType)
	metrics.IncFailure(eventType)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "fintrack_outbox_dispatch_success_total", "event_type", eventType); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "fintrack_outbox_dispatch_failure_total", "event_type", eventType); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "fintrack_outbox_dispatch_duration_seconds", "event_type", eventType); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestBillingMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewBillingMetrics(reg)
	metrics.CouponRedeemed("SAVE2000")
	metrics.CouponRedeemed("SAVE2000")
	metrics.LimitDenied("accounts", "basic")
	metrics.PaymentTransition("manual", "under_review", "completed")
	metrics.ObserveWebhook("transaction.completed", "processed", 10*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "fintrack_coupon_redemptions_total", "code", "SAVE2000"); err != nil || got != 2 {
		t.Fatalf("expected 2 redemptions, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "fintrack_limit_denials_total", "resource", "accounts"); err != nil || got != 1 {
		t.Fatalf("expected 1 denial, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "fintrack_payment_transitions_total", "to", "completed"); err != nil || got != 1 {
		t.Fatalf("expected 1 transition, got %f err=%v", got, err)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var billing *BillingMetrics
	billing.CouponRedeemed("X")
	NewBillingMetrics(nil).LimitDenied("accounts", "basic")
	NewDispatchMetrics(nil).IncSuccess("payment.completed")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

func TestJobMetricsCountRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewJobMetrics(reg)
	metrics.IncSuccess("payment-expiry")
	metrics.IncFailure("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "fintrack_job_success_total", "job", "payment-expiry"); err != nil || got != 1 {
		t.Fatalf("expected 1 success, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "fintrack_job_failure_total", "job", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected unknown label, got %f err=%v", got, err)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var jobs *JobMetrics
	jobs.IncSuccess("x")
	NewDispatchMetrics(nil).IncFailure("x")
	NewBillingMetrics(nil).CouponRedeemed("x")
}
