package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateSubscriber OutboxAggregateType = "subscriber"
	AggregatePayment    OutboxAggregateType = "payment"
)

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateSubscriber || a == AggregatePayment
}

// OutboxEventType names a domain event recorded through the outbox.
type OutboxEventType string

const (
	EventPaymentCompleted          OutboxEventType = "payment.completed"
	EventPaymentFailed             OutboxEventType = "payment.failed"
	EventPaymentRejected           OutboxEventType = "payment.rejected"
	EventPaymentExpired            OutboxEventType = "payment.expired"
	EventSubscriptionStatusChanged OutboxEventType = "subscription.status_changed"
	EventSubscriptionTrialExpiring OutboxEventType = "subscription.trial_expiring"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPaymentCompleted,
	EventPaymentFailed,
	EventPaymentRejected,
	EventPaymentExpired,
	EventSubscriptionStatusChanged,
	EventSubscriptionTrialExpiring,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason explains why an outbox event stopped being retried.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
