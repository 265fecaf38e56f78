package enums

import "fmt"

// SubscriptionStatus is the lifecycle state of a subscriber.
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

var validSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusTrialing,
	SubscriptionStatusActive,
	SubscriptionStatusPastDue,
	SubscriptionStatusCanceled,
}

// active -> active covers renewals and paid plan changes.
var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusTrialing: {SubscriptionStatusActive, SubscriptionStatusCanceled},
	SubscriptionStatusActive:   {SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusCanceled},
	SubscriptionStatusPastDue:  {SubscriptionStatusActive, SubscriptionStatusCanceled},
	SubscriptionStatusCanceled: {SubscriptionStatusActive},
}

// String implements fmt.Stringer.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SubscriptionStatus.
func (s SubscriptionStatus) IsValid() bool {
	for _, candidate := range validSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	for _, candidate := range subscriptionTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseSubscriptionStatus converts raw input into a SubscriptionStatus.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	for _, candidate := range validSubscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}
