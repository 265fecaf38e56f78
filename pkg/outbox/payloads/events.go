package payloads

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fintrack-backend/pkg/enums"
)

// PaymentOutcomeEvent is emitted whenever a payment reaches a terminal status.
type PaymentOutcomeEvent struct {
	PaymentID     uint64                  `json:"payment_id"`
	Reference     string                  `json:"reference"`
	SubscriberID  uint64                  `json:"subscriber_id"`
	PlanType      enums.PlanType          `json:"plan_type"`
	PaymentMethod enums.PaymentMethodName `json:"payment_method"`
	Status        enums.PaymentStatus     `json:"status"`
	FinalAmount   decimal.Decimal         `json:"final_amount"`
	Currency      string                  `json:"currency"`
	CouponCode    *string                 `json:"coupon_code,omitempty"`
	Reason        string                  `json:"reason,omitempty"`
	OccurredAt    time.Time               `json:"occurred_at"`
}

// SubscriptionStatusChangedEvent records a lifecycle transition.
type SubscriptionStatusChangedEvent struct {
	SubscriberID uint64                   `json:"subscriber_id"`
	FromStatus   enums.SubscriptionStatus `json:"from_status"`
	ToStatus     enums.SubscriptionStatus `json:"to_status"`
	FromPlan     enums.PlanType           `json:"from_plan"`
	ToPlan       enums.PlanType           `json:"to_plan"`
	Reason       string                   `json:"reason"`
	PaymentID    *uint64                  `json:"payment_id,omitempty"`
}

// TrialExpiringEvent warns a subscriber ahead of trial end.
type TrialExpiringEvent struct {
	SubscriberID uint64         `json:"subscriber_id"`
	PlanType     enums.PlanType `json:"plan_type"`
	TrialEndsAt  time.Time      `json:"trial_ends_at"`
}
