package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/pkg/enums"
)

// PaymentMethod describes how a subscriber can pay and which family of
// transitions the resulting payment follows.
type PaymentMethod struct {
	Name           enums.PaymentMethodName `gorm:"column:name;primaryKey"`
	Family         enums.PaymentFamily     `gorm:"column:family;not null"`
	DisplayName    string                  `gorm:"column:display_name;not null"`
	ProcessingTime string                  `gorm:"column:processing_time;not null;default:''"`
	FeeDescription string                  `gorm:"column:fee_description;not null;default:''"`
	Instructions   string                  `gorm:"column:instructions;not null;default:''"`
	BankName       *string                 `gorm:"column:bank_name"`
	AccountName    *string                 `gorm:"column:account_name"`
	AccountNumber  *string                 `gorm:"column:account_number"`
	SortOrder      int                     `gorm:"column:sort_order;not null;default:0"`
	Active         bool                    `gorm:"column:active;not null"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// Payment is a single attempt to pay for a plan. FinalAmount is locked in at
// creation and never recomputed.
type Payment struct {
	ID                uint64                  `gorm:"column:id;primaryKey;autoIncrement"`
	SubscriberID      uint64                  `gorm:"column:subscriber_id;not null;index"`
	PlanType          enums.PlanType          `gorm:"column:plan_type;not null"`
	PaymentMethod     enums.PaymentMethodName `gorm:"column:payment_method;not null"`
	Family            enums.PaymentFamily     `gorm:"column:family;not null"`
	Amount            decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	DiscountAmount    decimal.Decimal         `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	FinalAmount       decimal.Decimal         `gorm:"column:final_amount;type:numeric(12,2);not null"`
	Currency          string                  `gorm:"column:currency;not null"`
	CampaignID        *uuid.UUID              `gorm:"column:campaign_id;type:uuid;index"`
	CouponCode        *string                 `gorm:"column:coupon_code"`
	Status            enums.PaymentStatus     `gorm:"column:status;not null;index"`
	ExternalReference *string                 `gorm:"column:external_reference;uniqueIndex"`
	CheckoutURL       *string                 `gorm:"column:checkout_url"`
	FailureReason     *string                 `gorm:"column:failure_reason"`
	ExpiresAt         *time.Time              `gorm:"column:expires_at"`
	ProcessedAt       *time.Time              `gorm:"column:processed_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;not null"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// Reference is the human-facing identifier shown on receipts and transfer slips.
func (p Payment) Reference() string {
	return PaymentReference(p.ID)
}

// PaymentReference derives the display reference for a payment id.
func PaymentReference(id uint64) string {
	return fmt.Sprintf("FT-%08d", id)
}

// PastExpiry reports whether a non-terminal payment has outlived expiresAt.
func (p Payment) PastExpiry(now time.Time) bool {
	return !p.Status.IsTerminal() && p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// PaymentProof is the evidence attached to a manual-family payment.
type PaymentProof struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID     uint64                `gorm:"column:payment_id;not null;uniqueIndex"`
	Description   string                `gorm:"column:description;not null;default:''"`
	EvidenceRef   *string               `gorm:"column:evidence_ref"`
	BankReference *string               `gorm:"column:bank_reference"`
	PhoneNumber   *string               `gorm:"column:phone_number"`
	SubmittedAt   time.Time             `gorm:"column:submitted_at;not null"`
	ReviewedAt    *time.Time            `gorm:"column:reviewed_at"`
	ReviewerID    *uint64               `gorm:"column:reviewer_id"`
	Decision      *enums.ReviewDecision `gorm:"column:decision"`
	ReviewNote    *string               `gorm:"column:review_note"`
}

func (p *PaymentProof) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PaymentEvent is an immutable audit row for every payment status change.
type PaymentEvent struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID       uint64              `gorm:"column:payment_id;not null;index"`
	FromStatus      enums.PaymentStatus `gorm:"column:from_status;not null"`
	ToStatus        enums.PaymentStatus `gorm:"column:to_status;not null"`
	Actor           string              `gorm:"column:actor;not null"`
	Reason          *string             `gorm:"column:reason"`
	ExternalEventID *string             `gorm:"column:external_event_id"`
	OccurredAt      time.Time           `gorm:"column:occurred_at;not null"`
}

func (e *PaymentEvent) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// GatewayEvent records every processed gateway callback by its external event
// id. The primary key makes a replayed delivery fail inside its transaction.
type GatewayEvent struct {
	EventID    string    `gorm:"column:event_id;primaryKey"`
	EventType  string    `gorm:"column:event_type;not null"`
	PaymentID  *uint64   `gorm:"column:payment_id;index"`
	ReceivedAt time.Time `gorm:"column:received_at;not null"`
}
