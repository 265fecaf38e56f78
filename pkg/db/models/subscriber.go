package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/pkg/enums"
)

// Subscriber is the account holder whose status, plan and trial are owned by
// the subscription lifecycle.
type Subscriber struct {
	ID             uint64                   `gorm:"column:id;primaryKey;autoIncrement"`
	Email          string                   `gorm:"column:email;not null;uniqueIndex"`
	DisplayName    string                   `gorm:"column:display_name;not null;default:''"`
	Status         enums.SubscriptionStatus `gorm:"column:status;not null;index"`
	PlanType       enums.PlanType           `gorm:"column:plan_type;not null;index"`
	TrialEndsAt    *time.Time               `gorm:"column:trial_ends_at"`
	OrganizationID *uuid.UUID               `gorm:"column:organization_id;type:uuid;index"`
	OrgRole        *enums.OrgRole           `gorm:"column:org_role"`
	CanceledAt     *time.Time               `gorm:"column:canceled_at"`
	LockVersion    int64                    `gorm:"column:lock_version;not null;default:0"`
	CreatedAt      time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// TrialExpired reports whether a trialing subscriber has passed trialEndsAt.
func (s Subscriber) TrialExpired(now time.Time) bool {
	return s.Status == enums.SubscriptionStatusTrialing && s.TrialEndsAt != nil && now.After(*s.TrialEndsAt)
}

// SubscriptionHistory is an append-only record of lifecycle transitions.
type SubscriptionHistory struct {
	ID           uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	SubscriberID uint64                   `gorm:"column:subscriber_id;not null;index"`
	FromStatus   enums.SubscriptionStatus `gorm:"column:from_status;not null"`
	ToStatus     enums.SubscriptionStatus `gorm:"column:to_status;not null"`
	FromPlan     enums.PlanType           `gorm:"column:from_plan;not null"`
	ToPlan       enums.PlanType           `gorm:"column:to_plan;not null"`
	Reason       string                   `gorm:"column:reason;not null"`
	PaymentID    *uint64                  `gorm:"column:payment_id"`
	OccurredAt   time.Time                `gorm:"column:occurred_at;not null"`
}

func (SubscriptionHistory) TableName() string {
	return "subscription_history"
}

func (h *SubscriptionHistory) BeforeCreate(_ *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
