package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/fintrack-backend/pkg/db/types"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
)

// Campaign is a coupon-driven discount rule. Code is stored upper-case.
type Campaign struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code          string             `gorm:"column:code;not null;uniqueIndex"`
	Description   string             `gorm:"column:description;not null;default:''"`
	DiscountType  enums.DiscountType `gorm:"column:discount_type;not null"`
	DiscountValue decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null"`
	PlanTypes     dbtypes.StringList `gorm:"column:plan_types;not null"`
	UsageCount    int64              `gorm:"column:usage_count;not null;default:0"`
	UsageCap      *int64             `gorm:"column:usage_cap"`
	Active        bool               `gorm:"column:active;not null"`
	StartsAt      *time.Time         `gorm:"column:starts_at"`
	EndsAt        *time.Time         `gorm:"column:ends_at"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Campaign) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// OverCap reports whether completions raced past the usage cap. The cap is
// checked when a payment locks in the coupon, not when it completes.
func (c *Campaign) OverCap() bool {
	return c.UsageCap != nil && c.UsageCount > *c.UsageCap
}

// RemainingUses is nil for uncapped campaigns and never negative.
func (c *Campaign) RemainingUses() *int64 {
	if c.UsageCap == nil {
		return nil
	}
	left := *c.UsageCap - c.UsageCount
	if left < 0 {
		left = 0
	}
	return &left
}
