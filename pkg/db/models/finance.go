package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account is a subscriber-owned money account. Only the fields needed for
// plan-limit accounting live here.
type Account struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SubscriberID uint64    `gorm:"column:subscriber_id;not null;index"`
	Name         string    `gorm:"column:name;not null"`
	Kind         string    `gorm:"column:kind;not null;default:'checking'"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

func (a *Account) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Transaction is a money movement recorded by a subscriber. CreatedAt is the
// server clock at insert time and drives the monthly quota.
type Transaction struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SubscriberID uint64          `gorm:"column:subscriber_id;not null;index:idx_transactions_subscriber_created,priority:1"`
	AccountID    *uuid.UUID      `gorm:"column:account_id;type:uuid"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	Description  string          `gorm:"column:description;not null;default:''"`
	OccurredOn   *time.Time      `gorm:"column:occurred_on"`
	CreatedAt    time.Time       `gorm:"column:created_at;not null;index:idx_transactions_subscriber_created,priority:2"`
}

func (t *Transaction) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
