package models

import (
	"time"

	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/fintrack-backend/pkg/db/types"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	"github.com/angelmondragon/fintrack-backend/pkg/types"
)

// Plan is a catalog tier. Limits use -1 for unlimited in storage; callers go
// through the Limit accessors instead of reading the columns.
type Plan struct {
	Type                    enums.PlanType     `gorm:"column:type;primaryKey"`
	Name                    string             `gorm:"column:name;not null"`
	Rank                    int                `gorm:"column:rank;not null;uniqueIndex"`
	Price                   decimal.Decimal    `gorm:"column:price;type:numeric(12,2);not null"`
	Currency                string             `gorm:"column:currency;not null"`
	Features                dbtypes.FeatureSet `gorm:"column:features;not null"`
	MaxAccounts             int64              `gorm:"column:max_accounts;not null"`
	MaxTransactionsPerMonth int64              `gorm:"column:max_transactions_per_month;not null"`
	TrialDays               int                `gorm:"column:trial_days;not null"`
	GatewayPriceID          *string            `gorm:"column:gateway_price_id"`
	Active                  bool               `gorm:"column:active;not null"`
	CreatedAt               time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p Plan) AccountLimit() types.Limit {
	return types.LimitFromStored(p.MaxAccounts)
}

func (p Plan) TransactionLimit() types.Limit {
	return types.LimitFromStored(p.MaxTransactionsPerMonth)
}

// LimitFor returns the ceiling for a limited resource.
func (p Plan) LimitFor(resource enums.Resource) types.Limit {
	switch resource {
	case enums.ResourceAccounts:
		return p.AccountLimit()
	case enums.ResourceTransactions:
		return p.TransactionLimit()
	}
	return types.Finite(0)
}

// SetLimits stores both ceilings in their column representation.
func (p *Plan) SetLimits(accounts, transactions types.Limit) {
	p.MaxAccounts = accounts.Stored()
	p.MaxTransactionsPerMonth = transactions.Stored()
}
