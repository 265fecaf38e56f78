package billing

import (
	"time"

	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/types"
)

type planResponse struct {
	Type                    string      `json:"type"`
	Name                    string      `json:"name"`
	Rank                    int         `json:"rank"`
	Price                   string      `json:"price"`
	Currency                string      `json:"currency"`
	Features                []string    `json:"features"`
	MaxAccounts             types.Limit `json:"max_accounts"`
	MaxTransactionsPerMonth types.Limit `json:"max_transactions_per_month"`
	TrialDays               int         `json:"trial_days"`
	Active                  bool        `json:"active"`
}

type planUpsertRequest struct {
	Name                    string          `json:"name" validate:"required,max=80"`
	Rank                    int             `json:"rank" validate:"gte=0"`
	Price                   string          `json:"price" validate:"required"`
	Currency                string          `json:"currency" validate:"omitempty,len=3"`
	Features                map[string]bool `json:"features"`
	MaxAccounts             *types.Limit    `json:"max_accounts" validate:"required"`
	MaxTransactionsPerMonth *types.Limit    `json:"max_transactions_per_month" validate:"required"`
	TrialDays               *int            `json:"trial_days,omitempty" validate:"omitempty,gte=0"`
	GatewayPriceID          *string         `json:"gateway_price_id,omitempty"`
	Active                  *bool           `json:"active,omitempty"`
}

type paymentMethodResponse struct {
	Name           string  `json:"name"`
	Family         string  `json:"family"`
	DisplayName    string  `json:"display_name"`
	ProcessingTime string  `json:"processing_time"`
	FeeDescription string  `json:"fee_description"`
	Instructions   string  `json:"instructions,omitempty"`
	BankName       *string `json:"bank_name,omitempty"`
	AccountName    *string `json:"account_name,omitempty"`
	AccountNumber  *string `json:"account_number,omitempty"`
}

type couponValidateRequest struct {
	Code     string `json:"code" validate:"required,max=64"`
	PlanType string `json:"plan_type" validate:"required"`
}

type campaignCreateRequest struct {
	Code          string     `json:"code" validate:"required,max=64"`
	Description   string     `json:"description" validate:"max=500"`
	DiscountType  string     `json:"discount_type" validate:"required"`
	DiscountValue string     `json:"discount_value" validate:"required"`
	PlanTypes     []string   `json:"plan_types"`
	UsageCap      *int64     `json:"usage_cap,omitempty" validate:"omitempty,gte=1"`
	StartsAt      *time.Time `json:"starts_at,omitempty"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
}

type campaignActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type campaignResponse struct {
	ID            string   `json:"id"`
	Code          string   `json:"code"`
	Description   string   `json:"description"`
	DiscountType  string   `json:"discount_type"`
	DiscountValue string   `json:"discount_value"`
	PlanTypes     []string `json:"plan_types"`
	UsageCount    int64    `json:"usage_count"`
	UsageCap      *int64   `json:"usage_cap,omitempty"`
	RemainingUses *int64   `json:"remaining_uses,omitempty"`
	OverCap       bool     `json:"over_cap"`
	Active        bool     `json:"active"`
	StartsAt      *string  `json:"starts_at,omitempty"`
	EndsAt        *string  `json:"ends_at,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

func planToResponse(p models.Plan) planResponse {
	return planResponse{
		Type:                    string(p.Type),
		Name:                    p.Name,
		Rank:                    p.Rank,
		Price:                   p.Price.StringFixed(2),
		Currency:                p.Currency,
		Features:                p.Features.Names(),
		MaxAccounts:             p.AccountLimit(),
		MaxTransactionsPerMonth: p.TransactionLimit(),
		TrialDays:               p.TrialDays,
		Active:                  p.Active,
	}
}

func paymentMethodToResponse(m models.PaymentMethod) paymentMethodResponse {
	return paymentMethodResponse{
		Name:           string(m.Name),
		Family:         string(m.Family),
		DisplayName:    m.DisplayName,
		ProcessingTime: m.ProcessingTime,
		FeeDescription: m.FeeDescription,
		Instructions:   m.Instructions,
		BankName:       m.BankName,
		AccountName:    m.AccountName,
		AccountNumber:  m.AccountNumber,
	}
}

func campaignToResponse(c models.Campaign) campaignResponse {
	out := campaignResponse{
		ID:            c.ID.String(),
		Code:          c.Code,
		Description:   c.Description,
		DiscountType:  string(c.DiscountType),
		DiscountValue: c.DiscountValue.StringFixed(2),
		PlanTypes:     append([]string{}, c.PlanTypes...),
		UsageCount:    c.UsageCount,
		UsageCap:      c.UsageCap,
		RemainingUses: c.RemainingUses(),
		OverCap:       c.OverCap(),
		Active:        c.Active,
		CreatedAt:     c.CreatedAt.UTC().Format(time.RFC3339),
	}
	if c.StartsAt != nil {
		v := c.StartsAt.UTC().Format(time.RFC3339)
		out.StartsAt = &v
	}
	if c.EndsAt != nil {
		v := c.EndsAt.UTC().Format(time.RFC3339)
		out.EndsAt = &v
	}
	return out
}
