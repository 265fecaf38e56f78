package subscribers

import (
	"time"

	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/types"
)

type signUpRequest struct {
	Email          string  `json:"email" validate:"required,email"`
	DisplayName    string  `json:"display_name" validate:"max=120"`
	PlanType       string  `json:"plan_type" validate:"required"`
	OrganizationID types.OptionalUUID `json:"organization_id"`
	OrgRole        *string `json:"org_role,omitempty"`
}

type changePlanRequest struct {
	PlanType string `json:"plan_type" validate:"required"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type accountRequest struct {
	Name string `json:"name" validate:"required,max=120"`
	Kind string `json:"kind" validate:"omitempty,max=40"`
}

type transactionRequest struct {
	AccountID   types.OptionalUUID `json:"account_id"`
	Amount      string             `json:"amount" validate:"required"`
	Description string             `json:"description" validate:"max=500"`
	// YYYY-MM-DD
	OccurredOn *string `json:"occurred_on,omitempty"`
}

type historyResponse struct {
	FromStatus string  `json:"from_status"`
	ToStatus   string  `json:"to_status"`
	FromPlan   string  `json:"from_plan"`
	ToPlan     string  `json:"to_plan"`
	Reason     string  `json:"reason"`
	PaymentID  *uint64 `json:"payment_id,omitempty"`
	OccurredAt string  `json:"occurred_at"`
}

type subscriberResponse struct {
	ID             uint64            `json:"id"`
	Email          string            `json:"email"`
	DisplayName    string            `json:"display_name"`
	Status         string            `json:"status"`
	PlanType       string            `json:"plan_type"`
	TrialEndsAt    *string           `json:"trial_ends_at,omitempty"`
	OrganizationID *string           `json:"organization_id,omitempty"`
	OrgRole        *string           `json:"org_role,omitempty"`
	CanceledAt     *string           `json:"canceled_at,omitempty"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
	History        []historyResponse `json:"history,omitempty"`
}

type accountResponse struct {
	ID           string `json:"id"`
	SubscriberID uint64 `json:"subscriber_id"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	CreatedAt    string `json:"created_at"`
}

type transactionResponse struct {
	ID           string  `json:"id"`
	SubscriberID uint64  `json:"subscriber_id"`
	AccountID    *string `json:"account_id,omitempty"`
	Amount       string  `json:"amount"`
	Description  string  `json:"description"`
	OccurredOn   *string `json:"occurred_on,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

func subscriberToResponse(sub *models.Subscriber, history []models.SubscriptionHistory) subscriberResponse {
	out := subscriberResponse{
		ID:          sub.ID,
		Email:       sub.Email,
		DisplayName: sub.DisplayName,
		Status:      string(sub.Status),
		PlanType:    string(sub.PlanType),
		TrialEndsAt: formatTimePtr(sub.TrialEndsAt),
		CanceledAt:  formatTimePtr(sub.CanceledAt),
		CreatedAt:   formatTime(sub.CreatedAt),
		UpdatedAt:   formatTime(sub.UpdatedAt),
	}
	if sub.OrganizationID != nil {
		id := sub.OrganizationID.String()
		out.OrganizationID = &id
	}
	if sub.OrgRole != nil {
		role := string(*sub.OrgRole)
		out.OrgRole = &role
	}
	for _, h := range history {
		out.History = append(out.History, historyResponse{
			FromStatus: string(h.FromStatus),
			ToStatus:   string(h.ToStatus),
			FromPlan:   string(h.FromPlan),
			ToPlan:     string(h.ToPlan),
			Reason:     h.Reason,
			PaymentID:  h.PaymentID,
			OccurredAt: formatTime(h.OccurredAt),
		})
	}
	return out
}

func accountToResponse(a *models.Account) accountResponse {
	return accountResponse{
		ID:           a.ID.String(),
		SubscriberID: a.SubscriberID,
		Name:         a.Name,
		Kind:         a.Kind,
		CreatedAt:    formatTime(a.CreatedAt),
	}
}

func transactionToResponse(t *models.Transaction) transactionResponse {
	out := transactionResponse{
		ID:           t.ID.String(),
		SubscriberID: t.SubscriberID,
		Amount:       t.Amount.StringFixed(2),
		Description:  t.Description,
		CreatedAt:    formatTime(t.CreatedAt),
	}
	if t.AccountID != nil {
		id := t.AccountID.String()
		out.AccountID = &id
	}
	if t.OccurredOn != nil {
		day := t.OccurredOn.UTC().Format(dateLayout)
		out.OccurredOn = &day
	}
	return out
}

const dateLayout = "2006-01-02"

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := formatTime(*t)
	return &v
}
