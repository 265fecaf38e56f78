package entitlements

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fintrack-backend/internal/usage"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/types"
)

// ResourceView is the usage of one limited resource as the client sees it.
type ResourceView struct {
	Resource   enums.Resource `json:"resource"`
	Current    int64          `json:"current"`
	Limit      types.Limit    `json:"limit"`
	Unlimited  bool           `json:"unlimited"`
	Percentage *float64       `json:"percentage"`
	CanCreate  bool           `json:"can_create"`
	NearLimit  bool           `json:"near_limit"`
}

// PlanView is the plan metadata attached to a snapshot.
type PlanView struct {
	Type     enums.PlanType  `json:"type"`
	Name     string          `json:"name"`
	Rank     int             `json:"rank"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Features []string        `json:"features"`
}

// Snapshot is everything a consumer needs to gate an action, evaluated once
// and passed along instead of re-read by every caller.
type Snapshot struct {
	SubscriberID uint64                   `json:"subscriber_id"`
	Status       enums.SubscriptionStatus `json:"status"`
	TrialEndsAt  *time.Time               `json:"trial_ends_at,omitempty"`
	Plan         PlanView                 `json:"plan"`
	Accounts     ResourceView             `json:"accounts"`
	Transactions ResourceView             `json:"transactions"`
	EvaluatedAt  time.Time                `json:"evaluated_at"`
}

// For returns the view for resource.
func (s Snapshot) For(resource enums.Resource) ResourceView {
	if resource == enums.ResourceTransactions {
		return s.Transactions
	}
	return s.Accounts
}

// HasFeature reports whether the snapshot's plan enables feature and the
// subscription still grants access.
func (s Snapshot) HasFeature(feature string) bool {
	if !statusGrantsAccess(s.Status) {
		return false
	}
	for _, name := range s.Plan.Features {
		if name == feature {
			return true
		}
	}
	return false
}

// Check returns nil when one more resource may be created, a STATE_CONFLICT
// when the subscription grants nothing and LIMIT_EXCEEDED otherwise.
func Check(s Snapshot, resource enums.Resource) error {
	if !resource.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown resource").
			WithDetails(map[string]any{"resource": resource})
	}
	if !statusGrantsAccess(s.Status) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription does not grant access").
			WithDetails(map[string]any{"status": s.Status})
	}
	view := s.For(resource)
	if view.CanCreate {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeLimitExceeded, "plan limit reached").
		WithDetails(map[string]any{
			"resource":  resource,
			"current":   view.Current,
			"limit":     view.Limit,
			"plan_type": s.Plan.Type,
		})
}

// Build assembles a snapshot from already-loaded state. It performs no I/O.
func Build(sub models.Subscriber, plan models.Plan, u usage.Usage, nearLimitThreshold int, now time.Time) Snapshot {
	status := sub.Status
	if sub.TrialExpired(now) {
		status = enums.SubscriptionStatusCanceled
	}
	snap := Snapshot{
		SubscriberID: sub.ID,
		Status:       status,
		TrialEndsAt:  sub.TrialEndsAt,
		Plan: PlanView{
			Type:     plan.Type,
			Name:     plan.Name,
			Rank:     plan.Rank,
			Price:    plan.Price,
			Currency: plan.Currency,
			Features: plan.Features.Names(),
		},
		EvaluatedAt: now,
	}
	granted := statusGrantsAccess(status)
	snap.Accounts = view(enums.ResourceAccounts, u.Accounts, granted, nearLimitThreshold)
	snap.Transactions = view(enums.ResourceTransactions, u.Transactions, granted, nearLimitThreshold)
	return snap
}

func view(resource enums.Resource, fig usage.Figure, granted bool, threshold int) ResourceView {
	v := ResourceView{
		Resource:  resource,
		Current:   fig.Current,
		Limit:     fig.Limit,
		Unlimited: fig.Limit.IsUnlimited(),
		CanCreate: granted && fig.Limit.Allows(fig.Current),
	}
	if pct, ok := fig.Limit.Percentage(fig.Current); ok {
		v.Percentage = &pct
		v.NearLimit = threshold > 0 && pct >= float64(threshold)
	}
	return v
}

// past_due keeps its plan while the charge is recovered; only canceled loses access.
func statusGrantsAccess(status enums.SubscriptionStatus) bool {
	return status != enums.SubscriptionStatusCanceled
}
