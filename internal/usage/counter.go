package usage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/types"
)

// Figure is the consumption of one limited resource against its ceiling.
type Figure struct {
	Current int64       `json:"current"`
	Limit   types.Limit `json:"limit"`
}

// Usage is the per-resource consumption of a subscriber on its current plan.
type Usage struct {
	SubscriberID uint64         `json:"subscriber_id"`
	PlanType     enums.PlanType `json:"plan_type"`
	Accounts     Figure         `json:"accounts"`
	Transactions Figure         `json:"transactions"`
}

// For returns the figure for resource.
func (u Usage) For(resource enums.Resource) Figure {
	if resource == enums.ResourceTransactions {
		return u.Transactions
	}
	return u.Accounts
}

// Counts are raw resource counts without plan limits attached.
type Counts struct {
	Accounts     int64
	Transactions int64
}

// For returns the count for resource.
func (c Counts) For(resource enums.Resource) int64 {
	if resource == enums.ResourceTransactions {
		return c.Transactions
	}
	return c.Accounts
}

type planReader interface {
	Get(ctx context.Context, planType enums.PlanType) (*models.Plan, error)
}

// Counter computes current consumption. It never writes.
type Counter interface {
	Usage(ctx context.Context, subscriberID uint64) (Usage, error)
	Count(ctx context.Context, tx *gorm.DB, subscriberID uint64) (Counts, error)
}

// CounterParams groups dependencies for the usage counter.
type CounterParams struct {
	Repo  Repository
	Plans planReader
	Now   func() time.Time
}

type counter struct {
	repo  Repository
	plans planReader
	now   func() time.Time
}

// NewCounter builds a usage counter.
func NewCounter(params CounterParams) (Counter, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("usage repo required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan reader required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &counter{repo: params.Repo, plans: params.Plans, now: now}, nil
}

func (c *counter) Usage(ctx context.Context, subscriberID uint64) (Usage, error) {
	sub, err := c.repo.FindSubscriber(ctx, subscriberID)
	if err != nil {
		return Usage{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscriber")
	}
	if sub == nil {
		return Usage{}, pkgerrors.New(pkgerrors.CodeNotFound, "subscriber not found")
	}
	plan, err := c.plans.Get(ctx, sub.PlanType)
	if err != nil {
		return Usage{}, err
	}
	counts, err := c.Count(ctx, nil, subscriberID)
	if err != nil {
		return Usage{}, err
	}
	return FromCounts(*sub, *plan, counts), nil
}

// Count runs both counting queries, inside tx when one is given so a caller
// holding the subscriber lock sees its own writes.
func (c *counter) Count(ctx context.Context, tx *gorm.DB, subscriberID uint64) (Counts, error) {
	repo := c.repo.WithTx(tx)
	accounts, err := repo.CountAccounts(ctx, subscriberID)
	if err != nil {
		return Counts{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count accounts")
	}
	from, to := MonthWindow(c.now())
	transactions, err := repo.CountTransactionsBetween(ctx, subscriberID, from, to)
	if err != nil {
		return Counts{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count transactions")
	}
	return Counts{Accounts: accounts, Transactions: transactions}, nil
}

// FromCounts attaches the plan ceilings to raw counts.
func FromCounts(sub models.Subscriber, plan models.Plan, counts Counts) Usage {
	return Usage{
		SubscriberID: sub.ID,
		PlanType:     plan.Type,
		Accounts:     Figure{Current: counts.Accounts, Limit: plan.AccountLimit()},
		Transactions: Figure{Current: counts.Transactions, Limit: plan.TransactionLimit()},
	}
}

// MonthWindow returns [start of the UTC calendar month of now, start of the next month).
func MonthWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
