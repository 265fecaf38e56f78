package usage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/types"
)

type stubPlans struct {
	plan models.Plan
}

func (s stubPlans) Get(ctx context.Context, planType enums.PlanType) (*models.Plan, error) {
	p := s.plan
	p.Type = planType
	return &p, nil
}

func seedSubscriber(t *testing.T, db *gorm.DB) models.Subscriber {
	t.Helper()
	sub := models.Subscriber{Email: "u@example.com", Status: enums.SubscriptionStatusActive, PlanType: enums.PlanBasic}
	require.NoError(t, db.Create(&sub).Error)
	return sub
}

func TestMonthWindow(t *testing.T) {
	from, to := MonthWindow(time.Date(2026, time.December, 31, 23, 59, 0, 0, time.FixedZone("WAT", 3600)))
	assert.Equal(t, time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestUsageCountsCurrentMonthOnly(t *testing.T) {
	client := dbtest.Open(t)
	db := client.DB()
	sub := seedSubscriber(t, db)
	now := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.Account{SubscriberID: sub.ID, Name: "acct", CreatedAt: now}).Error)
	}
	stamps := []time.Time{
		time.Date(2026, time.February, 28, 23, 59, 59, 0, time.UTC),
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 14, 8, 0, 0, 0, time.UTC),
		time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, ts := range stamps {
		require.NoError(t, db.Create(&models.Transaction{SubscriberID: sub.ID, Amount: decimal.NewFromInt(10), CreatedAt: ts}).Error)
	}

	counter, err := NewCounter(CounterParams{
		Repo:  NewRepository(db),
		Plans: stubPlans{plan: models.Plan{MaxAccounts: 5, MaxTransactionsPerMonth: -1}},
		Now:   func() time.Time { return now },
	})
	require.NoError(t, err)

	got, err := counter.Usage(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Accounts.Current)
	assert.Equal(t, types.Finite(5), got.Accounts.Limit)
	assert.Equal(t, int64(2), got.Transactions.Current)
	assert.True(t, got.Transactions.Limit.IsUnlimited())
	assert.Equal(t, got.Transactions, got.For(enums.ResourceTransactions))
}

func TestUsageUnknownSubscriber(t *testing.T) {
	client := dbtest.Open(t)
	counter, err := NewCounter(CounterParams{Repo: NewRepository(client.DB()), Plans: stubPlans{}})
	require.NoError(t, err)

	_, err = counter.Usage(context.Background(), 404)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
