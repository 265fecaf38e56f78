package plans

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fintrack-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/types"
)

func newTestService(t *testing.T) (Service, Repository) {
	t.Helper()
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc, err := NewService(ServiceParams{Repo: repo, DefaultCurrency: "xaf", TrialDays: 14})
	require.NoError(t, err)
	return svc, repo
}

func TestNewServiceRequiresRepo(t *testing.T) {
	if _, err := NewService(ServiceParams{DefaultCurrency: "XAF"}); err == nil {
		t.Fatal("expected error without repo")
	}
}

func TestSeedCreatesRankedCatalogOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Seed(ctx))
	require.NoError(t, svc.Seed(ctx))

	plans, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, enums.PlanBasic, plans[0].Type)
	assert.Equal(t, enums.PlanEnterprise, plans[2].Type)
	assert.Equal(t, "XAF", plans[1].Currency)
	assert.True(t, plans[1].Price.Equal(decimal.NewFromInt(14500)))
	assert.Equal(t, types.Finite(5), plans[0].AccountLimit())
	assert.True(t, plans[2].TransactionLimit().IsUnlimited())

	for i := 1; i < len(plans); i++ {
		assert.True(t, plans[i].Features.Covers(plans[i-1].Features), "%s must cover %s", plans[i].Type, plans[i-1].Type)
	}
}

func TestGetUnknownPlan(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), enums.PlanPremium)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Get(context.Background(), enums.PlanType("gold"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpsertRejectsDuplicateRank(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Seed(ctx))

	_, err := svc.Upsert(ctx, UpsertInput{
		Type:                    enums.PlanPremium,
		Name:                    "Premium",
		Rank:                    1,
		Price:                   decimal.NewFromInt(1),
		MaxAccounts:             types.Finite(1),
		MaxTransactionsPerMonth: types.Finite(1),
		Active:                  true,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestUpsertUpdatesLimits(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Seed(ctx))

	plan, err := svc.Upsert(ctx, UpsertInput{
		Type:                    enums.PlanBasic,
		Name:                    "Basic",
		Rank:                    1,
		Price:                   decimal.RequireFromString("4999.999"),
		MaxAccounts:             types.Finite(0),
		MaxTransactionsPerMonth: types.Unlimited(),
		Active:                  true,
	})
	require.NoError(t, err)
	assert.Equal(t, types.Finite(0), plan.AccountLimit())
	assert.True(t, plan.TransactionLimit().IsUnlimited())
	assert.Equal(t, "5000", plan.Price.String())
}

func TestDeactivateBlockedWhileReferenced(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Seed(ctx))

	db := repo.(*repository).db
	require.NoError(t, db.Create(&models.Subscriber{
		Email:    "a@example.com",
		Status:   enums.SubscriptionStatusActive,
		PlanType: enums.PlanBasic,
	}).Error)

	_, err := svc.Upsert(ctx, UpsertInput{
		Type:                    enums.PlanBasic,
		Name:                    "Basic",
		Rank:                    1,
		MaxAccounts:             types.Finite(5),
		MaxTransactionsPerMonth: types.Finite(100),
		Active:                  false,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCompare(t *testing.T) {
	basic := models.Plan{Rank: 1}
	premium := models.Plan{Rank: 2}
	assert.Equal(t, -1, Compare(basic, premium))
	assert.Equal(t, 1, Compare(premium, basic))
	assert.Equal(t, 0, Compare(basic, basic))
}
