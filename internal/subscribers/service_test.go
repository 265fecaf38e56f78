package subscribers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/internal/plans"
	"github.com/angelmondragon/fintrack-backend/internal/usage"
	"github.com/angelmondragon/fintrack-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/outbox"
)

type fixture struct {
	db  *gorm.DB
	svc Service
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	f := &fixture{db: client.DB(), now: time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	planSvc, err := plans.NewService(plans.ServiceParams{Repo: plans.NewRepository(f.db), DefaultCurrency: "XAF", TrialDays: 14})
	require.NoError(t, err)
	require.NoError(t, planSvc.Seed(context.Background()))

	counter, err := usage.NewCounter(usage.CounterParams{Repo: usage.NewRepository(f.db), Plans: planSvc, Now: clock})
	require.NoError(t, err)

	f.svc, err = NewService(ServiceParams{
		Repo:               NewRepository(f.db),
		Plans:              planSvc,
		Usage:              counter,
		Outbox:             outbox.NewService(outbox.NewRepository(f.db), logger.Discard()),
		TransactionRunner:  client,
		Logger:             logger.Discard(),
		DefaultTrialDays:   14,
		TrialWarningWindow: 72 * time.Hour,
		Now:                clock,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) signUp(t *testing.T, email string, plan enums.PlanType) *models.Subscriber {
	t.Helper()
	sub, err := f.svc.SignUp(context.Background(), SignUpInput{Email: email, PlanType: plan})
	require.NoError(t, err)
	return sub
}

func (f *fixture) addAccounts(t *testing.T, subscriberID uint64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.db.Create(&models.Account{SubscriberID: subscriberID, Name: "acct", CreatedAt: f.now}).Error)
	}
}

func (f *fixture) outboxCount(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestSignUpStartsTrial(t *testing.T) {
	f := newFixture(t)
	sub := f.signUp(t, " New@Example.com ", enums.PlanPremium)

	assert.Equal(t, "new@example.com", sub.Email)
	assert.Equal(t, enums.SubscriptionStatusTrialing, sub.Status)
	require.NotNil(t, sub.TrialEndsAt)
	assert.True(t, sub.TrialEndsAt.Equal(f.now.AddDate(0, 0, 14)))

	_, err := f.svc.SignUp(context.Background(), SignUpInput{Email: "new@example.com"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestRefreshTrialExpiresLazily(t *testing.T) {
	f := newFixture(t)
	sub := f.signUp(t, "trial@example.com", enums.PlanBasic)

	f.now = f.now.AddDate(0, 0, 15)
	got, err := f.svc.RefreshTrial(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCanceled, got.Status)

	history, err := f.svc.History(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ReasonTrialExpired, history[1].Reason)
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventSubscriptionStatusChanged))
}

func TestRefreshTrialWarnsOnce(t *testing.T) {
	f := newFixture(t)
	sub := f.signUp(t, "warn@example.com", enums.PlanBasic)

	_, err := f.svc.RefreshTrial(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Zero(t, f.outboxCount(t, enums.EventSubscriptionTrialExpiring))

	f.now = f.now.AddDate(0, 0, 12)
	for i := 0; i < 3; i++ {
		got, err := f.svc.RefreshTrial(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.Equal(t, enums.SubscriptionStatusTrialing, got.Status)
	}
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventSubscriptionTrialExpiring))
}

func TestDowngradeBlockedAboveLimit(t *testing.T) {
	f := newFixture(t)
	sub := f.signUp(t, "down@example.com", enums.PlanPremium)
	f.addAccounts(t, sub.ID, 8)

	_, err := f.svc.ChangePlan(context.Background(), sub.ID, enums.PlanBasic, nil)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, enums.ResourceAccounts, details["resource"])
	assert.Equal(t, int64(8), details["current"])

	got, err := f.svc.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PlanPremium, got.PlanType)
}

func TestDowngradeWithinLimitsApplies(t *testing.T) {
	f := newFixture(t)
	sub := f.signUp(t, "fit@example.com", enums.PlanPremium)
	f.addAccounts(t, sub.ID, 5)

	got, err := f.svc.ChangePlan(context.Background(), sub.ID, enums.PlanBasic, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.PlanBasic, got.PlanType)
	assert.Equal(t, enums.SubscriptionStatusTrialing, got.Status)
}

func TestUpgradeOutsideTrialNeedsPayment(t *testing.T) {
	f := newFixture(t)
	sub := f.signUp(t, "up@example.com", enums.PlanBasic)
	require.NoError(t, f.db.Model(&models.Subscriber{}).Where("id = ?", sub.ID).
		Update("status", enums.SubscriptionStatusActive).Error)

	_, err := f.svc.ChangePlan(context.Background(), sub.ID, enums.PlanEnterprise, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestActivateFromCanceled(t *testing.T) {
	f := newFixture(t)
	sub := f.signUp(t, "back@example.com", enums.PlanBasic)
	_, err := f.svc.Cancel(context.Background(), sub.ID, "", nil)
	require.NoError(t, err)

	_, err = f.svc.Activate(context.Background(), nil, ActivateInput{SubscriberID: sub.ID, PlanType: enums.PlanPremium, PaymentID: 1})
	require.Error(t, err)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.Activate(context.Background(), tx, ActivateInput{SubscriberID: sub.ID, PlanType: enums.PlanPremium, PaymentID: 7})
		return err
	})
	require.NoError(t, err)

	got, err := f.svc.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, got.Status)
	assert.Equal(t, enums.PlanPremium, got.PlanType)
	assert.Nil(t, got.CanceledAt)
	assert.Nil(t, got.TrialEndsAt)
}

func TestPastDueTransitions(t *testing.T) {
	f := newFixture(t)
	sub := f.signUp(t, "late@example.com", enums.PlanBasic)

	_, err := f.svc.MarkPastDue(context.Background(), sub.ID, "", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "trialing cannot go past_due")

	require.NoError(t, f.db.Model(&models.Subscriber{}).Where("id = ?", sub.ID).
		Update("status", enums.SubscriptionStatusActive).Error)
	got, err := f.svc.MarkPastDue(context.Background(), sub.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusPastDue, got.Status)

	got, err = f.svc.Cancel(context.Background(), sub.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCanceled, got.Status)

	_, err = f.svc.Cancel(context.Background(), sub.ID, "", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestChangePlanUnknownSubscriber(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ChangePlan(context.Background(), 999, enums.PlanBasic, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
