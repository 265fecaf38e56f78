package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/internal/campaigns"
	"github.com/angelmondragon/fintrack-backend/internal/plans"
	"github.com/angelmondragon/fintrack-backend/internal/subscribers"
	"github.com/angelmondragon/fintrack-backend/internal/usage"
	"github.com/angelmondragon/fintrack-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/outbox"
	"github.com/angelmondragon/fintrack-backend/pkg/paddle"
)

type stubGateway struct {
	err      error
	requests []paddle.CheckoutRequest
}

func (g *stubGateway) BeginCheckout(ctx context.Context, req paddle.CheckoutRequest) (paddle.CheckoutSession, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return paddle.CheckoutSession{}, g.err
	}
	return paddle.CheckoutSession{TransactionID: "txn_" + req.Reference, URL: "https://pay.example.com/" + req.Reference}, nil
}

type paymentFixture struct {
	db        *gorm.DB
	svc       Service
	lifecycle subscribers.Service
	campaigns campaigns.Service
	gateway   *stubGateway
	now       time.Time
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	client := dbtest.Open(t)
	f := &paymentFixture{
		db:      client.DB(),
		gateway: &stubGateway{},
		now:     time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	ctx := context.Background()

	planSvc, err := plans.NewService(plans.ServiceParams{Repo: plans.NewRepository(f.db), DefaultCurrency: "XAF", TrialDays: 14})
	require.NoError(t, err)
	require.NoError(t, planSvc.Seed(ctx))
	require.NoError(t, f.db.Model(&models.Plan{}).Where("type = ?", enums.PlanPremium).Update("gateway_price_id", "pri_premium").Error)

	counter, err := usage.NewCounter(usage.CounterParams{Repo: usage.NewRepository(f.db), Plans: planSvc, Now: clock})
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(f.db), logger.Discard())
	f.lifecycle, err = subscribers.NewService(subscribers.ServiceParams{
		Repo:              subscribers.NewRepository(f.db),
		Plans:             planSvc,
		Usage:             counter,
		Outbox:            emitter,
		TransactionRunner: client,
		DefaultTrialDays:  14,
		Now:               clock,
	})
	require.NoError(t, err)
	f.campaigns, err = campaigns.NewService(campaigns.ServiceParams{Repo: campaigns.NewRepository(f.db), Plans: planSvc, Now: clock})
	require.NoError(t, err)

	f.svc, err = NewService(ServiceParams{
		Repo:              NewRepository(f.db),
		Plans:             planSvc,
		Campaigns:         f.campaigns,
		Lifecycle:         f.lifecycle,
		Gateway:           f.gateway,
		Outbox:            emitter,
		TransactionRunner: client,
		ManualTTL:         24 * time.Hour,
		Now:               clock,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.SeedMethods(ctx))
	return f
}

func (f *paymentFixture) subscriber(t *testing.T, plan enums.PlanType) uint64 {
	t.Helper()
	sub, err := f.lifecycle.SignUp(context.Background(), subscribers.SignUpInput{
		Email:    uuid.NewString() + "@example.com",
		PlanType: plan,
	})
	require.NoError(t, err)
	return sub.ID
}

func (f *paymentFixture) coupon(t *testing.T, code string) uuid.UUID {
	t.Helper()
	campaign, err := f.campaigns.Create(context.Background(), campaigns.CreateInput{
		Code:          code,
		DiscountType:  enums.DiscountTypeFixed,
		DiscountValue: decimal.NewFromInt(2000),
	})
	require.NoError(t, err)
	return campaign.ID
}

func (f *paymentFixture) usageCount(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	var campaign models.Campaign
	require.NoError(t, f.db.Where("id = ?", id).First(&campaign).Error)
	return campaign.UsageCount
}

func (f *paymentFixture) manualPayment(t *testing.T, subscriberID uint64, coupon string) *models.Payment {
	t.Helper()
	payment, err := f.svc.Create(context.Background(), CreateInput{
		SubscriberID:  subscriberID,
		PlanType:      enums.PlanPremium,
		PaymentMethod: enums.PaymentMethodMobileMoneyMTN,
		CouponCode:    coupon,
	})
	require.NoError(t, err)
	return payment
}

func (f *paymentFixture) underReview(t *testing.T, subscriberID uint64, coupon string) *models.Payment {
	t.Helper()
	payment := f.manualPayment(t, subscriberID, coupon)
	payment, err := f.svc.SubmitProof(context.Background(), payment.ID, ProofInput{PhoneNumber: "+237670000000"})
	require.NoError(t, err)
	return payment
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected %s, got %v", code, err)
	require.Equal(t, code, typed.Code(), typed.Error())
	return typed
}

func TestManualPaymentLocksInDiscount(t *testing.T) {
	f := newPaymentFixture(t)
	sub := f.subscriber(t, enums.PlanBasic)
	f.coupon(t, "SAVE2000")

	payment := f.manualPayment(t, sub, "save2000")
	assert.Equal(t, enums.PaymentStatusAwaitingProof, payment.Status)
	assert.Equal(t, enums.PaymentFamilyManual, payment.Family)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(14500)))
	assert.True(t, payment.DiscountAmount.Equal(decimal.NewFromInt(2000)))
	assert.True(t, payment.FinalAmount.Equal(decimal.NewFromInt(12500)))
	require.NotNil(t, payment.ExpiresAt)
	assert.Equal(t, f.now.Add(24*time.Hour), payment.ExpiresAt.UTC())
	assert.Equal(t, "FT-00000001", payment.Reference())
	require.NotNil(t, payment.CouponCode)
	assert.Equal(t, "SAVE2000", *payment.CouponCode)
}

func TestManualPaymentExpiresAfterTTL(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	sub := f.subscriber(t, enums.PlanBasic)
	campaignID := f.coupon(t, "SAVE2000")
	payment := f.manualPayment(t, sub, "SAVE2000")

	f.now = f.now.Add(25 * time.Hour)
	got, err := f.svc.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusExpired, got.Status)

	_, err = f.svc.SubmitProof(ctx, payment.ID, ProofInput{BankReference: "TRX-1"})
	typed := requireCode(t, err, pkgerrors.CodeExpired)
	assert.Equal(t, NextActionRetry, typed.Details().(map[string]any)["next_action"])
	assert.Equal(t, int64(0), f.usageCount(t, campaignID))

	events, err := f.svc.Events(ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, enums.PaymentStatusExpired, events[1].ToStatus)
}

func TestExpireOverdueSweepsOpenManualPayments(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	stale := f.manualPayment(t, f.subscriber(t, enums.PlanBasic), "")
	reviewed := f.underReview(t, f.subscriber(t, enums.PlanBasic), "")

	n, err := f.svc.ExpireOverdue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.now = f.now.Add(25 * time.Hour)
	n, err = f.svc.ExpireOverdue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var row models.Payment
	require.NoError(t, f.db.Where("id = ?", stale.ID).First(&row).Error)
	assert.Equal(t, enums.PaymentStatusExpired, row.Status)
	require.NoError(t, f.db.Where("id = ?", reviewed.ID).First(&row).Error)
	assert.Equal(t, enums.PaymentStatusUnderReview, row.Status)

	var notices int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventPaymentExpired).Count(&notices).Error)
	assert.Equal(t, int64(1), notices)

	n, err = f.svc.ExpireOverdue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUnderReviewDoesNotExpire(t *testing.T) {
	f := newPaymentFixture(t)
	sub := f.subscriber(t, enums.PlanBasic)
	payment := f.underReview(t, sub, "")
	assert.Equal(t, enums.PaymentStatusUnderReview, payment.Status)
	assert.Nil(t, payment.ExpiresAt)

	f.now = f.now.Add(72 * time.Hour)
	got, err := f.svc.Get(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusUnderReview, got.Status)
}

func TestSubmitProofRequiresEvidence(t *testing.T) {
	f := newPaymentFixture(t)
	sub := f.subscriber(t, enums.PlanBasic)
	payment := f.manualPayment(t, sub, "")
	_, err := f.svc.SubmitProof(context.Background(), payment.ID, ProofInput{Description: "paid"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestReviewApprovalActivatesOnce(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	sub := f.subscriber(t, enums.PlanBasic)
	campaignID := f.coupon(t, "SAVE2000")
	payment := f.underReview(t, sub, "SAVE2000")

	outcome, err := f.svc.Complete(ctx, payment.ID, ReviewSource(99, "matched statement"))
	require.NoError(t, err)
	assert.False(t, outcome.Duplicate)
	assert.Equal(t, enums.PaymentStatusCompleted, outcome.Payment.Status)
	assert.NotNil(t, outcome.Payment.ProcessedAt)

	again, err := f.svc.Complete(ctx, payment.ID, ReviewSource(99, ""))
	require.NoError(t, err)
	assert.True(t, again.Duplicate)

	subscriber, err := f.lifecycle.Get(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, subscriber.Status)
	assert.Equal(t, enums.PlanPremium, subscriber.PlanType)
	assert.Equal(t, int64(1), f.usageCount(t, campaignID))

	proof, err := f.svc.Proof(ctx, payment.ID)
	require.NoError(t, err)
	require.NotNil(t, proof.Decision)
	assert.Equal(t, enums.ReviewDecisionApprove, *proof.Decision)
	assert.Equal(t, uint64(99), *proof.ReviewerID)
}

func TestRejectLeavesSubscriberAlone(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	sub := f.subscriber(t, enums.PlanBasic)
	campaignID := f.coupon(t, "SAVE2000")
	payment := f.underReview(t, sub, "SAVE2000")

	rejected, err := f.svc.Reject(ctx, payment.ID, ReviewSource(7, "amount mismatch"))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRejected, rejected.Status)
	require.NotNil(t, rejected.FailureReason)
	assert.Equal(t, "amount mismatch", *rejected.FailureReason)

	subscriber, err := f.lifecycle.Get(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusTrialing, subscriber.Status)
	assert.Equal(t, enums.PlanBasic, subscriber.PlanType)
	assert.Equal(t, int64(0), f.usageCount(t, campaignID))

	_, err = f.svc.Complete(ctx, payment.ID, ReviewSource(7, ""))
	typed := requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Equal(t, NextActionContactSupport, typed.Details().(map[string]any)["next_action"])
}

func TestGatewayCheckoutAndReplayedCompletion(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	sub := f.subscriber(t, enums.PlanBasic)
	campaignID := f.coupon(t, "SAVE2000")

	payment, err := f.svc.Create(ctx, CreateInput{
		SubscriberID:  sub,
		PlanType:      enums.PlanPremium,
		PaymentMethod: enums.PaymentMethodGatewayCard,
		CouponCode:    "SAVE2000",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRedirected, payment.Status)
	require.NotNil(t, payment.CheckoutURL)
	require.NotNil(t, payment.ExternalReference)
	require.Len(t, f.gateway.requests, 1)
	assert.Equal(t, "pri_premium", f.gateway.requests[0].PriceID)
	assert.True(t, f.gateway.requests[0].FinalAmount.Equal(decimal.NewFromInt(12500)))

	first, err := f.svc.Complete(ctx, payment.ID, GatewaySource("evt_1", "transaction.completed"))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	replay, err := f.svc.Complete(ctx, payment.ID, GatewaySource("evt_1", "transaction.completed"))
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)

	sibling, err := f.svc.Complete(ctx, payment.ID, GatewaySource("evt_2", "transaction.paid"))
	require.NoError(t, err)
	assert.True(t, sibling.Duplicate)

	assert.Equal(t, int64(1), f.usageCount(t, campaignID))
	history, err := f.lifecycle.History(ctx, sub)
	require.NoError(t, err)
	activations := 0
	for _, row := range history {
		if row.Reason == subscribers.ReasonPaymentCompleted {
			activations++
		}
	}
	assert.Equal(t, 1, activations)

	var recorded int64
	require.NoError(t, f.db.Model(&models.GatewayEvent{}).Count(&recorded).Error)
	assert.Equal(t, int64(2), recorded)
}

func TestGatewayOutageLeavesPaymentRetryable(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	sub := f.subscriber(t, enums.PlanBasic)
	f.gateway.err = errors.New("connection reset")

	_, err := f.svc.Create(ctx, CreateInput{SubscriberID: sub, PlanType: enums.PlanPremium, PaymentMethod: enums.PaymentMethodGatewayCard})
	typed := requireCode(t, err, pkgerrors.CodeDependency)
	details := typed.Details().(map[string]any)
	paymentID := details["payment_id"].(uint64)
	assert.Equal(t, NextActionRetry, details["next_action"])

	stuck, err := f.svc.Get(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCreated, stuck.Status)

	f.gateway.err = nil
	retried, err := f.svc.RetryCheckout(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRedirected, retried.Status)
}

func TestGatewayFailureIsTerminal(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	sub := f.subscriber(t, enums.PlanBasic)
	campaignID := f.coupon(t, "SAVE2000")
	payment, err := f.svc.Create(ctx, CreateInput{
		SubscriberID:  sub,
		PlanType:      enums.PlanPremium,
		PaymentMethod: enums.PaymentMethodGatewayCard,
		CouponCode:    "SAVE2000",
	})
	require.NoError(t, err)

	outcome, err := f.svc.Fail(ctx, payment.ID, "card_declined", GatewaySource("evt_fail", "transaction.payment_failed"))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, outcome.Payment.Status)

	_, err = f.svc.Complete(ctx, payment.ID, GatewaySource("evt_late", "transaction.completed"))
	typed := requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Equal(t, NextActionRetry, typed.Details().(map[string]any)["next_action"])

	subscriber, err := f.lifecycle.Get(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusTrialing, subscriber.Status)
	assert.Equal(t, int64(0), f.usageCount(t, campaignID))
}

func TestSourceMustMatchFamily(t *testing.T) {
	f := newPaymentFixture(t)
	sub := f.subscriber(t, enums.PlanBasic)
	payment := f.underReview(t, sub, "")
	_, err := f.svc.Complete(context.Background(), payment.ID, GatewaySource("evt_x", "transaction.completed"))
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestDowngradePaymentBlockedByUsage(t *testing.T) {
	f := newPaymentFixture(t)
	sub := f.subscriber(t, enums.PlanPremium)
	for i := 0; i < 6; i++ {
		require.NoError(t, f.db.Create(&models.Account{SubscriberID: sub, Name: "wallet", Kind: "checking", CreatedAt: f.now}).Error)
	}
	_, err := f.svc.Create(context.Background(), CreateInput{
		SubscriberID:  sub,
		PlanType:      enums.PlanBasic,
		PaymentMethod: enums.PaymentMethodBankTransfer,
	})
	typed := requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Equal(t, enums.ResourceAccounts, typed.Details().(map[string]any)["resource"])
}

func TestApprovalRechecksDowngradeAgainstCurrentUsage(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	sub := f.subscriber(t, enums.PlanPremium)

	payment, err := f.svc.Create(ctx, CreateInput{
		SubscriberID:  sub,
		PlanType:      enums.PlanBasic,
		PaymentMethod: enums.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		require.NoError(t, f.db.Create(&models.Account{SubscriberID: sub, Name: "wallet", Kind: "checking", CreatedAt: f.now}).Error)
	}
	_, err = f.svc.SubmitProof(ctx, payment.ID, ProofInput{BankReference: "TRX-88"})
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, payment.ID, ReviewSource(99, "statement matched"))
	typed := requireCode(t, err, pkgerrors.CodeStateConflict)
	details := typed.Details().(map[string]any)
	assert.Equal(t, enums.ResourceAccounts, details["resource"])
	assert.Equal(t, int64(8), details["current"])

	stored, err := f.svc.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusUnderReview, stored.Status)
	subscriber, err := f.lifecycle.Get(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, enums.PlanPremium, subscriber.PlanType)
	assert.Equal(t, enums.SubscriptionStatusTrialing, subscriber.Status)

	rejected, err := f.svc.Reject(ctx, payment.ID, ReviewSource(99, "usage above basic limits"))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRejected, rejected.Status)
}

func TestGatewayCompletionRefusesDowngradeOverUsage(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	sub := f.subscriber(t, enums.PlanEnterprise)

	payment, err := f.svc.Create(ctx, CreateInput{
		SubscriberID:  sub,
		PlanType:      enums.PlanPremium,
		PaymentMethod: enums.PaymentMethodGatewayCard,
	})
	require.NoError(t, err)
	for i := 0; i < 21; i++ {
		require.NoError(t, f.db.Create(&models.Account{SubscriberID: sub, Name: "wallet", Kind: "checking", CreatedAt: f.now}).Error)
	}

	_, err = f.svc.Complete(ctx, payment.ID, GatewaySource("evt_down", "transaction.completed"))
	requireCode(t, err, pkgerrors.CodeStateConflict)

	stored, err := f.svc.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRedirected, stored.Status)
	subscriber, err := f.lifecycle.Get(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, enums.PlanEnterprise, subscriber.PlanType)
}

func TestCreateRejectsUnknownCoupon(t *testing.T) {
	f := newPaymentFixture(t)
	sub := f.subscriber(t, enums.PlanBasic)
	_, err := f.svc.Create(context.Background(), CreateInput{
		SubscriberID:  sub,
		PlanType:      enums.PlanPremium,
		PaymentMethod: enums.PaymentMethodBankTransfer,
		CouponCode:    "NOPE",
	})
	requireCode(t, err, pkgerrors.CodeCouponRejected)

	var count int64
	require.NoError(t, f.db.Model(&models.Payment{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestCouponCapCountsEveryLockedInCompletion(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	one := int64(1)
	campaign, err := f.campaigns.Create(ctx, campaigns.CreateInput{
		Code:          "ONCE",
		DiscountType:  enums.DiscountTypeFixed,
		DiscountValue: decimal.NewFromInt(2000),
		UsageCap:      &one,
	})
	require.NoError(t, err)

	// Both lock in the coupon while the count is still zero.
	first := f.underReview(t, f.subscriber(t, enums.PlanBasic), "ONCE")
	second := f.underReview(t, f.subscriber(t, enums.PlanBasic), "ONCE")

	for _, payment := range []*models.Payment{first, second} {
		outcome, err := f.svc.Complete(ctx, payment.ID, ReviewSource(7, ""))
		require.NoError(t, err)
		assert.Equal(t, enums.PaymentStatusCompleted, outcome.Payment.Status)
		assert.True(t, outcome.Payment.DiscountAmount.Equal(decimal.NewFromInt(2000)))
	}
	assert.Equal(t, int64(2), f.usageCount(t, campaign.ID))

	// Once over the cap, new payments can no longer lock it in.
	_, err = f.svc.Create(ctx, CreateInput{
		SubscriberID:  f.subscriber(t, enums.PlanBasic),
		PlanType:      enums.PlanPremium,
		PaymentMethod: enums.PaymentMethodMobileMoneyMTN,
		CouponCode:    "ONCE",
	})
	rejection := requireCode(t, err, pkgerrors.CodeCouponRejected)
	details, ok := rejection.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, campaigns.ReasonUsageCapReached, details["reason"])
}
