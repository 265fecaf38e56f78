package campaigns

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
)

type stubPlans map[enums.PlanType]models.Plan

func (s stubPlans) Get(ctx context.Context, planType enums.PlanType) (*models.Plan, error) {
	plan, ok := s[planType]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	return &plan, nil
}

var testPlans = stubPlans{
	enums.PlanBasic:   {Type: enums.PlanBasic, Price: decimal.NewFromInt(1500), Currency: "XAF"},
	enums.PlanPremium: {Type: enums.PlanPremium, Price: decimal.NewFromInt(14500), Currency: "XAF"},
}

type campaignFixture struct {
	db  *gorm.DB
	svc Service
	now time.Time
}

func newCampaignFixture(t *testing.T) *campaignFixture {
	t.Helper()
	client := dbtest.Open(t)
	f := &campaignFixture{db: client.DB(), now: time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)}
	svc, err := NewService(ServiceParams{
		Repo:  NewRepository(f.db),
		Plans: testPlans,
		Now:   func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func rejectionReason(t *testing.T, err error) string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, pkgerrors.CodeCouponRejected, typed.Code())
	return typed.Details().(map[string]any)["reason"].(string)
}

func TestSave2000Scenario(t *testing.T) {
	f := newCampaignFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, CreateInput{Code: "save2000", DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(2000)})
	require.NoError(t, err)

	quote, err := f.svc.Validate(ctx, "SAVE2000", enums.PlanPremium)
	require.NoError(t, err)
	assert.True(t, quote.FinalAmount.Equal(decimal.NewFromInt(12500)))
	assert.True(t, quote.Discount.Equal(decimal.NewFromInt(2000)))

	quote, err = f.svc.Validate(ctx, " save2000", enums.PlanBasic)
	require.NoError(t, err)
	assert.True(t, quote.FinalAmount.IsZero())
	assert.True(t, quote.Discount.Equal(decimal.NewFromInt(1500)))
}

func TestValidateIsSideEffectFree(t *testing.T) {
	f := newCampaignFixture(t)
	ctx := context.Background()
	usageCap := int64(1)
	c, err := f.svc.Create(ctx, CreateInput{Code: "ONCE", DiscountType: enums.DiscountTypePercentage, DiscountValue: decimal.NewFromInt(10), UsageCap: &usageCap})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Validate(ctx, "once", enums.PlanPremium)
		require.NoError(t, err)
	}
	var stored models.Campaign
	require.NoError(t, f.db.First(&stored, "id = ?", c.ID).Error)
	assert.Zero(t, stored.UsageCount)
}

func TestRejectionReasons(t *testing.T) {
	f := newCampaignFixture(t)
	ctx := context.Background()
	future := f.now.Add(24 * time.Hour)
	past := f.now.Add(-time.Hour)
	usageCap := int64(1)

	_, err := f.svc.Validate(ctx, "MISSING", enums.PlanBasic)
	assert.Equal(t, ReasonNotFound, rejectionReason(t, err))

	off, err := f.svc.Create(ctx, CreateInput{Code: "OFF", DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(1)})
	require.NoError(t, err)
	_, err = f.svc.SetActive(ctx, off.ID, false)
	require.NoError(t, err)
	_, err = f.svc.Validate(ctx, "OFF", enums.PlanBasic)
	assert.Equal(t, ReasonInactive, rejectionReason(t, err))

	_, err = f.svc.Create(ctx, CreateInput{Code: "LATER", DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(1), StartsAt: &future})
	require.NoError(t, err)
	_, err = f.svc.Validate(ctx, "LATER", enums.PlanBasic)
	assert.Equal(t, ReasonExpired, rejectionReason(t, err))

	_, err = f.svc.Create(ctx, CreateInput{Code: "GONE", DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(1), EndsAt: &past})
	require.NoError(t, err)
	_, err = f.svc.Validate(ctx, "GONE", enums.PlanBasic)
	assert.Equal(t, ReasonExpired, rejectionReason(t, err))

	used, err := f.svc.Create(ctx, CreateInput{Code: "USED", DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(1), UsageCap: &usageCap})
	require.NoError(t, err)
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error { return f.svc.Redeem(ctx, tx, used.ID) }))
	_, err = f.svc.Validate(ctx, "USED", enums.PlanBasic)
	assert.Equal(t, ReasonUsageCapReached, rejectionReason(t, err))

	_, err = f.svc.Create(ctx, CreateInput{Code: "PREMONLY", DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(1), PlanTypes: []enums.PlanType{enums.PlanPremium}})
	require.NoError(t, err)
	_, err = f.svc.Validate(ctx, "PREMONLY", enums.PlanBasic)
	assert.Equal(t, ReasonPlanNotEligible, rejectionReason(t, err))
	_, err = f.svc.Validate(ctx, "PREMONLY", enums.PlanPremium)
	assert.NoError(t, err)
}

func TestMalformedCodeIsValidationError(t *testing.T) {
	f := newCampaignFixture(t)
	_, err := f.svc.Validate(context.Background(), "bad code!", enums.PlanBasic)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	f := newCampaignFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, CreateInput{Code: "DUP", DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(1)})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, CreateInput{Code: "dup", DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.Create(ctx, CreateInput{Code: "PCT", DiscountType: enums.DiscountTypePercentage, DiscountValue: decimal.NewFromInt(120)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRedeemUnknownCampaign(t *testing.T) {
	f := newCampaignFixture(t)
	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.Redeem(context.Background(), tx, uuid.New())
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
