package campaigns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/pkg/db"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/fintrack-backend/pkg/db/types"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/metrics"
)

// Rejection reasons reported in COUPON_REJECTED details.
const (
	ReasonNotFound        = "not_found"
	ReasonInactive        = "inactive"
	ReasonExpired         = "expired"
	ReasonUsageCapReached = "usage_cap_reached"
	ReasonPlanNotEligible = "plan_not_eligible"
)

type planReader interface {
	Get(ctx context.Context, planType enums.PlanType) (*models.Plan, error)
}

// Quote is a priced preview of a coupon against a plan. Producing one has no
// side effects.
type Quote struct {
	Campaign    models.Campaign `json:"-"`
	Code        string          `json:"code"`
	PlanType    enums.PlanType  `json:"plan_type"`
	Amount      decimal.Decimal `json:"amount"`
	Discount    decimal.Decimal `json:"discount"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	Currency    string          `json:"currency"`
}

// Service validates coupons and records redemptions.
type Service interface {
	Validate(ctx context.Context, code string, planType enums.PlanType) (*Quote, error)
	Resolve(ctx context.Context, code string, plan models.Plan) (*Quote, error)
	Redeem(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID) error
	Create(ctx context.Context, input CreateInput) (*models.Campaign, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Campaign, error)
	List(ctx context.Context) ([]models.Campaign, error)
}

// ServiceParams groups dependencies for the campaign service.
type ServiceParams struct {
	Repo    Repository
	Plans   planReader
	Metrics *metrics.BillingMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

// CreateInput is the admin form for a new campaign.
type CreateInput struct {
	Code          string
	Description   string
	DiscountType  enums.DiscountType
	DiscountValue decimal.Decimal
	PlanTypes     []enums.PlanType
	UsageCap      *int64
	StartsAt      *time.Time
	EndsAt        *time.Time
}

type service struct {
	repo    Repository
	plans   planReader
	metrics *metrics.BillingMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the campaign service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("campaign repo required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan reader required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repo,
		plans:   params.Plans,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) Validate(ctx context.Context, code string, planType enums.PlanType) (*Quote, error) {
	normalized, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.Get(ctx, planType)
	if err != nil {
		return nil, err
	}
	return s.Resolve(ctx, normalized, *plan)
}

// Resolve checks the campaign behind code against plan and prices the discount.
func (s *service) Resolve(ctx context.Context, code string, plan models.Plan) (*Quote, error) {
	normalized, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	campaign, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load campaign")
	}
	if campaign == nil {
		return nil, rejected(normalized, ReasonNotFound)
	}
	if reason := eligibility(*campaign, plan.Type, s.now()); reason != "" {
		return nil, rejected(normalized, reason)
	}

	discount := ComputeDiscount(campaign.DiscountType, campaign.DiscountValue, plan.Price)
	return &Quote{
		Campaign:    *campaign,
		Code:        campaign.Code,
		PlanType:    plan.Type,
		Amount:      plan.Price,
		Discount:    discount,
		FinalAmount: FinalAmount(plan.Price, discount),
		Currency:    plan.Currency,
	}, nil
}

// eligibility returns the first rejection reason, or "" when the campaign applies.
func eligibility(c models.Campaign, planType enums.PlanType, now time.Time) string {
	if !c.Active {
		return ReasonInactive
	}
	if (c.StartsAt != nil && now.Before(*c.StartsAt)) || (c.EndsAt != nil && now.After(*c.EndsAt)) {
		return ReasonExpired
	}
	if c.UsageCap != nil && c.UsageCount >= *c.UsageCap {
		return ReasonUsageCapReached
	}
	if len(c.PlanTypes) > 0 && !c.PlanTypes.Contains(string(planType)) {
		return ReasonPlanNotEligible
	}
	return ""
}

func rejected(code, reason string) error {
	return pkgerrors.New(pkgerrors.CodeCouponRejected, "coupon cannot be applied").
		WithDetails(map[string]any{"code": code, "reason": reason})
}

// Redeem counts one redemption inside the payment completion transaction.
func (s *service) Redeem(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "redeem requires a transaction")
	}
	repo := s.repo.WithTx(tx)
	rows, err := repo.IncrementUsage(ctx, campaignID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redeem campaign")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
	}
	campaign, err := repo.FindByID(ctx, campaignID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload campaign")
	}
	if campaign != nil {
		s.metrics.CouponRedeemed(campaign.Code)
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"campaign_id": campaignID.String(),
			"code":        campaign.Code,
			"usage_count": campaign.UsageCount,
		})
		s.logg.Info(logCtx, "coupon redeemed")
		if campaign.OverCap() {
			s.logg.Warn(logCtx, "coupon redeemed past its usage cap")
		}
	}
	return nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Campaign, error) {
	code, err := NormalizeCode(input.Code)
	if err != nil {
		return nil, err
	}
	if !input.DiscountType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid discount type")
	}
	if input.DiscountValue.Sign() <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount value must be positive")
	}
	if input.DiscountType == enums.DiscountTypePercentage && input.DiscountValue.GreaterThan(hundred) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "percentage discount cannot exceed 100")
	}
	if input.UsageCap != nil && *input.UsageCap <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "usage cap must be positive")
	}
	if input.StartsAt != nil && input.EndsAt != nil && !input.EndsAt.After(*input.StartsAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ends_at must be after starts_at")
	}
	planTypes := dbtypes.StringList{}
	for _, pt := range input.PlanTypes {
		if !pt.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan type").
				WithDetails(map[string]any{"plan_type": pt})
		}
		planTypes = append(planTypes, string(pt))
	}

	campaign := &models.Campaign{
		Code:          code,
		Description:   strings.TrimSpace(input.Description),
		DiscountType:  input.DiscountType,
		DiscountValue: input.DiscountValue.Round(2),
		PlanTypes:     planTypes,
		UsageCap:      input.UsageCap,
		Active:        true,
		StartsAt:      input.StartsAt,
		EndsAt:        input.EndsAt,
	}
	if err := s.repo.Create(ctx, campaign); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create campaign")
	}
	s.logg.Info(s.logg.WithField(ctx, "code", code), "campaign created")
	return campaign, nil
}

func (s *service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Campaign, error) {
	rows, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update campaign")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
	}
	campaign, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload campaign")
	}
	return campaign, nil
}

func (s *service) List(ctx context.Context) ([]models.Campaign, error) {
	rows, err := s.repo.List(ctx, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list campaigns")
	}
	return rows, nil
}
