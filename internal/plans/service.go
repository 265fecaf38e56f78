package plans

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/fintrack-backend/pkg/db/types"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/types"
)

// Service exposes the plan catalog. Everything except Upsert and Seed is read-only.
type Service interface {
	Get(ctx context.Context, planType enums.PlanType) (*models.Plan, error)
	GetTx(ctx context.Context, tx *gorm.DB, planType enums.PlanType) (*models.Plan, error)
	List(ctx context.Context) ([]models.Plan, error)
	Upsert(ctx context.Context, input UpsertInput) (*models.Plan, error)
	Seed(ctx context.Context) error
}

// ServiceParams groups dependencies for the plan service.
type ServiceParams struct {
	Repo            Repository
	Logger          *logger.Logger
	DefaultCurrency string
	TrialDays       int
}

// UpsertInput is the admin-editable shape of a plan.
type UpsertInput struct {
	Type                    enums.PlanType
	Name                    string
	Rank                    int
	Price                   decimal.Decimal
	Currency                string
	Features                map[string]bool
	MaxAccounts             types.Limit
	MaxTransactionsPerMonth types.Limit
	TrialDays               *int
	GatewayPriceID          *string
	Active                  bool
}

type service struct {
	repo      Repository
	logg      *logger.Logger
	currency  string
	trialDays int
}

// NewService builds a plan catalog service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("plan repo required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.DefaultCurrency))
	if currency == "" {
		return nil, fmt.Errorf("default currency required")
	}
	return &service{
		repo:      params.Repo,
		logg:      params.Logger,
		currency:  currency,
		trialDays: params.TrialDays,
	}, nil
}

func (s *service) Get(ctx context.Context, planType enums.PlanType) (*models.Plan, error) {
	return s.GetTx(ctx, nil, planType)
}

// GetTx reads the plan through tx when one is given.
func (s *service) GetTx(ctx context.Context, tx *gorm.DB, planType enums.PlanType) (*models.Plan, error) {
	if !planType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan type").
			WithDetails(map[string]any{"plan_type": planType})
	}
	plan, err := s.repo.WithTx(tx).FindByType(ctx, planType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	return plan, nil
}

func (s *service) List(ctx context.Context) ([]models.Plan, error) {
	plans, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plans")
	}
	return plans, nil
}

func (s *service) Upsert(ctx context.Context, input UpsertInput) (*models.Plan, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan type")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.Rank <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rank must be positive")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}

	existing, err := s.repo.FindByRank(ctx, input.Rank)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check plan rank")
	}
	if existing != nil && existing.Type != input.Type {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "rank already used by another plan").
			WithDetails(map[string]any{"rank": input.Rank, "plan_type": existing.Type})
	}

	if !input.Active {
		count, err := s.repo.CountSubscribersOnPlan(ctx, input.Type)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count plan subscribers")
		}
		if count > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan is referenced by active subscribers").
				WithDetails(map[string]any{"plan_type": input.Type, "subscribers": count})
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.currency
	}
	trialDays := s.trialDays
	if input.TrialDays != nil {
		if *input.TrialDays < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "trial_days must not be negative")
		}
		trialDays = *input.TrialDays
	}

	plan := &models.Plan{
		Type:           input.Type,
		Name:           strings.TrimSpace(input.Name),
		Rank:           input.Rank,
		Price:          input.Price.Round(2),
		Currency:       currency,
		Features:       dbtypes.FeatureSet(input.Features),
		TrialDays:      trialDays,
		GatewayPriceID: input.GatewayPriceID,
		Active:         input.Active,
	}
	if plan.Features == nil {
		plan.Features = dbtypes.FeatureSet{}
	}
	plan.SetLimits(input.MaxAccounts, input.MaxTransactionsPerMonth)

	if err := s.repo.Upsert(ctx, plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save plan")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"plan_type": plan.Type, "rank": plan.Rank})
	s.logg.Info(logCtx, "plan saved")
	return s.Get(ctx, plan.Type)
}

// Seed inserts the default catalog when no plan exists yet.
func (s *service) Seed(ctx context.Context) error {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count plans")
	}
	if count > 0 {
		return nil
	}
	for _, input := range DefaultCatalog(s.currency) {
		if _, err := s.Upsert(ctx, input); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "default plan catalog seeded")
	return nil
}

// Compare orders two plans by rank: negative when a ranks below b.
func Compare(a, b models.Plan) int {
	switch {
	case a.Rank < b.Rank:
		return -1
	case a.Rank > b.Rank:
		return 1
	}
	return 0
}

// DefaultCatalog is the three-tier catalog used on first boot.
func DefaultCatalog(currency string) []UpsertInput {
	return []UpsertInput{
		{
			Type:                    enums.PlanBasic,
			Name:                    "Basic",
			Rank:                    1,
			Price:                   decimal.NewFromInt(5000),
			Currency:                currency,
			Features:                map[string]bool{FeatureBudgets: true},
			MaxAccounts:             types.Finite(5),
			MaxTransactionsPerMonth: types.Finite(100),
			Active:                  true,
		},
		{
			Type:                    enums.PlanPremium,
			Name:                    "Premium",
			Rank:                    2,
			Price:                   decimal.NewFromInt(14500),
			Currency:                currency,
			Features:                map[string]bool{FeatureBudgets: true, FeatureSavingsGoals: true, FeatureExport: true},
			MaxAccounts:             types.Finite(20),
			MaxTransactionsPerMonth: types.Finite(1000),
			Active:                  true,
		},
		{
			Type:     enums.PlanEnterprise,
			Name:     "Enterprise",
			Rank:     3,
			Price:    decimal.NewFromInt(29500),
			Currency: currency,
			Features: map[string]bool{
				FeatureBudgets:        true,
				FeatureSavingsGoals:   true,
				FeatureExport:         true,
				FeatureTeamManagement: true,
				FeatureAPIAccess:      true,
			},
			MaxAccounts:             types.Unlimited(),
			MaxTransactionsPerMonth: types.Unlimited(),
			Active:                  true,
		},
	}
}
