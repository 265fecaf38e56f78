package plans

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
)

// Repository handles plan catalog persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	List(ctx context.Context, activeOnly bool) ([]models.Plan, error)
	FindByType(ctx context.Context, planType enums.PlanType) (*models.Plan, error)
	FindByRank(ctx context.Context, rank int) (*models.Plan, error)
	Upsert(ctx context.Context, plan *models.Plan) error
	CountSubscribersOnPlan(ctx context.Context, planType enums.PlanType) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a plan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) List(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	var plans []models.Plan
	query := r.db.WithContext(ctx).Order("rank ASC")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	if err := query.Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) FindByType(ctx context.Context, planType enums.PlanType) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).Where("type = ?", planType).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindByRank(ctx context.Context, rank int) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).Where("rank = ?", rank).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) Upsert(ctx context.Context, plan *models.Plan) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "rank", "price", "currency", "features", "max_accounts",
			"max_transactions_per_month", "trial_days", "gateway_price_id", "active", "updated_at",
		}),
	}).Create(plan).Error
}

func (r *repository) CountSubscribersOnPlan(ctx context.Context, planType enums.PlanType) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Subscriber{}).
		Where("plan_type = ? AND status <> ?", planType, enums.SubscriptionStatusCanceled).
		Count(&count).Error
	return count, err
}

func (r *repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Plan{}).Count(&count).Error
	return count, err
}
