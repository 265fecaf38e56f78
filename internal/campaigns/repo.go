package campaigns

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
)

// Repository handles campaign persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, campaign *models.Campaign) error
	FindByCode(ctx context.Context, code string) (*models.Campaign, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	List(ctx context.Context, activeOnly bool) ([]models.Campaign, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (int64, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a campaign repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, campaign *models.Campaign) error {
	return r.db.WithContext(ctx).Create(campaign).Error
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &campaign, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &campaign, nil
}

func (r *repository) List(ctx context.Context, activeOnly bool) ([]models.Campaign, error) {
	var rows []models.Campaign
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SetActive(ctx context.Context, id uuid.UUID, active bool) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", id).
		Update("active", active)
	return res.RowsAffected, res.Error
}

// IncrementUsage adds one redemption. The counter is never decremented.
func (r *repository) IncrementUsage(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", id).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	return res.RowsAffected, res.Error
}
