package subscribers

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
)

// Repository handles subscriber and lifecycle history persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.Subscriber) error
	FindByID(ctx context.Context, id uint64) (*models.Subscriber, error)
	FindByEmail(ctx context.Context, email string) (*models.Subscriber, error)
	Lock(ctx context.Context, id uint64) (bool, error)
	UpdateLifecycle(ctx context.Context, id uint64, expected enums.SubscriptionStatus, updates map[string]any) (int64, error)
	AppendHistory(ctx context.Context, entry *models.SubscriptionHistory) error
	ListHistory(ctx context.Context, id uint64) ([]models.SubscriptionHistory, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscriber repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sub *models.Subscriber) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) FindByID(ctx context.Context, id uint64) (*models.Subscriber, error) {
	var sub models.Subscriber
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	var sub models.Subscriber
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// Lock bumps lock_version so the row stays write-locked until the surrounding
// transaction ends. Concurrent lockers queue behind it and recount afterwards.
func (r *repository) Lock(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		"UPDATE subscribers SET lock_version = lock_version + 1 WHERE id = ?", id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateLifecycle applies updates only while the row still has the expected status.
func (r *repository) UpdateLifecycle(ctx context.Context, id uint64, expected enums.SubscriptionStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Subscriber{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) AppendHistory(ctx context.Context, entry *models.SubscriptionHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListHistory(ctx context.Context, id uint64) ([]models.SubscriptionHistory, error) {
	var rows []models.SubscriptionHistory
	if err := r.db.WithContext(ctx).
		Where("subscriber_id = ?", id).
		Order("occurred_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
