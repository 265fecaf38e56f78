package usage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
)

// Repository reads the rows that count against plan limits.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindSubscriber(ctx context.Context, subscriberID uint64) (*models.Subscriber, error)
	CountAccounts(ctx context.Context, subscriberID uint64) (int64, error)
	CountTransactionsBetween(ctx context.Context, subscriberID uint64, from, to time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a usage repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindSubscriber(ctx context.Context, subscriberID uint64) (*models.Subscriber, error) {
	var sub models.Subscriber
	if err := r.db.WithContext(ctx).Where("id = ?", subscriberID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) CountAccounts(ctx context.Context, subscriberID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("subscriber_id = ?", subscriberID).
		Count(&count).Error
	return count, err
}

func (r *repository) CountTransactionsBetween(ctx context.Context, subscriberID uint64, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("subscriber_id = ? AND created_at >= ? AND created_at < ?", subscriberID, from, to).
		Count(&count).Error
	return count, err
}
