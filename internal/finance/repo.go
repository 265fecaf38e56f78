package finance

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
)

// Repository persists the limited resources.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateAccount(ctx context.Context, account *models.Account) error
	FindAccount(ctx context.Context, subscriberID uint64, id uuid.UUID) (*models.Account, error)
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a finance repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateAccount(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) FindAccount(ctx context.Context, subscriberID uint64, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		Where("id = ? AND subscriber_id = ?", id, subscriberID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}
