package payments

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	"github.com/angelmondragon/fintrack-backend/pkg/pagination"
)

// Repository handles payment, proof, audit and gateway-event persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	ListMethods(ctx context.Context, activeOnly bool) ([]models.PaymentMethod, error)
	FindMethod(ctx context.Context, name enums.PaymentMethodName) (*models.PaymentMethod, error)
	UpsertMethod(ctx context.Context, method *models.PaymentMethod) error
	CountMethods(ctx context.Context) (int64, error)

	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uint64) (*models.Payment, error)
	ListBySubscriber(ctx context.Context, subscriberID uint64, limit int) ([]models.Payment, error)
	ListByStatus(ctx context.Context, status enums.PaymentStatus, cursor *pagination.Cursor, limit int) ([]models.Payment, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]uint64, error)
	Transition(ctx context.Context, id uint64, from enums.PaymentStatus, updates map[string]any) (int64, error)

	AppendEvent(ctx context.Context, event *models.PaymentEvent) error
	ListEvents(ctx context.Context, paymentID uint64) ([]models.PaymentEvent, error)

	CreateProof(ctx context.Context, proof *models.PaymentProof) error
	FindProof(ctx context.Context, paymentID uint64) (*models.PaymentProof, error)
	FindProofs(ctx context.Context, paymentIDs []uint64) ([]models.PaymentProof, error)
	UpdateProofReview(ctx context.Context, paymentID uint64, updates map[string]any) error

	GatewayEventExists(ctx context.Context, eventID string) (bool, error)
	RecordGatewayEvent(ctx context.Context, event *models.GatewayEvent) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListMethods(ctx context.Context, activeOnly bool) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	query := r.db.WithContext(ctx).Order("sort_order ASC, name ASC")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	if err := query.Find(&methods).Error; err != nil {
		return nil, err
	}
	return methods, nil
}

func (r *repository) FindMethod(ctx context.Context, name enums.PaymentMethodName) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&method).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &method, nil
}

func (r *repository) UpsertMethod(ctx context.Context, method *models.PaymentMethod) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(method).Error
}

func (r *repository) CountMethods(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PaymentMethod{}).Count(&count).Error
	return count, err
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uint64) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListBySubscriber(ctx context.Context, subscriberID uint64, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	if err := r.db.WithContext(ctx).
		Where("subscriber_id = ?", subscriberID).
		Order("created_at DESC, id DESC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListOverdue returns ids of open payments whose expires_at has passed.
func (r *repository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Where("status IN ?", enums.NonTerminalPaymentStatuses()).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// ListByStatus pages oldest first, returning one row past limit so the caller
// can tell whether another page exists.
func (r *repository) ListByStatus(ctx context.Context, status enums.PaymentStatus, cursor *pagination.Cursor, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	query := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Limit(pagination.LimitWithBuffer(limit))
	if cursor != nil {
		query = query.Where("(created_at > ?) OR (created_at = ? AND id > ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Transition applies updates only while the payment still has status from.
func (r *repository) Transition(ctx context.Context, id uint64, from enums.PaymentStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) AppendEvent(ctx context.Context, event *models.PaymentEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListEvents(ctx context.Context, paymentID uint64) ([]models.PaymentEvent, error) {
	var rows []models.PaymentEvent
	if err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("occurred_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreateProof(ctx context.Context, proof *models.PaymentProof) error {
	return r.db.WithContext(ctx).Create(proof).Error
}

func (r *repository) FindProof(ctx context.Context, paymentID uint64) (*models.PaymentProof, error) {
	var proof models.PaymentProof
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&proof).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &proof, nil
}

func (r *repository) FindProofs(ctx context.Context, paymentIDs []uint64) ([]models.PaymentProof, error) {
	if len(paymentIDs) == 0 {
		return nil, nil
	}
	var rows []models.PaymentProof
	if err := r.db.WithContext(ctx).Where("payment_id IN ?", paymentIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateProofReview(ctx context.Context, paymentID uint64, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentProof{}).
		Where("payment_id = ?", paymentID).
		Updates(updates).Error
}

func (r *repository) GatewayEventExists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GatewayEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) RecordGatewayEvent(ctx context.Context, event *models.GatewayEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}
