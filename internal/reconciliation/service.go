package reconciliation

import (
	"context"
	"fmt"

	"github.com/angelmondragon/fintrack-backend/internal/payments"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/pagination"
)

type paymentManager interface {
	Get(ctx context.Context, id uint64) (*models.Payment, error)
	Complete(ctx context.Context, id uint64, src payments.Source) (*payments.Outcome, error)
	Reject(ctx context.Context, id uint64, src payments.Source) (*models.Payment, error)
}

type queueReader interface {
	ListByStatus(ctx context.Context, status enums.PaymentStatus, cursor *pagination.Cursor, limit int) ([]models.Payment, error)
	FindProofs(ctx context.Context, paymentIDs []uint64) ([]models.PaymentProof, error)
}

// Service is the admin side of manual payments.
type Service interface {
	Review(ctx context.Context, input ReviewInput) (*models.Payment, error)
	Queue(ctx context.Context, params pagination.Params) (pagination.Page[QueueItem], error)
}

// ServiceParams groups dependencies for the reconciliation service.
type ServiceParams struct {
	Payments paymentManager
	Queue    queueReader
	Logger   *logger.Logger
}

// ReviewInput is an admin decision on one payment.
type ReviewInput struct {
	PaymentID  uint64
	Decision   enums.ReviewDecision
	ReviewerID uint64
	Reason     string
}

// QueueItem pairs a pending payment with its proof.
type QueueItem struct {
	Payment models.Payment       `json:"payment"`
	Proof   *models.PaymentProof `json:"proof,omitempty"`
}

type service struct {
	payments paymentManager
	queue    queueReader
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Payments == nil {
		return nil, fmt.Errorf("payment manager required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("queue reader required")
	}
	return &service{payments: params.Payments, queue: params.Queue, logg: params.Logger}, nil
}

// Review applies an approve or reject decision. Only payments under review
// are eligible.
func (s *service) Review(ctx context.Context, input ReviewInput) (*models.Payment, error) {
	if !input.Decision.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be approve or reject")
	}
	if input.ReviewerID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reviewer id is required")
	}
	payment, err := s.payments.Get(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != enums.PaymentStatusUnderReview {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not under review").
			WithDetails(map[string]any{"payment_id": payment.ID, "status": payment.Status})
	}

	src := payments.ReviewSource(input.ReviewerID, input.Reason)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id":  payment.ID,
		"reviewer_id": input.ReviewerID,
		"decision":    input.Decision,
	})

	if input.Decision == enums.ReviewDecisionReject {
		rejected, err := s.payments.Reject(ctx, payment.ID, src)
		if err != nil {
			return nil, err
		}
		s.logg.Info(logCtx, "payment review recorded")
		return rejected, nil
	}

	outcome, err := s.payments.Complete(ctx, payment.ID, src)
	if err != nil {
		return nil, err
	}
	s.logg.Info(logCtx, "payment review recorded")
	return outcome.Payment, nil
}

// Queue lists payments awaiting a decision, oldest first.
func (s *service) Queue(ctx context.Context, params pagination.Params) (pagination.Page[QueueItem], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[QueueItem]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.queue.ListByStatus(ctx, enums.PaymentStatusUnderReview, cursor, params.Limit)
	if err != nil {
		return pagination.Page[QueueItem]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list review queue")
	}
	page := pagination.Trim(rows, params.Limit, func(p models.Payment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})

	ids := make([]uint64, 0, len(page.Items))
	for _, p := range page.Items {
		ids = append(ids, p.ID)
	}
	proofs, err := s.queue.FindProofs(ctx, ids)
	if err != nil {
		return pagination.Page[QueueItem]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load proofs")
	}
	byPayment := make(map[uint64]models.PaymentProof, len(proofs))
	for _, proof := range proofs {
		byPayment[proof.PaymentID] = proof
	}

	items := make([]QueueItem, 0, len(page.Items))
	for _, p := range page.Items {
		item := QueueItem{Payment: p}
		if proof, ok := byPayment[p.ID]; ok {
			proof := proof
			item.Proof = &proof
		}
		items = append(items, item)
	}
	return pagination.Page[QueueItem]{Items: items, NextCursor: page.NextCursor}, nil
}
