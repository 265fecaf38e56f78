package payments

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/fintrack-backend/api/middleware"
	"github.com/angelmondragon/fintrack-backend/api/responses"
	"github.com/angelmondragon/fintrack-backend/api/validators"
	paymentssvc "github.com/angelmondragon/fintrack-backend/internal/payments"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/pagination"
)

// PaymentService is the subscriber-facing payment surface.
type PaymentService interface {
	Create(ctx context.Context, input paymentssvc.CreateInput) (*models.Payment, error)
	RetryCheckout(ctx context.Context, id uint64) (*models.Payment, error)
	Get(ctx context.Context, id uint64) (*models.Payment, error)
	ListBySubscriber(ctx context.Context, subscriberID uint64, limit int) ([]models.Payment, error)
	Events(ctx context.Context, id uint64) ([]models.PaymentEvent, error)
	Proof(ctx context.Context, id uint64) (*models.PaymentProof, error)
	SubmitProof(ctx context.Context, id uint64, input paymentssvc.ProofInput) (*models.Payment, error)
}

// Create starts a payment for the caller. Admins may pay on behalf of a
// subscriber by naming subscriber_id.
func Create(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var payload createPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		subscriberID := middleware.SubscriberIDFromContext(ctx)
		if middleware.IsAdmin(ctx) && payload.SubscriberID != nil {
			subscriberID = *payload.SubscriberID
		} else if payload.SubscriberID != nil && *payload.SubscriberID != subscriberID {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "subscribers may only pay for themselves"))
			return
		}
		if subscriberID == 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "subscriber_id is required"))
			return
		}

		planType, err := enums.ParsePlanType(payload.PlanType)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan_type"))
			return
		}
		method, err := enums.ParsePaymentMethodName(strings.TrimSpace(payload.PaymentMethod))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_method"))
			return
		}

		payment, err := svc.Create(ctx, paymentssvc.CreateInput{
			SubscriberID:  subscriberID,
			PlanType:      planType,
			PaymentMethod: method,
			CouponCode:    strings.TrimSpace(payload.CouponCode),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, paymentToResponse(payment))
	}
}

// Get returns a payment with its audit trail and proof.
func Get(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		payment, err := loadOwned(r, svc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		events, err := svc.Events(ctx, payment.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := paymentToResponse(payment)
		out.Events = eventsToResponse(events)
		if payment.Family == enums.PaymentFamilyManual {
			proof, err := svc.Proof(ctx, payment.ID)
			if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			out.Proof = proofToResponse(proof)
		}
		responses.WriteSuccess(w, out)
	}
}

// ListForSubscriber returns the most recent payments of {id}.
func ListForSubscriber(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		id, err := validators.ParseUintParam(r, "id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rows, err := svc.ListBySubscriber(ctx, id, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := make([]paymentResponse, 0, len(rows))
		for i := range rows {
			out = append(out, paymentToResponse(&rows[i]))
		}
		responses.WriteSuccess(w, map[string]any{"payments": out})
	}
}

// RetryCheckout opens a fresh gateway checkout for a card payment still in
// created.
func RetryCheckout(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		payment, err := loadOwned(r, svc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		updated, err := svc.RetryCheckout(ctx, payment.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, paymentToResponse(updated))
	}
}

// SubmitProof attaches transfer evidence and moves a manual payment to review.
func SubmitProof(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		payment, err := loadOwned(r, svc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload proofRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		updated, err := svc.SubmitProof(ctx, payment.ID, paymentssvc.ProofInput{
			Description:   validators.SanitizeString(payload.Description, 1000),
			EvidenceRef:   payload.EvidenceRef,
			BankReference: payload.BankReference,
			PhoneNumber:   payload.PhoneNumber,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, paymentToResponse(updated))
	}
}

// loadOwned hides payments of other subscribers behind a not found.
func loadOwned(r *http.Request, svc PaymentService) (*models.Payment, error) {
	ctx := r.Context()
	id, err := validators.ParseUintParam(r, "id")
	if err != nil {
		return nil, err
	}
	payment, err := svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !middleware.IsAdmin(ctx) && payment.SubscriberID != middleware.SubscriberIDFromContext(ctx) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}
