package payments

import (
	"context"
	"net/http"

	"github.com/angelmondragon/fintrack-backend/api/middleware"
	"github.com/angelmondragon/fintrack-backend/api/responses"
	"github.com/angelmondragon/fintrack-backend/api/validators"
	"github.com/angelmondragon/fintrack-backend/internal/reconciliation"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/pagination"
)

// ReviewService is the admin reconciliation surface.
type ReviewService interface {
	Review(ctx context.Context, input reconciliation.ReviewInput) (*models.Payment, error)
	Queue(ctx context.Context, params pagination.Params) (pagination.Page[reconciliation.QueueItem], error)
}

// AdminReviewQueue lists payments under review, oldest first.
func AdminReviewQueue(svc ReviewService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := svc.Queue(ctx, pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := queueResponse{Items: make([]queueItemResponse, 0, len(page.Items)), NextCursor: page.NextCursor}
		for _, item := range page.Items {
			out.Items = append(out.Items, queueItemToResponse(item))
		}
		responses.WriteSuccess(w, out)
	}
}

// AdminReview records an approve or reject decision on {id}. The reviewer is
// the authenticated admin.
func AdminReview(svc ReviewService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}
		id, err := validators.ParseUintParam(r, "id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		reviewer := middleware.SubscriberIDFromContext(ctx)
		if reviewer == 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin token does not identify a reviewer"))
			return
		}

		var payload reviewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		decision, err := enums.ParseReviewDecision(payload.Decision)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid decision"))
			return
		}

		payment, err := svc.Review(ctx, reconciliation.ReviewInput{
			PaymentID:  id,
			Decision:   decision,
			ReviewerID: reviewer,
			Reason:     validators.SanitizeString(payload.Reason, 500),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, paymentToResponse(payment))
	}
}
