package subscribers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/fintrack-backend/api/middleware"
	"github.com/angelmondragon/fintrack-backend/api/responses"
	"github.com/angelmondragon/fintrack-backend/api/validators"
	"github.com/angelmondragon/fintrack-backend/internal/entitlements"
	subscriberssvc "github.com/angelmondragon/fintrack-backend/internal/subscribers"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/outbox"
)

// LifecycleService is the part of the subscription lifecycle the API drives.
type LifecycleService interface {
	SignUp(ctx context.Context, input subscriberssvc.SignUpInput) (*models.Subscriber, error)
	Get(ctx context.Context, id uint64) (*models.Subscriber, error)
	History(ctx context.Context, id uint64) ([]models.SubscriptionHistory, error)
	RefreshTrial(ctx context.Context, id uint64) (*models.Subscriber, error)
	ChangePlan(ctx context.Context, id uint64, planType enums.PlanType, actor *outbox.ActorRef) (*models.Subscriber, error)
	Cancel(ctx context.Context, id uint64, reason string, actor *outbox.ActorRef) (*models.Subscriber, error)
	MarkPastDue(ctx context.Context, id uint64, reason string, actor *outbox.ActorRef) (*models.Subscriber, error)
}

// EntitlementService returns the usage snapshot of a subscriber.
type EntitlementService interface {
	LimitsView(ctx context.Context, subscriberID uint64) (entitlements.Snapshot, error)
}

// SignUp creates a trialing subscriber on the requested plan.
func SignUp(svc LifecycleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriber service unavailable"))
			return
		}

		var payload signUpRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		planType, err := enums.ParsePlanType(strings.TrimSpace(payload.PlanType))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan_type"))
			return
		}
		input := subscriberssvc.SignUpInput{
			Email:       payload.Email,
			DisplayName: payload.DisplayName,
			PlanType:    planType,
		}
		input.OrganizationID = payload.OrganizationID.Ptr()
		if payload.OrgRole != nil {
			role, err := enums.ParseOrgRole(*payload.OrgRole)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid org_role"))
				return
			}
			input.OrgRole = &role
		}

		sub, err := svc.SignUp(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, subscriberToResponse(sub, nil))
	}
}

// Get returns the subscriber with its lifecycle history. Reading refreshes an
// elapsed trial first so the status shown is current.
func Get(svc LifecycleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriber service unavailable"))
			return
		}
		id, err := validators.ParseUintParam(r, "id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := svc.RefreshTrial(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		history, err := svc.History(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriberToResponse(sub, history))
	}
}

// ChangePlan moves the subscriber to another plan without a payment. A
// downgrade is refused while usage exceeds the target limits.
func ChangePlan(svc LifecycleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriber service unavailable"))
			return
		}
		id, err := validators.ParseUintParam(r, "id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload changePlanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		planType, err := enums.ParsePlanType(strings.TrimSpace(payload.PlanType))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan_type"))
			return
		}

		sub, err := svc.ChangePlan(ctx, id, planType, middleware.ActorFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriberToResponse(sub, nil))
	}
}

func Cancel(svc LifecycleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriber service unavailable"))
			return
		}
		id, err := validators.ParseUintParam(r, "id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payload, err := decodeReason(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := svc.Cancel(ctx, id, payload.Reason, middleware.ActorFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriberToResponse(sub, nil))
	}
}

// AdminMarkPastDue flags an active subscriber whose renewal went unpaid.
func AdminMarkPastDue(svc LifecycleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriber service unavailable"))
			return
		}
		id, err := validators.ParseUintParam(r, "id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payload, err := decodeReason(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := svc.MarkPastDue(ctx, id, payload.Reason, middleware.ActorFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriberToResponse(sub, nil))
	}
}

// Entitlements returns the limits view for the subscriber named by the
// {subscriber} URL parameter.
func Entitlements(svc EntitlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}
		id, err := validators.ParseUintParam(r, "subscriber")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		snapshot, err := svc.LimitsView(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

// the reason body is optional on lifecycle actions
func decodeReason(r *http.Request) (reasonRequest, error) {
	var payload reasonRequest
	if r.ContentLength == 0 {
		return payload, nil
	}
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		return payload, err
	}
	payload.Reason = strings.TrimSpace(payload.Reason)
	return payload, nil
}
