package billing

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fintrack-backend/api/responses"
	"github.com/angelmondragon/fintrack-backend/api/validators"
	"github.com/angelmondragon/fintrack-backend/internal/campaigns"
	"github.com/angelmondragon/fintrack-backend/internal/plans"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
)

// PlanCatalog is the plan methods used by the HTTP controllers.
type PlanCatalog interface {
	List(ctx context.Context) ([]models.Plan, error)
	Upsert(ctx context.Context, input plans.UpsertInput) (*models.Plan, error)
}

type MethodCatalog interface {
	Methods(ctx context.Context) ([]models.PaymentMethod, error)
}

// CouponValidator quotes a coupon against a plan without redeeming it.
type CouponValidator interface {
	Validate(ctx context.Context, code string, planType enums.PlanType) (*campaigns.Quote, error)
}

// PlansList returns the active plans ordered by rank.
func PlansList(svc PlanCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		catalog, err := svc.List(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := make([]planResponse, 0, len(catalog))
		for _, p := range catalog {
			if !p.Active {
				continue
			}
			out = append(out, planToResponse(p))
		}
		responses.WriteSuccess(w, map[string]any{"plans": out})
	}
}

// AdminPlanUpsert creates or replaces the plan named by {type}.
func AdminPlanUpsert(svc PlanCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}
		planType, err := enums.ParsePlanType(validators.PathParam(r, "type"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan type"))
			return
		}

		var payload planUpsertRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		price, err := decimal.NewFromString(strings.TrimSpace(payload.Price))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price"))
			return
		}
		active := true
		if payload.Active != nil {
			active = *payload.Active
		}

		plan, err := svc.Upsert(ctx, plans.UpsertInput{
			Type:                    planType,
			Name:                    validators.SanitizeString(payload.Name, 80),
			Rank:                    payload.Rank,
			Price:                   price,
			Currency:                strings.ToUpper(strings.TrimSpace(payload.Currency)),
			Features:                payload.Features,
			MaxAccounts:             *payload.MaxAccounts,
			MaxTransactionsPerMonth: *payload.MaxTransactionsPerMonth,
			TrialDays:               payload.TrialDays,
			GatewayPriceID:          payload.GatewayPriceID,
			Active:                  active,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, planToResponse(*plan))
	}
}

// PaymentMethodsList returns the methods a subscriber can pay with. Automated
// methods are omitted by the service when the gateway is not configured.
func PaymentMethodsList(svc MethodCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		methods, err := svc.Methods(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := make([]paymentMethodResponse, 0, len(methods))
		for _, m := range methods {
			out = append(out, paymentMethodToResponse(m))
		}
		responses.WriteSuccess(w, map[string]any{"payment_methods": out})
	}
}

// CouponValidate previews the discounted price. Nothing is redeemed.
func CouponValidate(svc CouponValidator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "campaign service unavailable"))
			return
		}

		var payload couponValidateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		planType, err := enums.ParsePlanType(payload.PlanType)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan_type"))
			return
		}

		quote, err := svc.Validate(ctx, payload.Code, planType)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}
