package billing

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fintrack-backend/api/responses"
	"github.com/angelmondragon/fintrack-backend/api/validators"
	"github.com/angelmondragon/fintrack-backend/internal/campaigns"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
)

// CampaignAdmin is the campaign management surface for admins.
type CampaignAdmin interface {
	Create(ctx context.Context, input campaigns.CreateInput) (*models.Campaign, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Campaign, error)
	List(ctx context.Context) ([]models.Campaign, error)
}

func AdminCampaignCreate(svc CampaignAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "campaign service unavailable"))
			return
		}

		var payload campaignCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		campaign, err := svc.Create(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, campaignToResponse(*campaign))
	}
}

func AdminCampaignsList(svc CampaignAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "campaign service unavailable"))
			return
		}

		rows, err := svc.List(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := make([]campaignResponse, 0, len(rows))
		for _, c := range rows {
			out = append(out, campaignToResponse(c))
		}
		responses.WriteSuccess(w, map[string]any{"campaigns": out})
	}
}

// AdminCampaignSetActive toggles whether a campaign's code can be redeemed.
func AdminCampaignSetActive(svc CampaignAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "campaign service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload campaignActiveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		campaign, err := svc.SetActive(ctx, id, *payload.Active)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, campaignToResponse(*campaign))
	}
}

func (p campaignCreateRequest) toInput() (campaigns.CreateInput, error) {
	discountType, err := enums.ParseDiscountType(strings.TrimSpace(p.DiscountType))
	if err != nil {
		return campaigns.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid discount_type")
	}
	value, err := decimal.NewFromString(strings.TrimSpace(p.DiscountValue))
	if err != nil {
		return campaigns.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid discount_value")
	}
	planTypes := make([]enums.PlanType, 0, len(p.PlanTypes))
	for _, raw := range p.PlanTypes {
		pt, err := enums.ParsePlanType(raw)
		if err != nil {
			return campaigns.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan_types").
				WithDetails(map[string]any{"plan_type": raw})
		}
		planTypes = append(planTypes, pt)
	}
	return campaigns.CreateInput{
		Code:          p.Code,
		Description:   validators.SanitizeString(p.Description, 500),
		DiscountType:  discountType,
		DiscountValue: value,
		PlanTypes:     planTypes,
		UsageCap:      p.UsageCap,
		StartsAt:      p.StartsAt,
		EndsAt:        p.EndsAt,
	}, nil
}
