package subscribers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fintrack-backend/api/responses"
	"github.com/angelmondragon/fintrack-backend/api/validators"
	"github.com/angelmondragon/fintrack-backend/internal/finance"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
)

// FinanceService creates plan-limited resources for a subscriber.
type FinanceService interface {
	CreateAccount(ctx context.Context, subscriberID uint64, input finance.AccountInput) (*models.Account, error)
	CreateTransaction(ctx context.Context, subscriberID uint64, input finance.TransactionInput) (*models.Transaction, error)
}

// CreateAccount adds a money account, refused with 402 once the plan's
// account limit is reached.
func CreateAccount(svc FinanceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "finance service unavailable"))
			return
		}
		id, err := validators.ParseUintParam(r, "id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload accountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		account, err := svc.CreateAccount(ctx, id, finance.AccountInput{
			Name: validators.SanitizeString(payload.Name, 120),
			Kind: strings.TrimSpace(payload.Kind),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, accountToResponse(account))
	}
}

// CreateTransaction records a transaction against the current month's quota.
func CreateTransaction(svc FinanceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "finance service unavailable"))
			return
		}
		id, err := validators.ParseUintParam(r, "id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload transactionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		txn, err := svc.CreateTransaction(ctx, id, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, transactionToResponse(txn))
	}
}

func (p transactionRequest) toInput() (finance.TransactionInput, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(p.Amount))
	if err != nil {
		return finance.TransactionInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount").
			WithDetails(map[string]any{"field": "amount"})
	}
	input := finance.TransactionInput{
		AccountID:   p.AccountID.Ptr(),
		Amount:      amount,
		Description: validators.SanitizeString(p.Description, 500),
	}
	if p.OccurredOn != nil {
		day, err := time.Parse(dateLayout, strings.TrimSpace(*p.OccurredOn))
		if err != nil {
			return finance.TransactionInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "occurred_on must be YYYY-MM-DD").
				WithDetails(map[string]any{"field": "occurred_on"})
		}
		input.OccurredOn = &day
	}
	return input, nil
}
