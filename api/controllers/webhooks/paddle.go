package webhooks

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/fintrack-backend/api/responses"
	paddlewebhook "github.com/angelmondragon/fintrack-backend/internal/webhooks/paddle"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/paddle"
)

const maxWebhookBytes = 1 << 20

type PaddleWebhookService interface {
	HandleEvent(ctx context.Context, event paddle.Event) (paddlewebhook.Result, error)
}

type paddleWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type signatureVerifier interface {
	VerifyRequest(r *http.Request) (bool, error)
}

type webhookAck struct {
	EventID string `json:"event_id"`
	Result  string `json:"result"`
}

// PaddleWebhook settles payments from Paddle transaction notifications. Any
// 2xx tells Paddle to stop retrying, so only retryable failures return 5xx.
func PaddleWebhook(svc PaddleWebhookService, verifier signatureVerifier, guard paddleWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "paddle is not configured"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(payload))

		valid, err := verifier.VerifyRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid paddle signature"))
			return
		}
		if !valid {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid paddle signature"))
			return
		}

		event, err := paddle.ParseEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		seen, err := guard.CheckAndMark(ctx, event.EventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if seen {
			logg.Info(logg.WithField(ctx, "event_id", event.EventID), "paddle event replay skipped")
			responses.WriteSuccess(w, webhookAck{EventID: event.EventID, Result: string(paddlewebhook.ResultDuplicate)})
			return
		}

		result, err := svc.HandleEvent(ctx, event)
		if err != nil {
			if releaseErr := guard.Release(ctx, event.EventID); releaseErr != nil {
				logg.Error(ctx, "release paddle idempotency key", releaseErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, webhookAck{EventID: event.EventID, Result: string(result)})
	}
}
