package paddlewebhook

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/fintrack-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/metrics"
	"github.com/angelmondragon/fintrack-backend/pkg/paddle"
)

type paymentSettler interface {
	Complete(ctx context.Context, id uint64, src payments.Source) (*payments.Outcome, error)
	Fail(ctx context.Context, id uint64, reason string, src payments.Source) (*payments.Outcome, error)
}

// Result is how a delivery was disposed of. It is only used for metrics and
// logs; every non-error result is acknowledged to the gateway.
type Result string

const (
	ResultApplied   Result = "applied"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored"
	ResultRejected  Result = "rejected"
)

type ServiceParams struct {
	Payments paymentSettler
	Metrics  *metrics.BillingMetrics
	Logger   *logger.Logger
}

// Service turns verified Paddle notifications into payment outcomes.
type Service struct {
	payments paymentSettler
	metrics  *metrics.BillingMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, fmt.Errorf("payment settler required")
	}
	return &Service{payments: params.Payments, metrics: params.Metrics, logg: params.Logger}, nil
}

// HandleEvent applies one notification. Errors are returned only when a retry
// could succeed; events that can never apply are acknowledged and logged.
func (s *Service) HandleEvent(ctx context.Context, event paddle.Event) (result Result, err error) {
	started := time.Now()
	defer func() {
		outcome := string(result)
		if err != nil {
			outcome = "error"
		}
		s.metrics.ObserveWebhook(event.EventType, outcome, time.Since(started))
	}()

	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":       event.EventID,
		"event_type":     event.EventType,
		"transaction_id": event.TransactionID,
	})

	kind := event.Outcome()
	if kind == paddle.OutcomeIgnored {
		return ResultIgnored, nil
	}
	if event.PaymentID == 0 {
		s.logg.Warn(ctx, "paddle event without payment_id")
		return ResultIgnored, nil
	}
	ctx = s.logg.WithPaymentID(ctx, event.PaymentID)

	src := payments.GatewaySource(event.EventID, event.EventType)
	var outcome *payments.Outcome
	switch kind {
	case paddle.OutcomeCompleted:
		outcome, err = s.payments.Complete(ctx, event.PaymentID, src)
	case paddle.OutcomeFailed:
		outcome, err = s.payments.Fail(ctx, event.PaymentID, event.FailureReason, src)
	}
	if err != nil {
		if permanent(err) {
			// The card was charged but the plan change was refused; the payment
			// stays open for support to refund or settle by hand.
			if kind == paddle.OutcomeCompleted && pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				s.logg.Error(ctx, "paid checkout could not be applied", err)
				return ResultRejected, nil
			}
			s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "paddle event not applicable")
			return ResultRejected, nil
		}
		return "", err
	}
	if outcome != nil && outcome.Duplicate {
		return ResultDuplicate, nil
	}
	s.logg.Info(ctx, "paddle event applied")
	return ResultApplied, nil
}

// permanent errors cannot be fixed by redelivery.
func permanent(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	switch typed.Code() {
	case pkgerrors.CodeNotFound, pkgerrors.CodeStateConflict, pkgerrors.CodeExpired, pkgerrors.CodeValidation:
		return true
	}
	return false
}
