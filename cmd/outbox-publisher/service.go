package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/internal/notifications"
	"github.com/angelmondragon/fintrack-backend/pkg/config"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/metrics"
	"github.com/angelmondragon/fintrack-backend/pkg/outbox"
)

const (
	defaultBatchSize       = 50
	defaultPollMs          = 500
	defaultDispatchTimeout = 15 * time.Second
	defaultMaxAttempts     = 10
	maxBackoff             = 10 * time.Second
	jitterWindow           = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pinger interface {
	Ping(context.Context) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type dispatcher interface {
	Dispatch(ctx context.Context, event models.OutboxEvent) (notifications.Delivery, error)
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            dbClient
	Redis         pinger
	Repository    outboxRepository
	DLQRepository dlqRepository
	Dispatcher    dispatcher
	Metrics       *metrics.DispatchMetrics
}

type Service struct {
	logg         *logger.Logger
	db           dbClient
	redis        pinger
	repo         outboxRepository
	dlq          dlqRepository
	dispatcher   dispatcher
	metrics      *metrics.DispatchMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.DLQRepository == nil {
		return nil, errors.New("dlq repository is required")
	}
	if params.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		redis:        params.Redis,
		repo:         params.Repository,
		dlq:          params.DLQRepository,
		dispatcher:   params.Dispatcher,
		metrics:      params.Metrics,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	err := pingDependency(ctx, s.logg, "database", s.db.Ping)
	if s.redis != nil {
		err = multierr.Append(err, pingDependency(ctx, s.logg, "redis", s.redis.Ping))
	}
	return err
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	interval := s.pollInterval
	if interval <= 0 {
		interval = time.Duration(defaultPollMs) * time.Millisecond
	}
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		processed = true
		for _, event := range events {
			if err := s.handleEvent(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// handleEvent delivers one row and records the outcome. Only bookkeeping
// failures are returned; delivery failures are written to the row or the DLQ.
func (s *Service) handleEvent(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	fields := s.eventFields(event)
	eventType := string(event.EventType)

	dispatchCtx, cancel := context.WithTimeout(ctx, defaultDispatchTimeout)
	start := time.Now()
	delivery, err := s.dispatcher.Dispatch(dispatchCtx, event)
	cancel()
	s.metrics.ObserveDuration(eventType, time.Since(start))

	if err != nil {
		s.metrics.IncFailure(eventType)
		if notifications.IsNonRetryable(err) {
			return s.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
		}

		nextAttempt := event.AttemptCount + 1
		fields["attempt_count"] = nextAttempt
		if nextAttempt >= s.maxAttempts {
			fields["terminal_reason"] = "max_attempts"
			terminalErr := fmt.Errorf("max dispatch attempts reached: %w", err)
			return s.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, terminalErr, fields)
		}

		ctxWithFields := s.logg.WithFields(ctx, fields)
		ctxWithFields = s.logg.WithField(ctxWithFields, "error", err.Error())
		s.logg.Warn(ctxWithFields, "outbox dispatch failed")
		if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
		}
		return nil
	}

	if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
		return fmt.Errorf("mark published %s: %w", event.ID, markErr)
	}
	s.metrics.IncSuccess(eventType)
	fields["delivery"] = delivery
	s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event dispatched")
	return nil
}

func (s *Service) handleTerminal(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, err error, fields map[string]any) error {
	fields["error_reason"] = reason
	ctxWithFields := s.logg.WithFields(ctx, fields)
	ctxWithFields = s.logg.WithField(ctxWithFields, "error", err.Error())
	s.logg.Warn(ctxWithFields, "outbox event will not be retried")

	dlqEntry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  dlqErrorMessage(err),
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now(),
	}
	if dlqErr := s.dlq.InsertTx(tx, dlqEntry); dlqErr != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, dlqErr)
	}
	if markErr := s.repo.MarkTerminalTx(tx, event.ID, err, s.maxAttempts); markErr != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, markErr)
	}
	return nil
}

func dlqErrorMessage(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}

func (s *Service) eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"batch_size":     s.batchSize,
		"attempt_count":  event.AttemptCount,
	}
	if envelope, err := outbox.DecodeEnvelope(event.Payload); err == nil && envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
