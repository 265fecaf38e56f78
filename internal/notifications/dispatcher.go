package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/email"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/outbox"
	"github.com/angelmondragon/fintrack-backend/pkg/outbox/payloads"
)

// ConsumerName scopes the redis markers that prevent double sends.
const ConsumerName = "email"

type recipientReader interface {
	FindByID(ctx context.Context, id uint64) (*models.Subscriber, error)
}

type dedupeStore interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

// Dispatcher delivers one outbox event as an email.
type Dispatcher interface {
	Dispatch(ctx context.Context, event models.OutboxEvent) (Delivery, error)
}

// Delivery describes what happened to an event.
type Delivery string

const (
	DeliverySent      Delivery = "sent"
	DeliverySkipped   Delivery = "skipped"
	DeliveryDuplicate Delivery = "duplicate"
)

type DispatcherParams struct {
	Recipients recipientReader
	Renderer   *Renderer
	Sender     email.Sender
	Dedupe     dedupeStore
	Logger     *logger.Logger
}

type dispatcher struct {
	decoders   *outbox.DecoderRegistry
	recipients recipientReader
	renderer   *Renderer
	sender     email.Sender
	dedupe     dedupeStore
	logg       *logger.Logger
}

func NewDispatcher(params DispatcherParams) (Dispatcher, error) {
	if params.Recipients == nil {
		return nil, fmt.Errorf("recipient reader required")
	}
	if params.Renderer == nil {
		return nil, fmt.Errorf("renderer required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("email sender required")
	}
	return &dispatcher{
		decoders:   newDecoders(),
		recipients: params.Recipients,
		renderer:   params.Renderer,
		sender:     params.Sender,
		dedupe:     params.Dedupe,
		logg:       params.Logger,
	}, nil
}

func newDecoders() *outbox.DecoderRegistry {
	reg := outbox.NewDecoderRegistry()
	for _, t := range []enums.OutboxEventType{
		enums.EventPaymentCompleted,
		enums.EventPaymentFailed,
		enums.EventPaymentRejected,
		enums.EventPaymentExpired,
	} {
		reg.Register(t, 1, outbox.JSONDecoder[payloads.PaymentOutcomeEvent]())
	}
	reg.Register(enums.EventSubscriptionTrialExpiring, 1, outbox.JSONDecoder[payloads.TrialExpiringEvent]())
	reg.Register(enums.EventSubscriptionStatusChanged, 1, outbox.JSONDecoder[payloads.SubscriptionStatusChangedEvent]())
	return reg
}

func (d *dispatcher) Dispatch(ctx context.Context, event models.OutboxEvent) (Delivery, error) {
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return "", nonRetryable(fmt.Errorf("decode envelope: %w", err))
	}
	decoded, err := d.decoders.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return "", nonRetryable(err)
	}
	if !d.renderer.Supports(event.EventType) {
		return DeliverySkipped, nil
	}

	subscriberID, err := subscriberOf(decoded)
	if err != nil {
		return "", err
	}
	ctx = d.logg.WithFields(ctx, map[string]any{
		"event_id":      envelope.EventID,
		"event_type":    event.EventType,
		"subscriber_id": subscriberID,
	})

	sub, err := d.recipients.FindByID(ctx, subscriberID)
	if err != nil {
		return "", fmt.Errorf("load subscriber: %w", err)
	}
	if sub == nil {
		return "", nonRetryable(fmt.Errorf("subscriber %d not found", subscriberID))
	}
	msg, err := d.renderer.Render(event.EventType, decoded, sub)
	if err != nil {
		return "", err
	}

	if d.dedupe != nil {
		seen, err := d.dedupe.CheckAndMarkProcessed(ctx, ConsumerName, envelope.EventID)
		if err != nil {
			return "", fmt.Errorf("check dedupe: %w", err)
		}
		if seen {
			d.logg.Info(ctx, "notification already sent")
			return DeliveryDuplicate, nil
		}
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		if d.dedupe != nil {
			if delErr := d.dedupe.Delete(ctx, ConsumerName, envelope.EventID); delErr != nil {
				d.logg.Warn(d.logg.WithField(ctx, "error", delErr.Error()), "failed to release dedupe marker")
			}
		}
		if errors.Is(err, email.ErrInvalidEmail) {
			return "", nonRetryable(err)
		}
		return "", err
	}
	d.logg.Info(ctx, "notification sent")
	return DeliverySent, nil
}

func subscriberOf(payload any) (uint64, error) {
	switch p := payload.(type) {
	case payloads.PaymentOutcomeEvent:
		return p.SubscriberID, nil
	case payloads.TrialExpiringEvent:
		return p.SubscriberID, nil
	}
	return 0, nonRetryable(fmt.Errorf("payload %T has no recipient", payload))
}
