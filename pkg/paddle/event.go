package paddle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Transaction notification types this service acts on.
const (
	EventTransactionCompleted     = "transaction.completed"
	EventTransactionPaid          = "transaction.paid"
	EventTransactionPaymentFailed = "transaction.payment_failed"
)

// Event is the subset of a Paddle notification needed to settle a payment.
type Event struct {
	EventID       string
	EventType     string
	OccurredAt    time.Time
	TransactionID string
	Status        string
	PaymentID     uint64
	FailureReason string
}

// Outcome classifies an event type.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeCompleted
	OutcomeFailed
)

// Outcome maps the Paddle event type onto a payment outcome.
func (e Event) Outcome() Outcome {
	switch e.EventType {
	case EventTransactionCompleted, EventTransactionPaid:
		return OutcomeCompleted
	case EventTransactionPaymentFailed:
		return OutcomeFailed
	}
	return OutcomeIgnored
}

type rawEvent struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	OccurredAt string `json:"occurred_at"`
	Data       struct {
		ID         string         `json:"id"`
		Status     string         `json:"status"`
		CustomData map[string]any `json:"custom_data"`
		Payments   []struct {
			ErrorCode *string `json:"error_code"`
		} `json:"payments"`
	} `json:"data"`
}

// ParseEvent decodes a verified webhook body.
func ParseEvent(body []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, fmt.Errorf("decode paddle event: %w", err)
	}
	if strings.TrimSpace(raw.EventID) == "" {
		return Event{}, errors.New("paddle event id missing")
	}
	if strings.TrimSpace(raw.EventType) == "" {
		return Event{}, errors.New("paddle event type missing")
	}
	evt := Event{
		EventID:       raw.EventID,
		EventType:     raw.EventType,
		TransactionID: raw.Data.ID,
		Status:        raw.Data.Status,
	}
	if raw.OccurredAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw.OccurredAt); err == nil {
			evt.OccurredAt = ts.UTC()
		}
	}
	if id, ok := paymentIDFrom(raw.Data.CustomData); ok {
		evt.PaymentID = id
	}
	for _, p := range raw.Data.Payments {
		if p.ErrorCode != nil && *p.ErrorCode != "" {
			evt.FailureReason = *p.ErrorCode
		}
	}
	return evt, nil
}

// custom_data values round-trip as strings, but accept numbers too.
func paymentIDFrom(custom map[string]any) (uint64, bool) {
	switch v := custom["payment_id"].(type) {
	case string:
		id, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		return id, err == nil && id > 0
	case float64:
		if v > 0 {
			return uint64(v), true
		}
	}
	return 0, false
}
