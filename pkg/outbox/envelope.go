package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	SubscriberID *uint64 `json:"subscriberId,omitempty"`
	Role         string  `json:"role,omitempty"`
	Source       string  `json:"source,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload column.
func DecodeEnvelope(payload json.RawMessage) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return PayloadEnvelope{}, err
	}
	return env, nil
}
