package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// OptionalUUID is a request field holding an id that may be left out.
// Omitted, null and "" all leave it unset; the nil uuid is rejected.
type OptionalUUID struct {
	set bool
	id  uuid.UUID
}

// SomeUUID returns a set OptionalUUID.
func SomeUUID(id uuid.UUID) OptionalUUID {
	return OptionalUUID{set: id != uuid.Nil, id: id}
}

func (o *OptionalUUID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*o = OptionalUUID{}
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("uuid must be a string: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid uuid %q: %w", raw, err)
	}
	if id == uuid.Nil {
		return fmt.Errorf("invalid uuid %q: nil uuid", raw)
	}
	o.set, o.id = true, id
	return nil
}

func (o OptionalUUID) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.id.String())
}

// IsSet reports whether an id was supplied.
func (o OptionalUUID) IsSet() bool {
	return o.set
}

// Ptr returns the id, or nil when unset. Each call returns a fresh pointer.
func (o OptionalUUID) Ptr() *uuid.UUID {
	if !o.set {
		return nil
	}
	id := o.id
	return &id
}
