package types

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestOptionalUUIDUnmarshal(t *testing.T) {
	type payload struct {
		AccountID OptionalUUID `json:"account_id"`
	}

	var got payload
	if err := json.Unmarshal([]byte(`{"account_id": " 6f1c2a52-94b1-4c1e-9a43-0c5f3f0e9d11 "}`), &got); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if !got.AccountID.IsSet() || got.AccountID.Ptr().String() != "6f1c2a52-94b1-4c1e-9a43-0c5f3f0e9d11" {
		t.Fatalf("unexpected id %+v", got.AccountID)
	}

	for _, body := range []string{`{"account_id": null}`, `{"account_id": ""}`} {
		got = payload{AccountID: SomeUUID(uuid.New())}
		if err := json.Unmarshal([]byte(body), &got); err != nil {
			t.Fatalf("unmarshal %s: %v", body, err)
		}
		if got.AccountID.IsSet() || got.AccountID.Ptr() != nil {
			t.Fatalf("%s should leave the id unset", body)
		}
	}

	got = payload{}
	if err := json.Unmarshal([]byte(`{}`), &got); err != nil {
		t.Fatalf("unmarshal empty: %v", err)
	}
	if got.AccountID.IsSet() {
		t.Fatal("omitted field should be unset")
	}
}

func TestOptionalUUIDRejectsInvalid(t *testing.T) {
	var id OptionalUUID
	for _, body := range []string{`"not-a-uuid"`, `42`, `"00000000-0000-0000-0000-000000000000"`} {
		if err := json.Unmarshal([]byte(body), &id); err == nil {
			t.Fatalf("expected error for %s", body)
		}
	}
}

func TestOptionalUUIDPtrIsACopy(t *testing.T) {
	id := SomeUUID(uuid.New())
	first := id.Ptr()
	*first = uuid.Nil
	if *id.Ptr() == uuid.Nil {
		t.Fatal("mutating the returned pointer must not change the value")
	}
	out, err := json.Marshal(OptionalUUID{})
	if err != nil || string(out) != "null" {
		t.Fatalf("unset marshals to null, got %s %v", out, err)
	}
}
