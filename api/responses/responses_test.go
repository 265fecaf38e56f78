package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/types"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	if got := w.Code; got != http.StatusOK {
		t.Fatalf("expected status 200 but got %d", got)
	}

	var body types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteErrorLimitExceededCarriesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeLimitExceeded, "accounts limit reached").
		WithDetails(map[string]any{"resource": "accounts", "current": 5, "limit": 5})
	WriteError(context.Background(), nil, w, err)

	if got := w.Code; got != http.StatusPaymentRequired {
		t.Fatalf("expected status 402 but got %d", got)
	}

	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeLimitExceeded) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	if body.Error.Message != "accounts limit reached" {
		t.Fatalf("unexpected message %q", body.Error.Message)
	}
	details, ok := body.Error.Details.(map[string]any)
	if !ok || details["resource"] != "accounts" || details["current"] != float64(5) {
		t.Fatalf("unexpected details %v", body.Error.Details)
	}
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("boom"))

	if got := w.Code; got != http.StatusInternalServerError {
		t.Fatalf("expected status 500 but got %d", got)
	}

	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeInternal) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	if body.Error.Message != "internal server error" {
		t.Fatalf("internal message leaked: %q", body.Error.Message)
	}
	if body.Error.Details != nil {
		t.Fatalf("details should be omitted for internal errors")
	}
}

func TestWriteErrorLogsServerFailuresAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})

	WriteError(context.Background(), logg, httptest.NewRecorder(), pkgerrors.New(pkgerrors.CodeValidation, "bad"))
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Fatalf("expected warn entry, got %s", buf.String())
	}

	buf.Reset()
	WriteError(context.Background(), logg, httptest.NewRecorder(), pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "persist"))
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), "db down") {
		t.Fatalf("expected error entry with cause, got %s", buf.String())
	}
}
