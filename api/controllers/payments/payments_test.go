package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fintrack-backend/api/middleware"
	paymentssvc "github.com/angelmondragon/fintrack-backend/internal/payments"
	"github.com/angelmondragon/fintrack-backend/internal/reconciliation"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/pagination"
)

type stubPayments struct {
	created   paymentssvc.CreateInput
	payment   *models.Payment
	proof     *models.PaymentProof
	events    []models.PaymentEvent
	proofIn   paymentssvc.ProofInput
	retried   uint64
	createErr error
}

func (s *stubPayments) Create(_ context.Context, input paymentssvc.CreateInput) (*models.Payment, error) {
	s.created = input
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.payment, nil
}

func (s *stubPayments) RetryCheckout(_ context.Context, id uint64) (*models.Payment, error) {
	s.retried = id
	return s.payment, nil
}

func (s *stubPayments) Get(context.Context, uint64) (*models.Payment, error) {
	if s.payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return s.payment, nil
}

func (s *stubPayments) ListBySubscriber(context.Context, uint64, int) ([]models.Payment, error) {
	return []models.Payment{*s.payment}, nil
}

func (s *stubPayments) Events(context.Context, uint64) ([]models.PaymentEvent, error) {
	return s.events, nil
}

func (s *stubPayments) Proof(context.Context, uint64) (*models.PaymentProof, error) {
	if s.proof == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "proof not found")
	}
	return s.proof, nil
}

func (s *stubPayments) SubmitProof(_ context.Context, _ uint64, input paymentssvc.ProofInput) (*models.Payment, error) {
	s.proofIn = input
	return s.payment, nil
}

type stubReview struct {
	input  reconciliation.ReviewInput
	params pagination.Params
	page   pagination.Page[reconciliation.QueueItem]
}

func (s *stubReview) Review(_ context.Context, input reconciliation.ReviewInput) (*models.Payment, error) {
	s.input = input
	return &models.Payment{ID: input.PaymentID, Status: enums.PaymentStatusRejected}, nil
}

func (s *stubReview) Queue(_ context.Context, params pagination.Params) (pagination.Page[reconciliation.QueueItem], error) {
	s.params = params
	return s.page, nil
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func asSubscriber(req *http.Request, id uint64) *http.Request {
	return req.WithContext(middleware.WithPrincipal(req.Context(), id, enums.ActorRoleSubscriber))
}

func asAdmin(req *http.Request, id uint64) *http.Request {
	return req.WithContext(middleware.WithPrincipal(req.Context(), id, enums.ActorRoleAdmin))
}

func manualPayment(owner uint64, status enums.PaymentStatus) *models.Payment {
	expires := time.Date(2026, time.July, 21, 12, 0, 0, 0, time.UTC)
	return &models.Payment{
		ID:             42,
		SubscriberID:   owner,
		PlanType:       enums.PlanPremium,
		PaymentMethod:  enums.PaymentMethodBankTransfer,
		Family:         enums.PaymentFamilyManual,
		Amount:         decimal.NewFromInt(10000),
		DiscountAmount: decimal.Zero,
		FinalAmount:    decimal.NewFromInt(10000),
		Currency:       "XAF",
		Status:         status,
		ExpiresAt:      &expires,
	}
}

func TestCreateUsesCallerSubscriber(t *testing.T) {
	svc := &stubPayments{payment: manualPayment(7, enums.PaymentStatusAwaitingProof)}
	body := `{"plan_type":"premium","payment_method":"bank_transfer","coupon_code":" launch "}`
	req := asSubscriber(httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body)), 7)
	resp := httptest.NewRecorder()

	Create(svc, nil)(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.created.SubscriberID != 7 || svc.created.CouponCode != "launch" {
		t.Fatalf("unexpected input %+v", svc.created)
	}
	if !strings.Contains(resp.Body.String(), `"reference":"FT-00000042"`) {
		t.Fatalf("expected payment reference, got %s", resp.Body.String())
	}
}

func TestCreateRejectsPayingForSomeoneElse(t *testing.T) {
	body := `{"subscriber_id":8,"plan_type":"premium","payment_method":"bank_transfer"}`
	req := asSubscriber(httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body)), 7)
	resp := httptest.NewRecorder()
	Create(&stubPayments{}, nil)(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestCreateAdminOnBehalf(t *testing.T) {
	svc := &stubPayments{payment: manualPayment(8, enums.PaymentStatusAwaitingProof)}
	body := `{"subscriber_id":8,"plan_type":"premium","payment_method":"mobile_money_mtn"}`
	req := asAdmin(httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body)), 1)
	resp := httptest.NewRecorder()
	Create(svc, nil)(resp, req)
	if resp.Code != http.StatusCreated || svc.created.SubscriberID != 8 {
		t.Fatalf("expected admin payment for 8, got %d %+v", resp.Code, svc.created)
	}
}

func TestCreateSurfacesNextAction(t *testing.T) {
	svc := &stubPayments{createErr: pkgerrors.New(pkgerrors.CodeDependency, "payment gateway unavailable").
		WithDetails(map[string]any{"next_action": paymentssvc.NextActionRetry})}
	body := `{"plan_type":"premium","payment_method":"gateway_card"}`
	req := asSubscriber(httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body)), 7)
	resp := httptest.NewRecorder()
	Create(svc, nil)(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestGetHidesOtherSubscribersPayments(t *testing.T) {
	svc := &stubPayments{payment: manualPayment(8, enums.PaymentStatusAwaitingProof)}
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/payments/42", nil), "id", "42")
	req = asSubscriber(req, 7)
	resp := httptest.NewRecorder()
	Get(svc, nil)(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestGetIncludesNextActionAndProof(t *testing.T) {
	note := "amount does not match"
	decision := enums.ReviewDecisionReject
	svc := &stubPayments{
		payment: manualPayment(7, enums.PaymentStatusRejected),
		proof:   &models.PaymentProof{PaymentID: 42, Decision: &decision, ReviewNote: &note},
		events: []models.PaymentEvent{
			{FromStatus: enums.PaymentStatusAwaitingProof, ToStatus: enums.PaymentStatusUnderReview, Actor: "subscriber"},
			{FromStatus: enums.PaymentStatusUnderReview, ToStatus: enums.PaymentStatusRejected, Actor: "admin:1"},
		},
	}
	req := asSubscriber(withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/payments/42", nil), "id", "42"), 7)
	resp := httptest.NewRecorder()

	Get(svc, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var envelope struct {
		Data paymentResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.NextAction != paymentssvc.NextActionContactSupport {
		t.Fatalf("expected contact_support, got %q", envelope.Data.NextAction)
	}
	if envelope.Data.Proof == nil || envelope.Data.Proof.Decision == nil || *envelope.Data.Proof.Decision != "reject" {
		t.Fatalf("expected rejected proof, got %+v", envelope.Data.Proof)
	}
	if len(envelope.Data.Events) != 2 {
		t.Fatalf("expected two events, got %d", len(envelope.Data.Events))
	}
}

func TestSubmitProofChecksOwnership(t *testing.T) {
	svc := &stubPayments{payment: manualPayment(7, enums.PaymentStatusAwaitingProof)}
	body := `{"bank_reference":"TRX-889"}`
	req := asSubscriber(withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/payments/42/proof", strings.NewReader(body)), "id", "42"), 7)
	resp := httptest.NewRecorder()
	SubmitProof(svc, nil)(resp, req)
	if resp.Code != http.StatusOK || svc.proofIn.BankReference != "TRX-889" {
		t.Fatalf("expected proof submission, got %d %+v", resp.Code, svc.proofIn)
	}
}

func TestRetryCheckout(t *testing.T) {
	svc := &stubPayments{payment: manualPayment(7, enums.PaymentStatusCreated)}
	req := asSubscriber(withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/payments/42/checkout", nil), "id", "42"), 7)
	resp := httptest.NewRecorder()
	RetryCheckout(svc, nil)(resp, req)
	if resp.Code != http.StatusOK || svc.retried != 42 {
		t.Fatalf("expected retry for 42, got %d", resp.Code)
	}
}

func TestAdminReviewUsesAuthenticatedReviewer(t *testing.T) {
	svc := &stubReview{}
	body := `{"decision":"reject","reason":"wrong amount"}`
	req := asAdmin(withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/admin/payments/42/review", strings.NewReader(body)), "id", "42"), 3)
	resp := httptest.NewRecorder()

	AdminReview(svc, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.input.ReviewerID != 3 || svc.input.Decision != enums.ReviewDecisionReject || svc.input.PaymentID != 42 {
		t.Fatalf("unexpected review input %+v", svc.input)
	}
}

func TestAdminReviewRejectsUnknownDecision(t *testing.T) {
	body := `{"decision":"maybe"}`
	req := asAdmin(withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/admin/payments/42/review", strings.NewReader(body)), "id", "42"), 3)
	resp := httptest.NewRecorder()
	AdminReview(&stubReview{}, nil)(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestAdminReviewQueuePassesCursor(t *testing.T) {
	svc := &stubReview{page: pagination.Page[reconciliation.QueueItem]{
		Items:      []reconciliation.QueueItem{{Payment: *manualPayment(7, enums.PaymentStatusUnderReview)}},
		NextCursor: "next",
	}}
	req := asAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/admin/payments/review-queue?limit=10&cursor=abc", nil), 3)
	resp := httptest.NewRecorder()

	AdminReviewQueue(svc, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if svc.params.Limit != 10 || svc.params.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", svc.params)
	}
	if !strings.Contains(resp.Body.String(), `"next_cursor":"next"`) {
		t.Fatalf("expected next cursor, got %s", resp.Body.String())
	}
}
