package payments

import (
	"time"

	paymentssvc "github.com/angelmondragon/fintrack-backend/internal/payments"
	"github.com/angelmondragon/fintrack-backend/internal/reconciliation"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
)

type createPaymentRequest struct {
	// SubscriberID is only honoured for admins.
	SubscriberID  *uint64 `json:"subscriber_id,omitempty"`
	PlanType      string  `json:"plan_type" validate:"required"`
	PaymentMethod string  `json:"payment_method" validate:"required"`
	CouponCode    string  `json:"coupon_code,omitempty" validate:"max=64"`
}

type proofRequest struct {
	Description   string `json:"description" validate:"max=1000"`
	EvidenceRef   string `json:"evidence_ref" validate:"max=512"`
	BankReference string `json:"bank_reference" validate:"max=128"`
	PhoneNumber   string `json:"phone_number" validate:"max=32"`
}

type reviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Reason   string `json:"reason" validate:"max=500"`
}

type paymentResponse struct {
	ID             uint64          `json:"id"`
	Reference      string          `json:"reference"`
	SubscriberID   uint64          `json:"subscriber_id"`
	PlanType       string          `json:"plan_type"`
	PaymentMethod  string          `json:"payment_method"`
	Family         string          `json:"family"`
	Amount         string          `json:"amount"`
	DiscountAmount string          `json:"discount_amount"`
	FinalAmount    string          `json:"final_amount"`
	Currency       string          `json:"currency"`
	CouponCode     *string         `json:"coupon_code,omitempty"`
	Status         string          `json:"status"`
	CheckoutURL    *string         `json:"checkout_url,omitempty"`
	FailureReason  *string         `json:"failure_reason,omitempty"`
	NextAction     string          `json:"next_action,omitempty"`
	ExpiresAt      *string         `json:"expires_at,omitempty"`
	ProcessedAt    *string         `json:"processed_at,omitempty"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	Proof          *proofResponse  `json:"proof,omitempty"`
	Events         []eventResponse `json:"events,omitempty"`
}

type proofResponse struct {
	Description   string  `json:"description"`
	EvidenceRef   *string `json:"evidence_ref,omitempty"`
	BankReference *string `json:"bank_reference,omitempty"`
	PhoneNumber   *string `json:"phone_number,omitempty"`
	SubmittedAt   string  `json:"submitted_at"`
	ReviewedAt    *string `json:"reviewed_at,omitempty"`
	ReviewerID    *uint64 `json:"reviewer_id,omitempty"`
	Decision      *string `json:"decision,omitempty"`
	ReviewNote    *string `json:"review_note,omitempty"`
}

type eventResponse struct {
	FromStatus string  `json:"from_status"`
	ToStatus   string  `json:"to_status"`
	Actor      string  `json:"actor"`
	Reason     *string `json:"reason,omitempty"`
	OccurredAt string  `json:"occurred_at"`
}

type queueItemResponse struct {
	Payment paymentResponse `json:"payment"`
}

type queueResponse struct {
	Items      []queueItemResponse `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

func paymentToResponse(p *models.Payment) paymentResponse {
	return paymentResponse{
		ID:             p.ID,
		Reference:      p.Reference(),
		SubscriberID:   p.SubscriberID,
		PlanType:       string(p.PlanType),
		PaymentMethod:  string(p.PaymentMethod),
		Family:         string(p.Family),
		Amount:         p.Amount.StringFixed(2),
		DiscountAmount: p.DiscountAmount.StringFixed(2),
		FinalAmount:    p.FinalAmount.StringFixed(2),
		Currency:       p.Currency,
		CouponCode:     p.CouponCode,
		Status:         string(p.Status),
		CheckoutURL:    p.CheckoutURL,
		FailureReason:  p.FailureReason,
		NextAction:     paymentssvc.NextAction(p.Status),
		ExpiresAt:      formatTimePtr(p.ExpiresAt),
		ProcessedAt:    formatTimePtr(p.ProcessedAt),
		CreatedAt:      formatTime(p.CreatedAt),
		UpdatedAt:      formatTime(p.UpdatedAt),
	}
}

func proofToResponse(p *models.PaymentProof) *proofResponse {
	if p == nil {
		return nil
	}
	out := &proofResponse{
		Description:   p.Description,
		EvidenceRef:   p.EvidenceRef,
		BankReference: p.BankReference,
		PhoneNumber:   p.PhoneNumber,
		SubmittedAt:   formatTime(p.SubmittedAt),
		ReviewedAt:    formatTimePtr(p.ReviewedAt),
		ReviewerID:    p.ReviewerID,
		ReviewNote:    p.ReviewNote,
	}
	if p.Decision != nil {
		d := string(*p.Decision)
		out.Decision = &d
	}
	return out
}

func eventsToResponse(events []models.PaymentEvent) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			FromStatus: string(e.FromStatus),
			ToStatus:   string(e.ToStatus),
			Actor:      e.Actor,
			Reason:     e.Reason,
			OccurredAt: formatTime(e.OccurredAt),
		})
	}
	return out
}

func queueItemToResponse(item reconciliation.QueueItem) queueItemResponse {
	payment := paymentToResponse(&item.Payment)
	payment.Proof = proofToResponse(item.Proof)
	return queueItemResponse{Payment: payment}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := formatTime(*t)
	return &v
}
