package enums

import "fmt"

// PaymentStatus tracks a payment transaction through either payment family.
type PaymentStatus string

const (
	PaymentStatusCreated       PaymentStatus = "created"
	PaymentStatusRedirected    PaymentStatus = "redirected"
	PaymentStatusAwaitingProof PaymentStatus = "awaiting_proof"
	PaymentStatusSubmitted     PaymentStatus = "submitted"
	PaymentStatusUnderReview   PaymentStatus = "under_review"
	PaymentStatusCompleted     PaymentStatus = "completed"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusRejected      PaymentStatus = "rejected"
	PaymentStatusExpired       PaymentStatus = "expired"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusCreated,
	PaymentStatusRedirected,
	PaymentStatusAwaitingProof,
	PaymentStatusSubmitted,
	PaymentStatusUnderReview,
	PaymentStatusCompleted,
	PaymentStatusFailed,
	PaymentStatusRejected,
	PaymentStatusExpired,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is permitted.
func (p PaymentStatus) IsTerminal() bool {
	switch p {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRejected, PaymentStatusExpired:
		return true
	}
	return false
}

// NonTerminalPaymentStatuses lists every status that may still expire.
func NonTerminalPaymentStatuses() []PaymentStatus {
	out := make([]PaymentStatus, 0, len(validPaymentStatuses))
	for _, candidate := range validPaymentStatuses {
		if !candidate.IsTerminal() {
			out = append(out, candidate)
		}
	}
	return out
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
