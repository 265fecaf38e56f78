package payments

import (
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
)

// flow is the family-specific transition function. Both families share the
// status vocabulary but not the edges between statuses.
type flow struct {
	family  enums.PaymentFamily
	initial enums.PaymentStatus
	edges   map[enums.PaymentStatus][]enums.PaymentStatus
}

// The gateway may confirm before the redirect is recorded, so automated
// payments can settle straight from created.
var automatedFlow = flow{
	family:  enums.PaymentFamilyAutomated,
	initial: enums.PaymentStatusCreated,
	edges: map[enums.PaymentStatus][]enums.PaymentStatus{
		enums.PaymentStatusCreated: {
			enums.PaymentStatusRedirected,
			enums.PaymentStatusCompleted,
			enums.PaymentStatusFailed,
		},
		enums.PaymentStatusRedirected: {
			enums.PaymentStatusCompleted,
			enums.PaymentStatusFailed,
		},
	},
}

var manualFlow = flow{
	family:  enums.PaymentFamilyManual,
	initial: enums.PaymentStatusAwaitingProof,
	edges: map[enums.PaymentStatus][]enums.PaymentStatus{
		enums.PaymentStatusCreated:       {enums.PaymentStatusAwaitingProof},
		enums.PaymentStatusAwaitingProof: {enums.PaymentStatusSubmitted},
		enums.PaymentStatusSubmitted:     {enums.PaymentStatusUnderReview},
		enums.PaymentStatusUnderReview: {
			enums.PaymentStatusCompleted,
			enums.PaymentStatusRejected,
		},
	},
}

func flowFor(family enums.PaymentFamily) (flow, bool) {
	switch family {
	case enums.PaymentFamilyAutomated:
		return automatedFlow, true
	case enums.PaymentFamilyManual:
		return manualFlow, true
	}
	return flow{}, false
}

// allows reports whether from -> to is a legal move. Terminal statuses allow
// nothing; every other status may expire.
func (f flow) allows(from, to enums.PaymentStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == enums.PaymentStatusExpired {
		return true
	}
	for _, next := range f.edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextAction tells the client what to do after a terminal outcome: a new
// attempt for transient failures, support for a rejected proof.
func NextAction(status enums.PaymentStatus) string {
	switch status {
	case enums.PaymentStatusFailed, enums.PaymentStatusExpired:
		return NextActionRetry
	case enums.PaymentStatusRejected:
		return NextActionContactSupport
	}
	return ""
}

// Next actions surfaced to clients.
const (
	NextActionRetry          = "retry"
	NextActionContactSupport = "contact_support"
)
