package enums

import "fmt"

// ReviewDecision is an admin outcome for a manually submitted payment proof.
type ReviewDecision string

const (
	ReviewDecisionApprove ReviewDecision = "approve"
	ReviewDecisionReject  ReviewDecision = "reject"
)

// IsValid reports whether the value is a known ReviewDecision.
func (d ReviewDecision) IsValid() bool {
	return d == ReviewDecisionApprove || d == ReviewDecisionReject
}

// ParseReviewDecision converts raw input into a ReviewDecision.
func ParseReviewDecision(value string) (ReviewDecision, error) {
	d := ReviewDecision(value)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid review decision %q", value)
	}
	return d, nil
}
