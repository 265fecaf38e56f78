package enums

import (
	"fmt"
	"strings"
)

// PlanType identifies a catalog tier.
type PlanType string

const (
	PlanBasic      PlanType = "basic"
	PlanPremium    PlanType = "premium"
	PlanEnterprise PlanType = "enterprise"
)

var validPlanTypes = []PlanType{
	PlanBasic,
	PlanPremium,
	PlanEnterprise,
}

// String implements fmt.Stringer.
func (p PlanType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanType.
func (p PlanType) IsValid() bool {
	for _, candidate := range validPlanTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlanType converts raw input into a PlanType. Input is case-insensitive.
func ParsePlanType(value string) (PlanType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPlanTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan type %q", value)
}
