package enums

import "fmt"

// DiscountType describes how a campaign reduces the plan price.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// IsValid reports whether the value is a known DiscountType.
func (d DiscountType) IsValid() bool {
	return d == DiscountTypePercentage || d == DiscountTypeFixed
}

// ParseDiscountType converts raw input into a DiscountType.
func ParseDiscountType(value string) (DiscountType, error) {
	d := DiscountType(value)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid discount type %q", value)
	}
	return d, nil
}
