package campaigns

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
)

const maxCodeLength = 32

var codePattern = regexp.MustCompile(`^[A-Z0-9_-]+$`)

var hundred = decimal.NewFromInt(100)

// NormalizeCode trims and upper-cases a coupon code and rejects malformed input.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	if len(code) > maxCodeLength || !codePattern.MatchString(code) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "coupon code is malformed").
			WithDetails(map[string]any{"code": raw})
	}
	return code, nil
}

// ComputeDiscount returns the discount for amount, rounded to two decimals and
// capped at amount so the final amount is never negative.
func ComputeDiscount(discountType enums.DiscountType, value, amount decimal.Decimal) decimal.Decimal {
	if amount.Sign() <= 0 || value.Sign() <= 0 {
		return decimal.Zero
	}
	var discount decimal.Decimal
	switch discountType {
	case enums.DiscountTypePercentage:
		discount = amount.Mul(value).Div(hundred).Round(2)
	case enums.DiscountTypeFixed:
		discount = value.Round(2)
	default:
		return decimal.Zero
	}
	return decimal.Min(discount, amount)
}

// FinalAmount is amount minus discount, floored at zero.
func FinalAmount(amount, discount decimal.Decimal) decimal.Decimal {
	return decimal.Max(amount.Sub(discount), decimal.Zero)
}
