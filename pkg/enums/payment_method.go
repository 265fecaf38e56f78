package enums

import "fmt"

// PaymentFamily separates gateway-confirmed methods from human-verified ones.
type PaymentFamily string

const (
	PaymentFamilyAutomated PaymentFamily = "automated"
	PaymentFamilyManual    PaymentFamily = "manual"
)

// IsValid reports whether the value is a known PaymentFamily.
func (f PaymentFamily) IsValid() bool {
	return f == PaymentFamilyAutomated || f == PaymentFamilyManual
}

// PaymentMethodName is the stable identifier of a payment method.
type PaymentMethodName string

const (
	PaymentMethodGatewayCard       PaymentMethodName = "gateway_card"
	PaymentMethodMobileMoneyMTN    PaymentMethodName = "mobile_money_mtn"
	PaymentMethodMobileMoneyOrange PaymentMethodName = "mobile_money_orange"
	PaymentMethodBankTransfer      PaymentMethodName = "bank_transfer"
)

var validPaymentMethodNames = []PaymentMethodName{
	PaymentMethodGatewayCard,
	PaymentMethodMobileMoneyMTN,
	PaymentMethodMobileMoneyOrange,
	PaymentMethodBankTransfer,
}

// String implements fmt.Stringer.
func (m PaymentMethodName) String() string {
	return string(m)
}

// IsValid reports whether the value is a known PaymentMethodName.
func (m PaymentMethodName) IsValid() bool {
	for _, candidate := range validPaymentMethodNames {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParsePaymentMethodName converts raw input into a PaymentMethodName.
func ParsePaymentMethodName(value string) (PaymentMethodName, error) {
	for _, candidate := range validPaymentMethodNames {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
