package payments

import (
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
)

// DefaultMethods is the method catalog seeded on first boot. Bank details are
// placeholders until finance provides the collection account.
func DefaultMethods() []models.PaymentMethod {
	bankName := "Afriland First Bank"
	accountName := "FinTrack SARL"
	accountNumber := "10005-00001-01234567890-12"

	return []models.PaymentMethod{
		{
			Name:           enums.PaymentMethodGatewayCard,
			Family:         enums.PaymentFamilyAutomated,
			DisplayName:    "Card",
			ProcessingTime: "Instant",
			FeeDescription: "No fee",
			Instructions:   "You will be redirected to a secure checkout page.",
			SortOrder:      1,
			Active:         true,
		},
		{
			Name:           enums.PaymentMethodMobileMoneyMTN,
			Family:         enums.PaymentFamilyManual,
			DisplayName:    "MTN Mobile Money",
			ProcessingTime: "Within 24 hours",
			FeeDescription: "Operator fees apply",
			Instructions:   "Send the exact amount to the merchant number and quote your payment reference.",
			SortOrder:      2,
			Active:         true,
		},
		{
			Name:           enums.PaymentMethodMobileMoneyOrange,
			Family:         enums.PaymentFamilyManual,
			DisplayName:    "Orange Money",
			ProcessingTime: "Within 24 hours",
			FeeDescription: "Operator fees apply",
			Instructions:   "Send the exact amount to the merchant number and quote your payment reference.",
			SortOrder:      3,
			Active:         true,
		},
		{
			Name:           enums.PaymentMethodBankTransfer,
			Family:         enums.PaymentFamilyManual,
			DisplayName:    "Bank transfer",
			ProcessingTime: "1 to 2 business days",
			FeeDescription: "Bank fees apply",
			Instructions:   "Use your payment reference as the transfer label.",
			BankName:       &bankName,
			AccountName:    &accountName,
			AccountNumber:  &accountNumber,
			SortOrder:      4,
			Active:         true,
		},
	}
}
