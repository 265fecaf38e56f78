package paddle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	paddlesdk "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fintrack-backend/pkg/config"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAPIKeyRequired   = errors.New("paddle api key is required")
	errSecretRequired   = errors.New("paddle webhook secret is required")
	errInvalidPaddleEnv = fmt.Errorf("paddle environment must be %q or %q", sandboxEnv, productionEnv)
	errNoCheckoutURL    = errors.New("no checkout url returned from paddle")
)

// zeroDecimalCurrencies are charged in whole units; Paddle's lowest
// denomination for them is the unit itself.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "ISK": true,
	"JPY": true, "KMF": true, "KRW": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// CheckoutRequest is what the payment manager hands the gateway to start a
// hosted checkout.
type CheckoutRequest struct {
	PaymentID    uint64
	Reference    string
	SubscriberID uint64
	PriceID      string
	PlanName     string
	FinalAmount  decimal.Decimal
	Currency     string
	CouponCode   string
}

// CheckoutSession is the gateway's answer: its transaction id and the
// redirect target for the subscriber.
type CheckoutSession struct {
	TransactionID string
	URL           string
}

// Client wraps the Paddle SDK plus the webhook verifier.
type Client struct {
	sdk         *paddlesdk.SDK
	verifier    *paddlesdk.WebhookVerifier
	environment string
	checkoutURL string
}

// NewClient initializes the Paddle SDK for the configured environment.
func NewClient(ctx context.Context, cfg config.PaddleConfig, logg *logger.Logger, opts ...paddlesdk.Option) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errSecretRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	var sdk *paddlesdk.SDK
	if env == sandboxEnv {
		sdk, err = paddlesdk.NewSandbox(apiKey, opts...)
	} else {
		sdk, err = paddlesdk.New(apiKey, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("create paddle client: %w", err)
	}

	logg.Info(ctx, fmt.Sprintf("paddle client initialized (%s)", env))
	return &Client{
		sdk:         sdk,
		verifier:    paddlesdk.NewWebhookVerifier(secret),
		environment: env,
		checkoutURL: strings.TrimSpace(cfg.CheckoutURL),
	}, nil
}

// Environment reports the normalized Paddle environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// BeginCheckout creates a Paddle transaction that charges exactly
// FinalAmount and returns its hosted checkout URL. The amount goes on a
// one-off price, so coupon discounts reach the card. Our payment id travels in
// custom_data so the webhook can find the payment again.
func (c *Client) BeginCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if strings.TrimSpace(req.PriceID) == "" {
		return CheckoutSession{}, errors.New("paddle price id is required")
	}
	unitPrice, err := toMoney(req.FinalAmount, req.Currency)
	if err != nil {
		return CheckoutSession{}, err
	}
	name := strings.TrimSpace(req.PlanName)
	if name == "" {
		name = req.Reference
	}
	item := paddlesdk.NewCreateTransactionItemsTransactionItemCreateWithProduct(&paddlesdk.TransactionItemCreateWithProduct{
		Quantity: 1,
		Price: paddlesdk.TransactionPriceCreateWithProduct{
			Description: "payment " + req.Reference,
			Name:        paddlesdk.PtrTo(name),
			TaxMode:     paddlesdk.TaxModeAccountSetting,
			UnitPrice:   unitPrice,
			Quantity:    paddlesdk.PriceQuantity{Minimum: 1, Maximum: 1},
			CustomData:  paddlesdk.CustomData{"catalog_price_id": req.PriceID},
			Product: paddlesdk.TransactionSubscriptionProductCreate{
				Name:        name,
				TaxCategory: paddlesdk.TaxCategoryStandard,
			},
		},
	})
	txnReq := &paddlesdk.CreateTransactionRequest{
		Items: []paddlesdk.CreateTransactionItems{*item},
		CustomData: paddlesdk.CustomData{
			"payment_id":    strconv.FormatUint(req.PaymentID, 10),
			"reference":     req.Reference,
			"subscriber_id": strconv.FormatUint(req.SubscriberID, 10),
			"final_amount":  req.FinalAmount.StringFixed(2),
			"currency":      req.Currency,
		},
	}
	if req.CouponCode != "" {
		txnReq.CustomData["coupon_code"] = req.CouponCode
	}
	if c.checkoutURL != "" {
		txnReq.Checkout = &paddlesdk.TransactionCheckout{URL: paddlesdk.PtrTo(c.checkoutURL)}
	}

	txn, err := c.sdk.TransactionsClient.CreateTransaction(ctx, txnReq)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("create paddle transaction: %w", err)
	}
	if txn.Checkout == nil || txn.Checkout.URL == nil || *txn.Checkout.URL == "" {
		return CheckoutSession{}, errNoCheckoutURL
	}
	return CheckoutSession{TransactionID: txn.ID, URL: *txn.Checkout.URL}, nil
}

// VerifyRequest checks the Paddle-Signature header against the raw body.
func (c *Client) VerifyRequest(r *http.Request) (bool, error) {
	return c.verifier.Verify(r)
}

// toMoney converts an amount to Paddle's integer minor-unit string.
func toMoney(amount decimal.Decimal, currency string) (paddlesdk.Money, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if len(code) != 3 {
		return paddlesdk.Money{}, fmt.Errorf("invalid currency %q", currency)
	}
	if amount.IsNegative() {
		return paddlesdk.Money{}, fmt.Errorf("checkout amount cannot be negative, got %s", amount.String())
	}
	exp := int32(2)
	if zeroDecimalCurrencies[code] {
		exp = 0
	}
	minor := amount.Shift(exp).Round(0)
	return paddlesdk.Money{Amount: minor.String(), CurrencyCode: paddlesdk.CurrencyCode(code)}, nil
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidPaddleEnv
	}
}

// validateAPIKey only inspects keys in Paddle's prefixed format; legacy keys pass.
func validateAPIKey(env, key string) error {
	if !strings.HasPrefix(key, "pdl_") {
		return nil
	}
	switch env {
	case sandboxEnv:
		if strings.HasPrefix(key, "pdl_sdbx_") {
			return nil
		}
		return fmt.Errorf("paddle environment %q requires a sandbox api key", sandboxEnv)
	case productionEnv:
		if strings.HasPrefix(key, "pdl_live_") {
			return nil
		}
		return fmt.Errorf("paddle environment %q requires a live api key", productionEnv)
	}
	return errInvalidPaddleEnv
}
