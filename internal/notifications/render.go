package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
	"github.com/angelmondragon/fintrack-backend/pkg/email"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	"github.com/angelmondragon/fintrack-backend/pkg/outbox/payloads"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFiles = map[enums.OutboxEventType]string{
	enums.EventPaymentCompleted:          "templates/payment_completed.html",
	enums.EventPaymentFailed:             "templates/payment_failed.html",
	enums.EventPaymentRejected:           "templates/payment_rejected.html",
	enums.EventPaymentExpired:            "templates/payment_expired.html",
	enums.EventSubscriptionTrialExpiring: "templates/trial_expiring.html",
}

// Renderer turns decoded outbox payloads into email messages.
type Renderer struct {
	templates    map[enums.OutboxEventType]*template.Template
	supportEmail string
}

func NewRenderer(supportEmail string) (*Renderer, error) {
	parsed := make(map[enums.OutboxEventType]*template.Template, len(templateFiles))
	for eventType, file := range templateFiles {
		tmpl, err := template.ParseFS(templateFS, file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		parsed[eventType] = tmpl
	}
	return &Renderer{templates: parsed, supportEmail: supportEmail}, nil
}

// Supports reports whether an email exists for the event type.
func (r *Renderer) Supports(eventType enums.OutboxEventType) bool {
	_, ok := r.templates[eventType]
	return ok
}

type view struct {
	Name      string
	Reference string
	Amount    string
	Plan      string
	Coupon    string
	Reason    string
	TrialEnds string
	Support   string
}

// Render builds the message for a payload addressed to the subscriber.
func (r *Renderer) Render(eventType enums.OutboxEventType, payload any, to *models.Subscriber) (email.Message, error) {
	tmpl, ok := r.templates[eventType]
	if !ok {
		return email.Message{}, nonRetryable(fmt.Errorf("no template for %s", eventType))
	}
	v := view{Name: displayName(to), Support: r.supportEmail}
	switch p := payload.(type) {
	case payloads.PaymentOutcomeEvent:
		v.Reference = p.Reference
		v.Amount = strings.TrimSpace(p.FinalAmount.String() + " " + p.Currency)
		v.Plan = string(p.PlanType)
		v.Reason = p.Reason
		if p.CouponCode != nil {
			v.Coupon = *p.CouponCode
		}
	case payloads.TrialExpiringEvent:
		v.Plan = string(p.PlanType)
		v.TrialEnds = p.TrialEndsAt.UTC().Format("January 2, 2006")
	default:
		return email.Message{}, nonRetryable(fmt.Errorf("unexpected payload %T for %s", payload, eventType))
	}

	var subject, body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subject, "subject", v); err != nil {
		return email.Message{}, nonRetryable(err)
	}
	if err := tmpl.ExecuteTemplate(&body, "body", v); err != nil {
		return email.Message{}, nonRetryable(err)
	}
	return email.Message{
		To:       to.Email,
		Subject:  strings.TrimSpace(subject.String()),
		HTMLBody: strings.TrimSpace(body.String()),
		Tag:      string(eventType),
	}, nil
}

func displayName(sub *models.Subscriber) string {
	if name := strings.TrimSpace(sub.DisplayName); name != "" {
		return name
	}
	if at := strings.IndexByte(sub.Email, '@'); at > 0 {
		return sub.Email[:at]
	}
	return "there"
}
