// Package email delivers transactional mail through Postmark, or through the
// structured logger when no Postmark credentials are configured.
package email

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrSendFailed    = errors.New("email: send failed")
	ErrInvalidConfig = errors.New("email: invalid config")
	ErrInvalidEmail  = errors.New("email: invalid message")
)

// Sender delivers a single rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a rendered email ready for delivery.
type Message struct {
	To       string `validate:"required,email"`
	Subject  string `validate:"required,max=255"`
	HTMLBody string `validate:"required"`
	TextBody string
	Tag      string `validate:"max=1000"`
}

var validate = validator.New()

// Validate trims the message and checks required fields.
func (m *Message) Validate() error {
	m.To = strings.TrimSpace(m.To)
	m.Subject = strings.TrimSpace(m.Subject)
	if err := validate.Struct(m); err != nil {
		return errors.Join(ErrInvalidEmail, err)
	}
	return nil
}
