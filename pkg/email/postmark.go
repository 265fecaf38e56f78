package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/angelmondragon/fintrack-backend/pkg/config"
)

type postmarkSender struct {
	client  *postmark.Client
	from    string
	replyTo string
}

// NewPostmarkSender builds a Postmark-backed sender. Both tokens are required.
func NewPostmarkSender(cfg config.PostmarkConfig) (Sender, error) {
	if cfg.ServerToken == "" || cfg.AccountToken == "" {
		return nil, fmt.Errorf("%w: postmark tokens required", ErrInvalidConfig)
	}
	if err := validate.Var(cfg.SenderEmail, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: sender email: %v", ErrInvalidConfig, err)
	}
	if err := validate.Var(cfg.SupportEmail, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: support email: %v", ErrInvalidConfig, err)
	}
	return newPostmarkSender(postmark.NewClient(cfg.ServerToken, cfg.AccountToken), cfg), nil
}

func newPostmarkSender(client *postmark.Client, cfg config.PostmarkConfig) *postmarkSender {
	return &postmarkSender{client: client, from: cfg.SenderEmail, replyTo: cfg.SupportEmail}
}

func (s *postmarkSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.from,
		ReplyTo:    s.replyTo,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTMLBody,
		TextBody:   msg.TextBody,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
