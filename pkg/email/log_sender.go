package email

import (
	"context"

	"github.com/angelmondragon/fintrack-backend/pkg/config"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
)

// LogSender writes messages to the structured log instead of delivering them.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"to":      msg.To,
		"subject": msg.Subject,
		"tag":     msg.Tag,
	})
	s.logg.Info(ctx, "email suppressed (no postmark credentials)")
	return nil
}

// NewSender picks Postmark when credentials are present and the log sender otherwise.
func NewSender(cfg config.PostmarkConfig, logg *logger.Logger) (Sender, error) {
	if cfg.ServerToken == "" && cfg.AccountToken == "" {
		return NewLogSender(logg), nil
	}
	return NewPostmarkSender(cfg)
}
