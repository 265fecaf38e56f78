// Package app assembles the billing services shared by the api and the
// workers from loaded configuration.
package app

import (
	"context"
	"fmt"

	"github.com/angelmondragon/fintrack-backend/internal/campaigns"
	"github.com/angelmondragon/fintrack-backend/internal/entitlements"
	"github.com/angelmondragon/fintrack-backend/internal/finance"
	"github.com/angelmondragon/fintrack-backend/internal/payments"
	"github.com/angelmondragon/fintrack-backend/internal/plans"
	"github.com/angelmondragon/fintrack-backend/internal/reconciliation"
	"github.com/angelmondragon/fintrack-backend/internal/subscribers"
	"github.com/angelmondragon/fintrack-backend/internal/usage"
	paddlewebhook "github.com/angelmondragon/fintrack-backend/internal/webhooks/paddle"
	"github.com/angelmondragon/fintrack-backend/pkg/config"
	"github.com/angelmondragon/fintrack-backend/pkg/db"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/metrics"
	"github.com/angelmondragon/fintrack-backend/pkg/outbox"
	"github.com/angelmondragon/fintrack-backend/pkg/paddle"
)

// Params are the already-open infrastructure handles.
type Params struct {
	Config  *config.Config
	DB      *db.Client
	Logger  *logger.Logger
	Metrics *metrics.BillingMetrics
	// Paddle is nil when automated payments are not configured.
	Paddle *paddle.Client
}

// Services is every domain service of the billing engine.
type Services struct {
	Plans          plans.Service
	Usage          usage.Counter
	Subscribers    subscribers.Service
	Entitlements   entitlements.Evaluator
	Finance        finance.Service
	Campaigns      campaigns.Service
	Payments       payments.Service
	Reconciliation reconciliation.Service
	PaddleWebhooks *paddlewebhook.Service
	Outbox         *outbox.Service
}

// Build wires the services in dependency order.
func Build(ctx context.Context, p Params) (*Services, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if p.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	cfg := p.Config
	conn := p.DB.DB()
	out := &Services{Outbox: outbox.NewService(outbox.NewRepository(conn), p.Logger)}

	var err error
	out.Plans, err = plans.NewService(plans.ServiceParams{
		Repo:            plans.NewRepository(conn),
		Logger:          p.Logger,
		DefaultCurrency: cfg.Billing.DefaultCurrency,
		TrialDays:       cfg.Billing.TrialDays,
	})
	if err != nil {
		return nil, fmt.Errorf("plans service: %w", err)
	}

	out.Usage, err = usage.NewCounter(usage.CounterParams{
		Repo:  usage.NewRepository(conn),
		Plans: out.Plans,
	})
	if err != nil {
		return nil, fmt.Errorf("usage counter: %w", err)
	}

	out.Subscribers, err = subscribers.NewService(subscribers.ServiceParams{
		Repo:               subscribers.NewRepository(conn),
		Plans:              out.Plans,
		Usage:              out.Usage,
		Outbox:             out.Outbox,
		TransactionRunner:  p.DB,
		Logger:             p.Logger,
		DefaultTrialDays:   cfg.Billing.TrialDays,
		TrialWarningWindow: cfg.Billing.TrialWarningWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("subscribers service: %w", err)
	}

	out.Entitlements, err = entitlements.NewEvaluator(entitlements.EvaluatorParams{
		Plans:              out.Plans,
		Usage:              out.Usage,
		Lifecycle:          out.Subscribers,
		Metrics:            p.Metrics,
		Logger:             p.Logger,
		NearLimitThreshold: cfg.Billing.NearLimitThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("entitlements evaluator: %w", err)
	}

	out.Finance, err = finance.NewService(finance.ServiceParams{
		Repo:              finance.NewRepository(conn),
		Entitlements:      out.Entitlements,
		Lifecycle:         out.Subscribers,
		TransactionRunner: p.DB,
		Logger:            p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("finance service: %w", err)
	}

	out.Campaigns, err = campaigns.NewService(campaigns.ServiceParams{
		Repo:    campaigns.NewRepository(conn),
		Plans:   out.Plans,
		Metrics: p.Metrics,
		Logger:  p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("campaigns service: %w", err)
	}

	paymentRepo := payments.NewRepository(conn)
	paymentParams := payments.ServiceParams{
		Repo:              paymentRepo,
		Plans:             out.Plans,
		Campaigns:         out.Campaigns,
		Lifecycle:         out.Subscribers,
		Outbox:            out.Outbox,
		TransactionRunner: p.DB,
		Metrics:           p.Metrics,
		Logger:            p.Logger,
		ManualTTL:         cfg.Billing.ManualPaymentTTL,
	}
	// A typed nil *paddle.Client would satisfy the interface and panic on use.
	if p.Paddle != nil {
		paymentParams.Gateway = p.Paddle
	} else {
		p.Logger.Warn(ctx, "paddle not configured; automated payment methods will be refused")
	}
	out.Payments, err = payments.NewService(paymentParams)
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}

	out.Reconciliation, err = reconciliation.NewService(reconciliation.ServiceParams{
		Payments: out.Payments,
		Queue:    paymentRepo,
		Logger:   p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("reconciliation service: %w", err)
	}

	out.PaddleWebhooks, err = paddlewebhook.NewService(paddlewebhook.ServiceParams{
		Payments: out.Payments,
		Metrics:  p.Metrics,
		Logger:   p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("paddle webhook service: %w", err)
	}
	return out, nil
}

// NewPaddle returns nil without error when Paddle credentials are absent.
func NewPaddle(ctx context.Context, cfg config.PaddleConfig, logg *logger.Logger) (*paddle.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	return paddle.NewClient(ctx, cfg, logg)
}

// Seed installs the default plan catalog and payment methods on an empty
// database. It is safe to call on every start.
func (s *Services) Seed(ctx context.Context) error {
	if err := s.Plans.Seed(ctx); err != nil {
		return fmt.Errorf("seed plans: %w", err)
	}
	if err := s.Payments.SeedMethods(ctx); err != nil {
		return fmt.Errorf("seed payment methods: %w", err)
	}
	return nil
}
