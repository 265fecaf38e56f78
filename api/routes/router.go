package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fintrack-backend/api/controllers"
	billingcontrollers "github.com/angelmondragon/fintrack-backend/api/controllers/billing"
	paymentcontrollers "github.com/angelmondragon/fintrack-backend/api/controllers/payments"
	subscribercontrollers "github.com/angelmondragon/fintrack-backend/api/controllers/subscribers"
	webhookcontrollers "github.com/angelmondragon/fintrack-backend/api/controllers/webhooks"
	"github.com/angelmondragon/fintrack-backend/api/middleware"
	"github.com/angelmondragon/fintrack-backend/internal/app"
	paddlewebhook "github.com/angelmondragon/fintrack-backend/internal/webhooks/paddle"
	"github.com/angelmondragon/fintrack-backend/pkg/config"
	"github.com/angelmondragon/fintrack-backend/pkg/db"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/metrics"
	"github.com/angelmondragon/fintrack-backend/pkg/paddle"
	"github.com/angelmondragon/fintrack-backend/pkg/redis"
)

// Dependencies are the handles the router wires into controllers. Paddle,
// WebhookGuard and Redis may be nil.
type Dependencies struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           db.Pinger
	Redis        *redis.Client
	Services     *app.Services
	Paddle       *paddle.Client
	WebhookGuard *paddlewebhook.IdempotencyGuard
	Gatherer     prometheus.Gatherer
}

type webhookVerifier interface {
	VerifyRequest(r *http.Request) (bool, error)
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type fixedWindowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func NewRouter(d Dependencies) http.Handler {
	cfg := d.Config
	logg := d.Logger
	svc := d.Services
	if svc == nil {
		svc = &app.Services{}
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	// typed nil pointers must not reach the controllers as non-nil interfaces
	var (
		cache       controllers.Pinger
		idempotency redis.IdempotencyStore
		limiter     fixedWindowLimiter
		verifier    webhookVerifier
		guard       webhookGuard
		webhooks    webhookcontrollers.PaddleWebhookService
	)
	if d.Redis != nil {
		cache, idempotency, limiter = d.Redis, d.Redis, d.Redis
	}
	if d.Paddle != nil {
		verifier = d.Paddle
	}
	if d.WebhookGuard != nil {
		guard = d.WebhookGuard
	}
	if svc.PaddleWebhooks != nil {
		webhooks = svc.PaddleWebhooks
	}

	idempotent := middleware.Idempotency(idempotency, cfg.Eventing.APIIdempotencyTTL, logg)
	couponPolicy := middleware.NewRateLimitPolicy("coupon-validate", time.Minute, cfg.Billing.CouponValidateRate)
	couponLimit := middleware.RateLimit(couponPolicy, limiter, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, d.DB, cache, logg))
	})
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Gatherer))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paddle", webhookcontrollers.PaddleWebhook(webhooks, verifier, guard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/plans", billingcontrollers.PlansList(svc.Plans, logg))
		r.Get("/payment-methods", billingcontrollers.PaymentMethodsList(svc.Payments, logg))
		r.With(couponLimit).Post("/coupons/validate", billingcontrollers.CouponValidate(svc.Campaigns, logg))

		r.Post("/subscribers", subscribercontrollers.SignUp(svc.Subscribers, logg))
		r.Route("/subscribers/{id}", func(r chi.Router) {
			r.Use(middleware.RequireSelfOrAdmin("id", logg))
			r.Get("/", subscribercontrollers.Get(svc.Subscribers, logg))
			r.Post("/plan", subscribercontrollers.ChangePlan(svc.Subscribers, logg))
			r.Post("/cancel", subscribercontrollers.Cancel(svc.Subscribers, logg))
			r.With(idempotent).Post("/accounts", subscribercontrollers.CreateAccount(svc.Finance, logg))
			r.With(idempotent).Post("/transactions", subscribercontrollers.CreateTransaction(svc.Finance, logg))
			r.Get("/payments", paymentcontrollers.ListForSubscriber(svc.Payments, logg))
		})
		r.With(middleware.RequireSelfOrAdmin("subscriber", logg)).
			Get("/entitlements/{subscriber}", subscribercontrollers.Entitlements(svc.Entitlements, logg))

		r.With(idempotent).Post("/payments", paymentcontrollers.Create(svc.Payments, logg))
		r.Route("/payments/{id}", func(r chi.Router) {
			r.Get("/", paymentcontrollers.Get(svc.Payments, logg))
			r.Post("/checkout", paymentcontrollers.RetryCheckout(svc.Payments, logg))
			r.Post("/proof", paymentcontrollers.SubmitProof(svc.Payments, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.ActorRoleAdmin, logg))
			r.Get("/payments/review-queue", paymentcontrollers.AdminReviewQueue(svc.Reconciliation, logg))
			r.Post("/payments/{id}/review", paymentcontrollers.AdminReview(svc.Reconciliation, logg))
			r.Put("/plans/{type}", billingcontrollers.AdminPlanUpsert(svc.Plans, logg))
			r.Post("/campaigns", billingcontrollers.AdminCampaignCreate(svc.Campaigns, logg))
			r.Get("/campaigns", billingcontrollers.AdminCampaignsList(svc.Campaigns, logg))
			r.Post("/campaigns/{id}/active", billingcontrollers.AdminCampaignSetActive(svc.Campaigns, logg))
			r.Post("/subscribers/{id}/past-due", subscribercontrollers.AdminMarkPastDue(svc.Subscribers, logg))
		})
	})

	return r
}
