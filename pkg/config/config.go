package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Billing      BillingConfig
	Paddle       PaddleConfig
	Postmark     PostmarkConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Billing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FINTRACK_APP_ENV" required:"true"`
	Port         string `envconfig:"FINTRACK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FINTRACK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FINTRACK_LOG_WARN_STACK" default:"false"`

	// CORSOrigins is a comma separated allow list for browser clients.
	CORSOrigins []string `envconfig:"FINTRACK_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"FINTRACK_SERVICE_KIND" default:"api"`
	// MetricsPort exposes /metrics from the worker binaries when set.
	MetricsPort string `envconfig:"FINTRACK_METRICS_PORT"`
}

type DBConfig struct {
	DSN string `envconfig:"FINTRACK_DB_DSN"`

	Host     string `envconfig:"FINTRACK_DB_HOST"`
	Port     int    `envconfig:"FINTRACK_DB_PORT" default:"5432"`
	User     string `envconfig:"FINTRACK_DB_USER"`
	Password string `envconfig:"FINTRACK_DB_PASSWORD"`
	Name     string `envconfig:"FINTRACK_DB_NAME"`
	SSLMode  string `envconfig:"FINTRACK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FINTRACK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FINTRACK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FINTRACK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FINTRACK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FINTRACK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FINTRACK_REDIS_ADDR"`
	Password     string        `envconfig:"FINTRACK_REDIS_PASSWORD"`
	DB           int           `envconfig:"FINTRACK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FINTRACK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FINTRACK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FINTRACK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FINTRACK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FINTRACK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FINTRACK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FINTRACK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FINTRACK_JWT_EXPIRATION_MINUTES" default:"60"`
}

// BillingConfig holds the catalog-wide defaults for trials, manual payments and limit warnings.
type BillingConfig struct {
	TrialDays          int           `envconfig:"FINTRACK_BILLING_TRIAL_DAYS" default:"14"`
	TrialWarningWindow time.Duration `envconfig:"FINTRACK_BILLING_TRIAL_WARNING_WINDOW" default:"72h"`
	ManualPaymentTTL   time.Duration `envconfig:"FINTRACK_BILLING_MANUAL_PAYMENT_TTL" default:"24h"`
	NearLimitThreshold int           `envconfig:"FINTRACK_BILLING_NEAR_LIMIT_THRESHOLD" default:"80"`
	DefaultCurrency    string        `envconfig:"FINTRACK_BILLING_DEFAULT_CURRENCY" default:"XAF"`
	CouponValidateRate int           `envconfig:"FINTRACK_BILLING_COUPON_VALIDATE_PER_MINUTE" default:"20"`
}

func (b BillingConfig) validate() error {
	if b.TrialDays < 0 {
		return fmt.Errorf("%s must be >= 0", EnvBillingTrialDays)
	}
	if b.ManualPaymentTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvBillingManualTTL)
	}
	if b.NearLimitThreshold <= 0 || b.NearLimitThreshold > 100 {
		return fmt.Errorf("%s must be within 1..100", EnvBillingNearLimit)
	}
	return nil
}

type PaddleConfig struct {
	APIKey        string `envconfig:"FINTRACK_PADDLE_API_KEY"`
	WebhookSecret string `envconfig:"FINTRACK_PADDLE_WEBHOOK_SECRET"`
	Env           string `envconfig:"FINTRACK_PADDLE_ENV" default:"sandbox"`
	CheckoutURL   string `envconfig:"FINTRACK_PADDLE_CHECKOUT_URL"`
}

// Enabled reports whether automated payments can reach Paddle.
func (p PaddleConfig) Enabled() bool {
	return strings.TrimSpace(p.APIKey) != "" && strings.TrimSpace(p.WebhookSecret) != ""
}

// Environment returns the normalized Paddle environment (sandbox/production).
func (p PaddleConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type PostmarkConfig struct {
	ServerToken  string `envconfig:"FINTRACK_POSTMARK_SERVER_TOKEN"`
	AccountToken string `envconfig:"FINTRACK_POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail  string `envconfig:"FINTRACK_POSTMARK_SENDER_EMAIL" default:"billing@fintrack.app"`
	SupportEmail string `envconfig:"FINTRACK_POSTMARK_SUPPORT_EMAIL" default:"support@fintrack.app"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FINTRACK_AUTO_MIGRATE" default:"false"`
	SeedCatalog bool `envconfig:"FINTRACK_SEED_CATALOG" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"FINTRACK_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	APIIdempotencyTTL     time.Duration `envconfig:"FINTRACK_EVENTING_API_IDEMPOTENCY_TTL" default:"24h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FINTRACK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FINTRACK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FINTRACK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"FINTRACK_CRON_INTERVAL" default:"5m"`
	OutboxRetention time.Duration `envconfig:"FINTRACK_CRON_OUTBOX_RETENTION" default:"720h"`
	ExpiryBatch     int           `envconfig:"FINTRACK_CRON_EXPIRY_BATCH" default:"100"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
