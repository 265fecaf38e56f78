package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "FINTRACK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "FINTRACK_APP_ENV"
	EnvPort     = "FINTRACK_APP_PORT"
	EnvLogLevel = "FINTRACK_LOG_LEVEL"

	EnvDBDSN  = "FINTRACK_DB_DSN"
	EnvDBHost = "FINTRACK_DB_HOST"
	EnvDBUser = "FINTRACK_DB_USER"
	EnvDBName = "FINTRACK_DB_NAME"

	EnvRedisURL = "FINTRACK_REDIS_URL"

	EnvJWTSecret = "FINTRACK_JWT_SECRET"
	EnvJWTIssuer = "FINTRACK_JWT_ISSUER"

	EnvBillingTrialDays = "FINTRACK_BILLING_TRIAL_DAYS"
	EnvBillingManualTTL = "FINTRACK_BILLING_MANUAL_PAYMENT_TTL"
	EnvBillingNearLimit = "FINTRACK_BILLING_NEAR_LIMIT_THRESHOLD"

	EnvPaddleAPIKey        = "FINTRACK_PADDLE_API_KEY"
	EnvPaddleWebhookSecret = "FINTRACK_PADDLE_WEBHOOK_SECRET"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
