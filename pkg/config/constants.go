package config

const (
	EnvPrefix = "SETTLEMENT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv     = "SETTLEMENT_APP_ENV"
	EnvPort       = "SETTLEMENT_APP_PORT"
	EnvLogLevel   = "SETTLEMENT_LOG_LEVEL"
	EnvDBDSN      = "SETTLEMENT_DB_DSN"
	EnvDBHost     = "SETTLEMENT_DB_HOST"
	EnvDBUser     = "SETTLEMENT_DB_USER"
	EnvDBName     = "SETTLEMENT_DB_NAME"
	EnvRedisURL   = "SETTLEMENT_REDIS_URL"
	EnvTaxRate    = "SETTLEMENT_PRICING_TAX_RATE"
	EnvFeeType    = "SETTLEMENT_PRICING_PLATFORM_FEE_TYPE"
	EnvFeeValue   = "SETTLEMENT_PRICING_PLATFORM_FEE_VALUE"
	EnvCommission = "SETTLEMENT_PRICING_COMMISSION_RATE"
	EnvCurrency   = "SETTLEMENT_PRICING_CURRENCY"

	EnvStripeAPIKey        = "SETTLEMENT_STRIPE_API_KEY"
	EnvStripeWebhookSecret = "SETTLEMENT_STRIPE_WEBHOOK_SECRET"
	EnvPaymentsSuccessURL  = "SETTLEMENT_PAYMENTS_SUCCESS_URL"
	EnvPaymentsCancelURL   = "SETTLEMENT_PAYMENTS_CANCEL_URL"

	EnvGCPProjectID          = "SETTLEMENT_GCP_PROJECT_ID"
	EnvPubSubSettlementTopic = "SETTLEMENT_PUBSUB_SETTLEMENT_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
