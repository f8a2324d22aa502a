package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	HTTP         HTTPConfig
	FeatureFlags FeatureFlagsConfig
	Pricing      PricingConfig
	Payments     PaymentsConfig
	Stripe       StripeConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Eventing     EventingConfig
	Jobs         JobsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SETTLEMENT_APP_ENV" required:"true"`
	Port         string `envconfig:"SETTLEMENT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SETTLEMENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SETTLEMENT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"SETTLEMENT_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SETTLEMENT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SETTLEMENT_DB_DSN"`
	Driver string `envconfig:"SETTLEMENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SETTLEMENT_DB_HOST"`
	LegacyPort     int    `envconfig:"SETTLEMENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SETTLEMENT_DB_USER"`
	LegacyPassword string `envconfig:"SETTLEMENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"SETTLEMENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"SETTLEMENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SETTLEMENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SETTLEMENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SETTLEMENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SETTLEMENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"SETTLEMENT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SETTLEMENT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SETTLEMENT_REDIS_ADDR"`
	Password     string        `envconfig:"SETTLEMENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"SETTLEMENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SETTLEMENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SETTLEMENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SETTLEMENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SETTLEMENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SETTLEMENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// HTTPConfig tunes the API edge. A zero RateLimitPerActor disables throttling.
type HTTPConfig struct {
	CORSOrigins       []string      `envconfig:"SETTLEMENT_HTTP_CORS_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow   time.Duration `envconfig:"SETTLEMENT_HTTP_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerActor int           `envconfig:"SETTLEMENT_HTTP_RATE_LIMIT_PER_ACTOR" default:"120"`
	ShutdownTimeout   time.Duration `envconfig:"SETTLEMENT_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SETTLEMENT_AUTO_MIGRATE" default:"false"`
	AllowManual bool `envconfig:"SETTLEMENT_FEATURE_ALLOW_MANUAL_PAYMENTS" default:"true"`
}

// PricingConfig carries the platform-wide tax and fee rules. Rates are
// fractions (0.05 = 5%); flat fees are minor units.
type PricingConfig struct {
	TaxRate          string `envconfig:"SETTLEMENT_PRICING_TAX_RATE" default:"0"`
	PlatformFeeType  string `envconfig:"SETTLEMENT_PRICING_PLATFORM_FEE_TYPE" default:"flat"`
	PlatformFeeValue string `envconfig:"SETTLEMENT_PRICING_PLATFORM_FEE_VALUE" default:"0"`
	CommissionRate   string `envconfig:"SETTLEMENT_PRICING_COMMISSION_RATE" default:"0.10"`
	Currency         string `envconfig:"SETTLEMENT_PRICING_CURRENCY" default:"usd"`
}

// TaxRateDecimal parses TaxRate; call after Load has validated it.
func (p PricingConfig) TaxRateDecimal() decimal.Decimal {
	return decimal.RequireFromString(p.TaxRate)
}

func (p PricingConfig) PlatformFeeDecimal() decimal.Decimal {
	return decimal.RequireFromString(p.PlatformFeeValue)
}

func (p PricingConfig) CommissionRateDecimal() decimal.Decimal {
	return decimal.RequireFromString(p.CommissionRate)
}

func (p PricingConfig) validate() error {
	for env, raw := range map[string]string{
		EnvTaxRate:    p.TaxRate,
		EnvFeeValue:   p.PlatformFeeValue,
		EnvCommission: p.CommissionRate,
	} {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid decimal %q", env, raw)
		}
		if v.IsNegative() {
			return fmt.Errorf("%s must not be negative", env)
		}
	}
	if p.CommissionRateDecimal().GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be <= 1", EnvCommission)
	}
	switch strings.ToLower(p.PlatformFeeType) {
	case "flat", "percentage":
	default:
		return fmt.Errorf("%s must be flat or percentage", EnvFeeType)
	}
	return nil
}

type PaymentsConfig struct {
	SuccessURL       string        `envconfig:"SETTLEMENT_PAYMENTS_SUCCESS_URL" default:"http://localhost:3000/payments/success"`
	CancelURL        string        `envconfig:"SETTLEMENT_PAYMENTS_CANCEL_URL" default:"http://localhost:3000/payments/cancel"`
	ManualUploadPath string        `envconfig:"SETTLEMENT_PAYMENTS_MANUAL_UPLOAD_PATH" default:"/api/v1/payments/%s/proof"`
	ConfirmCacheTTL  time.Duration `envconfig:"SETTLEMENT_PAYMENTS_CONFIRM_CACHE_TTL" default:"24h"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"SETTLEMENT_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"SETTLEMENT_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"SETTLEMENT_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type GCPConfig struct {
	ProjectID string `envconfig:"SETTLEMENT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	SettlementTopic string `envconfig:"SETTLEMENT_PUBSUB_SETTLEMENT_TOPIC" default:"settlement-events"`
	// OrderingEnabled keys messages by aggregate id so each order, payout
	// and refund is delivered in emit order.
	OrderingEnabled bool `envconfig:"SETTLEMENT_PUBSUB_ORDERING_ENABLED" default:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SETTLEMENT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SETTLEMENT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SETTLEMENT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"SETTLEMENT_EVENTING_IDEMPOTENCY_TTL" default:"24h"`
}

type JobsConfig struct {
	Interval        time.Duration `envconfig:"SETTLEMENT_JOBS_INTERVAL" default:"5m"`
	PaymentExpiry   time.Duration `envconfig:"SETTLEMENT_JOBS_PAYMENT_EXPIRY" default:"30m"`
	ExpiryBatchSize int           `envconfig:"SETTLEMENT_JOBS_EXPIRY_BATCH_SIZE" default:"200"`
	OutboxRetention time.Duration `envconfig:"SETTLEMENT_JOBS_OUTBOX_RETENTION" default:"720h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
