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
	FeatureFlags FeatureFlagsConfig
	Pricing      PricingConfig
	Shipping     ShippingConfig
	Tax          TaxConfig
	Razorpay     RazorpayConfig
	Orders       OrdersConfig
	Cart         CartConfig
	Quotes       QuotesConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated allow list.
	CORSOrigins []string `envconfig:"STOREFRONT_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

// IsProd accepts both "prod" and "production".
func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig validates shopper tokens issued by the hosted identity provider.
type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

// PricingConfig holds amounts in paise.
type PricingConfig struct {
	Currency              string `envconfig:"STOREFRONT_PRICING_CURRENCY" default:"INR"`
	FreeShippingThreshold int64  `envconfig:"STOREFRONT_PRICING_FREE_SHIPPING_THRESHOLD" default:"99900"`
	FallbackShippingFee   int64  `envconfig:"STOREFRONT_PRICING_FALLBACK_SHIPPING_FEE" default:"9900"`
	CODMaxAmount          int64  `envconfig:"STOREFRONT_PRICING_COD_MAX_AMOUNT" default:"0"`
}

func (p PricingConfig) validate() error {
	if p.FreeShippingThreshold < 0 || p.FallbackShippingFee < 0 || p.CODMaxAmount < 0 {
		return fmt.Errorf("pricing amounts must not be negative")
	}
	if strings.TrimSpace(p.Currency) == "" {
		return fmt.Errorf("%s is required", EnvPricingCurrency)
	}
	return nil
}

type ShippingConfig struct {
	QuoteURL string        `envconfig:"STOREFRONT_SHIPPING_QUOTE_URL"`
	APIKey   string        `envconfig:"STOREFRONT_SHIPPING_API_KEY"`
	Timeout  time.Duration `envconfig:"STOREFRONT_SHIPPING_TIMEOUT" default:"10s"`
	Breaker  BreakerConfig `envconfig:"BREAKER"`
}

type TaxConfig struct {
	QuoteURL       string        `envconfig:"STOREFRONT_TAX_QUOTE_URL"`
	APIKey         string        `envconfig:"STOREFRONT_TAX_API_KEY"`
	Timeout        time.Duration `envconfig:"STOREFRONT_TAX_TIMEOUT" default:"10s"`
	OriginState    string        `envconfig:"STOREFRONT_TAX_ORIGIN_STATE" default:"Maharashtra"`
	GSTRatePercent string        `envconfig:"STOREFRONT_TAX_GST_RATE" default:"18"`
	PriceInclusive bool          `envconfig:"STOREFRONT_TAX_PRICE_INCLUSIVE" default:"true"`
	Breaker        BreakerConfig `envconfig:"BREAKER"`
}

// BreakerConfig tunes the circuit breakers guarding the quote collaborators.
type BreakerConfig struct {
	MaxRequests      uint32        `envconfig:"MAX_REQUESTS" default:"1"`
	Interval         time.Duration `envconfig:"INTERVAL" default:"60s"`
	OpenTimeout      time.Duration `envconfig:"OPEN_TIMEOUT" default:"30s"`
	FailureThreshold uint32        `envconfig:"FAILURE_THRESHOLD" default:"5"`
}

type RazorpayConfig struct {
	KeyID         string `envconfig:"STOREFRONT_RAZORPAY_KEY_ID"`
	KeySecret     string `envconfig:"STOREFRONT_RAZORPAY_KEY_SECRET"`
	WebhookSecret string `envconfig:"STOREFRONT_RAZORPAY_WEBHOOK_SECRET"`
	BaseURL       string `envconfig:"STOREFRONT_RAZORPAY_BASE_URL" default:"https://api.razorpay.com"`
}

// Enabled reports whether online payments can be initiated.
func (r RazorpayConfig) Enabled() bool {
	return strings.TrimSpace(r.KeyID) != "" && strings.TrimSpace(r.KeySecret) != ""
}

type OrdersConfig struct {
	PendingTTL       time.Duration `envconfig:"STOREFRONT_ORDERS_PENDING_TTL" default:"30m"`
	SweepBatchSize   int           `envconfig:"STOREFRONT_ORDERS_SWEEP_BATCH_SIZE" default:"100"`
	SweepInterval    time.Duration `envconfig:"STOREFRONT_ORDERS_SWEEP_INTERVAL" default:"5m"`
	OutboxRetainDays int           `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CartConfig struct {
	TTL         time.Duration `envconfig:"STOREFRONT_CART_TTL" default:"720h"`
	MaxLines    int           `envconfig:"STOREFRONT_CART_MAX_LINES" default:"50"`
	MaxQuantity int           `envconfig:"STOREFRONT_CART_MAX_QUANTITY" default:"20"`
}

type QuotesConfig struct {
	SequenceTTL     time.Duration `envconfig:"STOREFRONT_QUOTES_SEQUENCE_TTL" default:"2h"`
	RateLimit       int           `envconfig:"STOREFRONT_QUOTES_RATE_LIMIT" default:"60"`
	RateLimitWindow time.Duration `envconfig:"STOREFRONT_QUOTES_RATE_LIMIT_WINDOW" default:"1m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"sf-order-events"`
	OrdersSubscription string `envconfig:"STOREFRONT_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
