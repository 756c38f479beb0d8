package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv          = "STOREFRONT_APP_ENV"
	EnvPort            = "STOREFRONT_APP_PORT"
	EnvDBDSN           = "STOREFRONT_DB_DSN"
	EnvDBHost          = "STOREFRONT_DB_HOST"
	EnvDBUser          = "STOREFRONT_DB_USER"
	EnvDBName          = "STOREFRONT_DB_NAME"
	EnvRedisURL        = "STOREFRONT_REDIS_URL"
	EnvJWTSecret       = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer       = "STOREFRONT_JWT_ISSUER"
	EnvPricingCurrency = "STOREFRONT_PRICING_CURRENCY"
	EnvCODMaxAmount    = "STOREFRONT_PRICING_COD_MAX_AMOUNT"
	EnvPendingTTL      = "STOREFRONT_ORDERS_PENDING_TTL"
	EnvShippingBreaker = "STOREFRONT_SHIPPING_BREAKER_FAILURE_THRESHOLD"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
