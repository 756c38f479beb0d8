package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// RedisStore is the slice of the Redis client the HTTP layer needs for
// readiness, rate limiting and idempotency.
type RedisStore interface {
	controllers.Pinger
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type WebhookGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisStore RedisStore,
	gatherer prometheus.Gatherer,
	cartService cart.Service,
	quoteService controllers.QuoteService,
	checkoutService controllers.CheckoutService,
	customers ordercontrollers.CustomerLookup,
	ordersSvc ordercontrollers.OrderReader,
	razorpayWebhookService webhookcontrollers.RazorpayWebhookService,
	webhookGuard WebhookGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	quotePolicy := middleware.NewRateLimitPolicy(
		"quote",
		cfg.Quotes.RateLimitWindow,
		cfg.Quotes.RateLimit,
	)
	idempotent := middleware.Idempotency(redisStore, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisStore))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/razorpay", webhookcontrollers.RazorpayWebhook(razorpayWebhookService, cfg.Razorpay.WebhookSecret, webhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Shopper(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(cartService, logg))
			r.Post("/items", cartcontrollers.CartAddItem(cartService, logg))
			r.Patch("/items/{variantId}", cartcontrollers.CartUpdateItem(cartService, logg))
			r.Delete("/items/{variantId}", cartcontrollers.CartRemoveItem(cartService, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.With(middleware.RateLimit(quotePolicy, redisStore, logg)).Post("/quote", controllers.CheckoutQuote(quoteService, logg))
			r.With(idempotent).Post("/orders", controllers.CheckoutPlaceOrder(checkoutService, logg))
			r.With(idempotent).Post("/orders/{orderId}/verify", controllers.CheckoutVerifyPayment(checkoutService, logg))
			r.Post("/orders/{orderId}/payment-failure", controllers.CheckoutPaymentFailure(checkoutService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(customers, ordersSvc, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(customers, ordersSvc, logg))
		})
	})

	return r
}
