package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/customers"
	"github.com/angelmondragon/storefront-backend/internal/discounts"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/quotes"
	razorpaywebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/razorpay"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-backend/pkg/razorpay"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/tax"
)

const (
	webhookDedupeTTL = 72 * time.Hour
	shutdownTimeout  = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	cartStore, err := cart.NewRedisStore(redisClient, cfg.Cart.TTL)
	if err != nil {
		fatal(logg, "failed to create cart store", err)
	}
	cartService, err := cart.NewService(cartStore, catalog.NewRepository(dbClient.DB()), cart.Limits{
		MaxLines:    cfg.Cart.MaxLines,
		MaxQuantity: cfg.Cart.MaxQuantity,
	})
	if err != nil {
		fatal(logg, "failed to create cart service", err)
	}

	discountService, err := discounts.NewService(discounts.NewRepository(dbClient.DB()))
	if err != nil {
		fatal(logg, "failed to create discount service", err)
	}

	pricerCfg := quotes.PricerConfig{
		Discounts: discountService,
		Rules: pricing.FallbackRules{
			FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
			FallbackFee:           cfg.Pricing.FallbackShippingFee,
		},
		PriceInclusive: cfg.Tax.PriceInclusive,
	}
	if cfg.Shipping.QuoteURL != "" {
		shippingClient, err := shipping.NewClient(cfg.Shipping.QuoteURL,
			shipping.WithAPIKey(cfg.Shipping.APIKey),
			shipping.WithTimeout(cfg.Shipping.Timeout),
			shipping.WithBreaker(cfg.Shipping.Breaker, logg),
		)
		if err != nil {
			fatal(logg, "failed to create shipping client", err)
		}
		pricerCfg.Shipping = shippingClient
	}
	if cfg.Tax.QuoteURL != "" {
		taxClient, err := tax.NewClient(cfg.Tax.QuoteURL,
			tax.WithAPIKey(cfg.Tax.APIKey),
			tax.WithTimeout(cfg.Tax.Timeout),
			tax.WithBreaker(cfg.Tax.Breaker, logg),
		)
		if err != nil {
			fatal(logg, "failed to create tax client", err)
		}
		pricerCfg.Tax = taxClient
	} else {
		localTax, err := tax.NewLocalEstimator(cfg.Tax.OriginState, cfg.Tax.GSTRatePercent)
		if err != nil {
			fatal(logg, "failed to create tax estimator", err)
		}
		pricerCfg.Tax = localTax
	}
	pricer, err := quotes.NewPricer(pricerCfg)
	if err != nil {
		fatal(logg, "failed to create pricer", err)
	}

	quoteGuard, err := quotes.NewRedisGuard(redisClient, cfg.Quotes.SequenceTTL)
	if err != nil {
		fatal(logg, "failed to create quote guard", err)
	}
	quoteService, err := quotes.NewService(quotes.ServiceParams{
		Cart:     cartService,
		Pricer:   pricer,
		Guard:    quoteGuard,
		Metrics:  checkoutMetrics,
		Logger:   logg,
		Currency: cfg.Pricing.Currency,
	})
	if err != nil {
		fatal(logg, "failed to create quote service", err)
	}

	customerService, err := customers.NewService(customers.NewRepository(dbClient.DB()))
	if err != nil {
		fatal(logg, "failed to create customer service", err)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(ordersRepo, outboxService, orders.WithCouponReleaser(discountService))
	if err != nil {
		fatal(logg, "failed to create orders service", err)
	}

	checkoutParams := checkout.Params{
		Tx:           dbClient,
		Cart:         cartService,
		CartStore:    cartStore,
		Pricer:       pricer,
		Customers:    customerService,
		Orders:       ordersRepo,
		OrderSvc:     ordersService,
		Discounts:    discountService,
		Outbox:       outboxService,
		Metrics:      checkoutMetrics,
		Logger:       logg,
		Currency:     cfg.Pricing.Currency,
		CODMaxAmount: cfg.Pricing.CODMaxAmount,
	}
	if cfg.Razorpay.Enabled() {
		rzpClient, err := razorpay.NewClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, razorpay.WithBaseURL(cfg.Razorpay.BaseURL))
		if err != nil {
			fatal(logg, "failed to create razorpay client", err)
		}
		gateway, err := payments.NewRazorpayGateway(rzpClient, cfg.Razorpay.KeySecret)
		if err != nil {
			fatal(logg, "failed to create payment gateway", err)
		}
		checkoutParams.Gateway = gateway
	} else {
		logg.Warn(context.Background(), "razorpay disabled, online checkout will be rejected")
	}
	checkoutService, err := checkout.NewService(checkoutParams)
	if err != nil {
		fatal(logg, "failed to create checkout service", err)
	}

	webhookService, err := razorpaywebhook.NewService(razorpaywebhook.ServiceParams{
		Intents:           ordersRepo,
		Orders:            ordersService,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		fatal(logg, "failed to create razorpay webhook service", err)
	}
	webhookGuard, err := idempotency.NewManager(redisClient, webhookDedupeTTL)
	if err != nil {
		fatal(logg, "failed to create webhook idempotency guard", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":              cfg.App.Env,
		"addr":             addr,
		"razorpay_enabled": cfg.Razorpay.Enabled(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			cartService,
			quoteService,
			checkoutService,
			customerService,
			ordersService,
			webhookService,
			webhookGuard,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}

func fatal(logg *logger.Logger, msg string, err error) {
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
