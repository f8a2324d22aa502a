package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/settlement-engine/api/controllers"
	"github.com/angelmondragon/settlement-engine/api/routes"
	"github.com/angelmondragon/settlement-engine/internal/catalog"
	"github.com/angelmondragon/settlement-engine/internal/coupons"
	"github.com/angelmondragon/settlement-engine/internal/ledger"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/internal/payments"
	"github.com/angelmondragon/settlement-engine/internal/payouts"
	"github.com/angelmondragon/settlement-engine/internal/pricing"
	"github.com/angelmondragon/settlement-engine/internal/refunds"
	stripewebhook "github.com/angelmondragon/settlement-engine/internal/webhooks/stripe"
	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
	"github.com/angelmondragon/settlement-engine/pkg/migrate"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
	"github.com/angelmondragon/settlement-engine/pkg/redis"
	"github.com/angelmondragon/settlement-engine/pkg/stripe"
)

const stripeWebhookScope = "stripe-webhook"

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
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, redisClient.Close())
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	settlementMetrics := metrics.NewSettlement(registry)
	httpMetrics := metrics.NewHTTP(registry)

	svc, err := buildServices(ctx, cfg, logg, dbClient, redisClient, settlementMetrics)
	if err != nil {
		return err
	}

	checks := []controllers.ReadyCheck{
		{Name: "db", Pinger: dbClient},
		{Name: "redis", Pinger: redisClient},
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, redisClient, checks, svc, httpMetrics, registry),
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildServices(
	ctx context.Context,
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	m *metrics.Settlement,
) (routes.Services, error) {
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	lookup := catalog.NewRepository(dbClient.DB())

	feeType, err := enums.ParsePlatformFeeType(cfg.Pricing.PlatformFeeType)
	if err != nil {
		return routes.Services{}, err
	}
	engine, err := pricing.NewEngine(pricing.Rules{
		TaxRate: cfg.Pricing.TaxRateDecimal(),
		PlatformFee: pricing.FeeRule{
			Type:  feeType,
			Value: cfg.Pricing.PlatformFeeDecimal(),
		},
	})
	if err != nil {
		return routes.Services{}, err
	}

	couponSvc, err := coupons.NewService(coupons.NewRepository(dbClient.DB()))
	if err != nil {
		return routes.Services{}, err
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient, logg, m)
	if err != nil {
		return routes.Services{}, err
	}

	ordersSvc, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		dbClient,
		emitter,
		lookup,
		couponSvc,
		engine,
		cfg.Pricing.Currency,
		logg,
		m,
	)
	if err != nil {
		return routes.Services{}, err
	}

	var stripeClient *stripe.Client
	if cfg.Stripe.APIKey != "" || cfg.App.IsProd() {
		stripeClient, err = stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return routes.Services{}, err
		}
	} else {
		logg.Warn(ctx, "stripe not configured, card and redirect payments disabled")
	}

	gateways, err := buildGateways(cfg, stripeClient)
	if err != nil {
		return routes.Services{}, err
	}

	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Ledger:         ledgerSvc,
		Orders:         ordersSvc,
		Coupons:        couponSvc,
		Gateways:       gateways,
		Outbox:         emitter,
		Tx:             dbClient,
		CommissionRate: cfg.Pricing.CommissionRateDecimal(),
		Cache:          redisClient,
		CacheTTL:       cfg.Payments.ConfirmCacheTTL,
		Logger:         logg,
		Metrics:        m,
	})
	if err != nil {
		return routes.Services{}, err
	}

	refundsSvc, err := refunds.NewService(
		refunds.NewRepository(dbClient.DB()),
		dbClient,
		ledgerSvc,
		ordersSvc,
		paymentsSvc,
		emitter,
		logg,
		m,
	)
	if err != nil {
		return routes.Services{}, err
	}

	payoutsSvc, err := payouts.NewService(
		payouts.NewRepository(dbClient.DB()),
		dbClient,
		ledgerSvc,
		emitter,
		cfg.Pricing.Currency,
		logg,
		m,
	)
	if err != nil {
		return routes.Services{}, err
	}

	services := routes.Services{
		Orders:   ordersSvc,
		Payments: paymentsSvc,
		Refunds:  refundsSvc,
		Payouts:  payoutsSvc,
		Ledger:   ledgerSvc,
		Coupons:  couponSvc,
		Catalog:  lookup,
		Pricing:  engine,
	}

	if stripeClient != nil {
		webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{Payments: paymentsSvc, Logger: logg})
		if err != nil {
			return routes.Services{}, err
		}
		guard, err := stripewebhook.NewDeliveryGuard(redisClient, cfg.Eventing.IdempotencyTTL, stripeWebhookScope)
		if err != nil {
			return routes.Services{}, err
		}
		services.StripeWebhook = webhookSvc
		services.StripeSigner = stripeClient
		services.StripeGuard = guard
	}
	return services, nil
}

func buildGateways(cfg *config.Config, stripeClient *stripe.Client) (*payments.Registry, error) {
	var gateways []payments.Gateway
	if stripeClient != nil {
		redirect, err := payments.NewRedirectGateway(stripeClient, cfg.Payments.SuccessURL, cfg.Payments.CancelURL)
		if err != nil {
			return nil, err
		}
		card, err := payments.NewCardGateway(stripeClient)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, redirect, card)
	}
	if cfg.FeatureFlags.AllowManual {
		manual, err := payments.NewManualGateway(cfg.Payments.ManualUploadPath)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, manual)
	}
	return payments.NewRegistry(gateways...)
}
