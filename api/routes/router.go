package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/settlement-engine/api/controllers"
	couponcontrollers "github.com/angelmondragon/settlement-engine/api/controllers/coupons"
	ordercontrollers "github.com/angelmondragon/settlement-engine/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/settlement-engine/api/controllers/payments"
	payoutcontrollers "github.com/angelmondragon/settlement-engine/api/controllers/payouts"
	refundcontrollers "github.com/angelmondragon/settlement-engine/api/controllers/refunds"
	transactioncontrollers "github.com/angelmondragon/settlement-engine/api/controllers/transactions"
	webhookcontrollers "github.com/angelmondragon/settlement-engine/api/controllers/webhooks"
	"github.com/angelmondragon/settlement-engine/api/middleware"
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
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
	pkgredis "github.com/angelmondragon/settlement-engine/pkg/redis"
)

// Store backs the idempotency and rate limit middleware; *redis.Client
// satisfies it.
type Store interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

type quoter interface {
	Quote(req pricing.Request) (pricing.Breakdown, error)
}

type stripeSigner interface {
	SigningSecret() string
}

// Services are the domain services exposed over HTTP. The Stripe webhook is
// mounted only when StripeWebhook, StripeSigner and StripeGuard are all set.
type Services struct {
	Orders   orders.Service
	Payments payments.Service
	Refunds  refunds.Service
	Payouts  payouts.Service
	Ledger   ledger.Service
	Coupons  coupons.Service
	Catalog  catalog.Lookup
	Pricing  quoter

	StripeWebhook *stripewebhook.Service
	StripeSigner  stripeSigner
	StripeGuard   *stripewebhook.DeliveryGuard
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	store Store,
	checks []controllers.ReadyCheck,
	svc Services,
	httpMetrics *metrics.HTTP,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	mutationPolicy := middleware.NewRateLimitPolicy("mutations", cfg.HTTP.RateLimitWindow, cfg.HTTP.RateLimitPerActor)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks...))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	if svc.StripeWebhook != nil && svc.StripeSigner != nil && svc.StripeGuard != nil {
		r.Post("/api/v1/webhooks/stripe", webhookcontrollers.StripeWebhook(svc.StripeWebhook, svc.StripeSigner, svc.StripeGuard, logg))
	}

	customer := middleware.RequireRole(logg, enums.RoleCustomer)
	vendorOrOperator := middleware.RequireRole(logg, enums.RoleVendor, enums.RoleAdmin, enums.RoleSystem)
	trusted := middleware.RequireRole(logg, enums.RoleAdmin, enums.RoleSystem)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		r.Use(middleware.RateLimit(mutationPolicy, store, logg))
		r.Use(middleware.Idempotency(store, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(customer).Post("/", ordercontrollers.Create(svc.Orders, logg))
			r.Get("/", ordercontrollers.List(svc.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(svc.Orders, logg))
				r.Post("/transitions", ordercontrollers.Transition(svc.Orders, logg))
				r.Post("/archive", ordercontrollers.Archive(svc.Orders, logg))
				r.With(customer).Post("/payments", paymentcontrollers.Initiate(svc.Payments, logg))
				r.Post("/refunds", refundcontrollers.Request(svc.Refunds, logg))
				r.Get("/refunds", refundcontrollers.ListByOrder(svc.Refunds, svc.Orders, logg))
				r.Get("/transactions", transactioncontrollers.ListByOrder(svc.Ledger, svc.Orders, logg))
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/methods", paymentcontrollers.Methods(svc.Payments, logg))
			r.With(trusted).Post("/confirm", paymentcontrollers.Confirm(svc.Payments, logg))
			r.With(customer).Post("/{reference}/proof", paymentcontrollers.SubmitProof(svc.Payments, logg))
		})

		r.Route("/vendors/{vendorId}", func(r chi.Router) {
			r.Use(vendorOrOperator)
			r.Get("/balance", payoutcontrollers.Balance(svc.Ledger, logg))
			r.Get("/payouts", payoutcontrollers.ListByVendor(svc.Payouts, logg))
			r.Post("/payouts", payoutcontrollers.Request(svc.Payouts, logg))
		})

		r.Get("/transactions/{transactionId}", transactioncontrollers.Get(svc.Ledger, svc.Orders, logg))
		r.With(customer).Post("/coupons/validate", couponcontrollers.Validate(svc.Coupons, svc.Catalog, svc.Pricing, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
			r.Post("/payments/{reference}/review", paymentcontrollers.Review(svc.Payments, logg))
			r.Route("/refunds/{refundId}", func(r chi.Router) {
				r.Post("/approve", refundcontrollers.Approve(svc.Refunds, logg))
				r.Post("/reject", refundcontrollers.Reject(svc.Refunds, logg))
				r.Post("/process", refundcontrollers.Process(svc.Refunds, logg))
			})
			r.Route("/payouts", func(r chi.Router) {
				r.Get("/", payoutcontrollers.ListPending(svc.Payouts, logg))
				r.Post("/approve-batch", payoutcontrollers.ApproveBatch(svc.Payouts, logg))
				r.Post("/{payoutId}/approve", payoutcontrollers.Approve(svc.Payouts, logg))
				r.Post("/{payoutId}/reject", payoutcontrollers.Reject(svc.Payouts, logg))
			})
			r.Get("/transactions", transactioncontrollers.List(svc.Ledger, logg))
			r.Route("/coupons", func(r chi.Router) {
				r.Post("/", couponcontrollers.Create(svc.Coupons, logg))
				r.Get("/{code}", couponcontrollers.Get(svc.Coupons, logg))
				r.Post("/{code}/active", couponcontrollers.SetActive(svc.Coupons, logg))
			})
		})
	})

	return r
}
