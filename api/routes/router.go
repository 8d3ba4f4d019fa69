package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stagelyhq/stagely-backend/api/controllers"
	billingcontrollers "github.com/stagelyhq/stagely-backend/api/controllers/billing"
	webhookcontrollers "github.com/stagelyhq/stagely-backend/api/controllers/webhooks"
	"github.com/stagelyhq/stagely-backend/api/middleware"
	"github.com/stagelyhq/stagely-backend/internal/cancellation"
	"github.com/stagelyhq/stagely-backend/internal/creditsync"
	"github.com/stagelyhq/stagely-backend/internal/entitlements"
	stripewebhook "github.com/stagelyhq/stagely-backend/internal/webhooks/stripe"
	"github.com/stagelyhq/stagely-backend/pkg/config"
	"github.com/stagelyhq/stagely-backend/pkg/db"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
	"github.com/stagelyhq/stagely-backend/pkg/redis"
	"github.com/stagelyhq/stagely-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
	cancelService *cancellation.Service,
	entitlementStore *entitlements.Store,
	entitlementEngine *entitlements.Engine,
	synchronizer *creditsync.Synchronizer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1/billing", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Post("/cancel", billingcontrollers.Cancel(cancelService, logg))
		r.Get("/entitlement", billingcontrollers.Entitlement(entitlementStore, entitlementEngine, logg))
	})

	r.Route("/api/admin/v1/billing", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))
		r.Post("/override", billingcontrollers.Override(entitlementEngine, logg))
		r.Post("/sync", billingcontrollers.Sync(synchronizer, logg))
	})

	return r
}
