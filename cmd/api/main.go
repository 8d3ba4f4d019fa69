package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stagelyhq/stagely-backend/api/routes"
	"github.com/stagelyhq/stagely-backend/internal/cancellation"
	"github.com/stagelyhq/stagely-backend/internal/creditsync"
	"github.com/stagelyhq/stagely-backend/internal/entitlements"
	"github.com/stagelyhq/stagely-backend/internal/identity"
	"github.com/stagelyhq/stagely-backend/internal/plans"
	"github.com/stagelyhq/stagely-backend/internal/subscriptions"
	stripewebhook "github.com/stagelyhq/stagely-backend/internal/webhooks/stripe"
	"github.com/stagelyhq/stagely-backend/pkg/config"
	"github.com/stagelyhq/stagely-backend/pkg/db"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
	"github.com/stagelyhq/stagely-backend/pkg/metrics"
	"github.com/stagelyhq/stagely-backend/pkg/migrate"
	"github.com/stagelyhq/stagely-backend/pkg/redis"
	"github.com/stagelyhq/stagely-backend/pkg/stripe"
)

const webhookIdempotencyTTL = 24 * time.Hour

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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	planResolver := plans.NewResolver(cfg.Plans, logg)
	primaryRepo := entitlements.NewPrimaryRepository(dbClient.DB())
	secondaryRepo := entitlements.NewSecondaryRepository(dbClient.DB())

	store, err := entitlements.NewStore(entitlements.StoreParams{
		Logger:    logg,
		Primary:   primaryRepo,
		Secondary: secondaryRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement store", err)
		os.Exit(1)
	}

	engine, err := entitlements.NewEngine(entitlements.EngineParams{
		Logger:   logg,
		Store:    store,
		Resolver: planResolver,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement engine", err)
		os.Exit(1)
	}

	identityResolver, err := identity.NewResolver(identity.ResolverParams{
		Logger:    logg,
		Primary:   primaryRepo,
		Secondary: secondaryRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create identity resolver", err)
		os.Exit(1)
	}

	billingMetrics := metrics.NewBillingMetrics(prometheus.DefaultRegisterer)
	subscriptionClient := subscriptions.NewStripeClient(stripeClient)

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Logger:       logg,
		Engine:       engine,
		Identity:     identityResolver,
		Plans:        planResolver,
		StripeClient: subscriptionClient,
		Metrics:      billingMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookIdempotencyTTL, "stripe")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	cancelService, err := cancellation.NewService(cancellation.ServiceParams{
		Logger:       logg,
		Store:        store,
		Engine:       engine,
		StripeClient: subscriptionClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cancellation service", err)
		os.Exit(1)
	}

	synchronizer, err := creditsync.NewSynchronizer(creditsync.SynchronizerParams{
		Logger:    logg,
		Primary:   primaryRepo,
		Secondary: secondaryRepo,
		Engine:    engine,
		Metrics:   billingMetrics,
		BatchSize: cfg.Sync.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create credit synchronizer", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			stripeClient,
			webhookService,
			webhookGuard,
			cancelService,
			store,
			engine,
			synchronizer,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
