package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stagelyhq/stagely-backend/internal/creditsync"
	"github.com/stagelyhq/stagely-backend/internal/cron"
	"github.com/stagelyhq/stagely-backend/internal/entitlements"
	"github.com/stagelyhq/stagely-backend/internal/plans"
	"github.com/stagelyhq/stagely-backend/pkg/config"
	"github.com/stagelyhq/stagely-backend/pkg/db"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
	"github.com/stagelyhq/stagely-backend/pkg/metrics"
	"github.com/stagelyhq/stagely-backend/pkg/migrate"
	"github.com/stagelyhq/stagely-backend/pkg/redis"
)

const lockKeyFormat = "sg:sync-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "sync-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sync-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
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

	billingMetrics := metrics.NewBillingMetrics(prometheus.DefaultRegisterer)
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

	creditSyncJob, err := cron.NewCreditSyncJob(cron.CreditSyncJobParams{
		Logger:       logg,
		Synchronizer: synchronizer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create credit sync job", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewEntitlementExpiryJob(cron.EntitlementExpiryJobParams{
		Logger:  logg,
		Primary: primaryRepo,
		Engine:  engine,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement expiry job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Sync.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sync lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(creditSyncJob, expiryJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Sync.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sync worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sync worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sync worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
