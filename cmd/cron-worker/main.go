package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/settlement-engine/internal/cron"
	"github.com/angelmondragon/settlement-engine/internal/ledger"
	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
	"github.com/angelmondragon/settlement-engine/pkg/migrate"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
	"github.com/angelmondragon/settlement-engine/pkg/redis"
)

const (
	serviceKind   = "cron-worker"
	lockKeyFormat = "settle:jobs:lock:%s"
)

func main() {
	once := flag.Bool("once", false, "run the selected jobs a single time and exit")
	only := flag.String("jobs", "", "comma separated job names (default all)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"interval":    cfg.Jobs.Interval.String(),
	})

	err = run(ctx, cfg, logg, *once, splitNames(*only))
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logg.Info(ctx, "cron worker shut down")
	case errors.Is(err, cron.ErrLockHeld):
		logg.Warn(ctx, "another runner holds the job lock")
	default:
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, once bool, names []string) (err error) {
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

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient, logg, metrics.NewSettlement(prometheus.DefaultRegisterer))
	if err != nil {
		return err
	}

	stalePayments, err := cron.NewStalePaymentsJob(cron.StalePaymentsJobParams{
		Ledger:    ledgerSvc,
		Expiry:    cfg.Jobs.PaymentExpiry,
		BatchSize: cfg.Jobs.ExpiryBatchSize,
	})
	if err != nil {
		return err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Jobs.OutboxRetention,
	})
	if err != nil {
		return err
	}
	registry, err := cron.NewRegistry(stalePayments, outboxRetention)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 3*cfg.Jobs.Interval)
	if err != nil {
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewJobs(prometheus.DefaultRegisterer),
		Interval: cfg.Jobs.Interval,
	})
	if err != nil {
		return err
	}

	if once {
		logg.Info(ctx, "running jobs once")
		return service.RunOnce(ctx, names...)
	}
	if len(names) > 0 {
		return errors.New("-jobs requires -once")
	}
	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func splitNames(raw string) []string {
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
