package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/eventbook-backend/internal/bookings"
	"github.com/angelmondragon/eventbook-backend/internal/cron"
	"github.com/angelmondragon/eventbook-backend/internal/holds"
	"github.com/angelmondragon/eventbook-backend/internal/supervisor"
	"github.com/angelmondragon/eventbook-backend/pkg/config"
	"github.com/angelmondragon/eventbook-backend/pkg/db"
	"github.com/angelmondragon/eventbook-backend/pkg/instance"
	"github.com/angelmondragon/eventbook-backend/pkg/logger"
	"github.com/angelmondragon/eventbook-backend/pkg/metrics"
	"github.com/angelmondragon/eventbook-backend/pkg/migrate"
	"github.com/angelmondragon/eventbook-backend/pkg/outbox"
	"github.com/angelmondragon/eventbook-backend/pkg/redis"
)

const (
	holdExpiryService      = "hold-expiry"
	outboxRetentionService = "outbox-retention"
	retentionInterval      = 24 * time.Hour
	retentionLockTTL       = time.Hour
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Instance:    instance.ID(),
		Format:      cfg.App.LogFormat,
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

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	sweepMetrics := metrics.NewHoldSweepMetrics(prometheus.DefaultRegisterer)

	outboxRepo := outbox.NewRepository(dbClient.DB())
	sweeper, err := holds.NewSweeper(holds.SweeperParams{
		Config:  cfg.Holds,
		Logger:  logg,
		Store:   holds.NewRepository(dbClient.DB()),
		Lookup:  bookings.NewRepository(dbClient.DB()),
		DB:      dbClient,
		Events:  outbox.NewService(outboxRepo, logg),
		Metrics: sweepMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create hold sweeper", err)
		os.Exit(1)
	}

	tree, err := supervisor.New("cron-worker", cfg.Supervisor, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build supervisor", err)
		os.Exit(1)
	}

	if cfg.Holds.AutoSweep {
		holdJob, err := cron.NewHoldExpiryJob(cron.HoldExpiryJobParams{Logger: logg, Sweeper: sweeper})
		if err != nil {
			logg.Error(context.Background(), "failed to create hold expiry job", err)
			os.Exit(1)
		}
		svc := mustCronService(logg, redisClient, cronMetrics, cfg.App.Env, holdExpiryService,
			cfg.Holds.SweepInterval, cfg.Holds.LockTTL, holdJob)
		tree.AddWorker(svc)
	} else {
		logg.Info(context.Background(), "automatic hold sweeps disabled; manual trigger only")
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outboxRepo,
		Retention:   cfg.Outbox.RetentionDays,
		MinAttempts: cfg.Outbox.MaxAttempts,
		BatchSize:   cfg.Outbox.PurgeBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	tree.AddWorker(mustCronService(logg, redisClient, cronMetrics, cfg.App.Env, outboxRetentionService,
		retentionInterval, retentionLockTTL, retentionJob))

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	tree.AddAPI(supervisor.NewHTTPService(server, cfg.Supervisor.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"autoSweep":   cfg.Holds.AutoSweep,
	})
	logg.Info(ctx, "starting cron worker")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// mustCronService builds one ticker service guarded by its own redis lock.
func mustCronService(logg *logger.Logger, redisClient *redis.Client, m *metrics.CronJobMetrics, env, name string, interval, lockTTL time.Duration, jobs ...cron.Job) *cron.Service {
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron", env, name), lockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}
	svc, err := cron.NewService(cron.ServiceParams{
		Name:     name,
		Logger:   logg,
		Registry: cron.NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  m,
		Interval: interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}
	return svc
}
