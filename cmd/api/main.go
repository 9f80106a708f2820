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

	"github.com/angelmondragon/eventbook-backend/api/routes"
	"github.com/angelmondragon/eventbook-backend/internal/bookings"
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

	holdRepo := holds.NewRepository(dbClient.DB())
	bookingRepo := bookings.NewRepository(dbClient.DB())
	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	holdService, err := holds.NewService(holds.ServiceParams{
		Config: cfg.Holds,
		Logger: logg,
		Repo:   holdRepo,
		Lookup: bookingRepo,
		DB:     dbClient,
		Events: events,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create hold service", err)
		os.Exit(1)
	}

	bookingService, err := bookings.NewService(bookings.ServiceParams{
		Logger:   logg,
		Repo:     bookingRepo,
		HoldRepo: holdRepo,
		DB:       dbClient,
		Events:   events,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create booking service", err)
		os.Exit(1)
	}

	sweeper, err := holds.NewSweeper(holds.SweeperParams{
		Config:  cfg.Holds,
		Logger:  logg,
		Store:   holdRepo,
		Lookup:  bookingRepo,
		DB:      dbClient,
		Events:  events,
		Metrics: metrics.NewHoldSweepMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create hold sweeper", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Holds:    holdService,
			Bookings: bookingService,
			Sweeper:  sweeper,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	tree, err := supervisor.New("api", cfg.Supervisor, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build supervisor", err)
		os.Exit(1)
	}
	tree.AddAPI(supervisor.NewHTTPService(server, cfg.Supervisor.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
