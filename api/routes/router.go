package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/eventbook-backend/api/controllers"
	"github.com/angelmondragon/eventbook-backend/api/middleware"
	"github.com/angelmondragon/eventbook-backend/pkg/config"
	"github.com/angelmondragon/eventbook-backend/pkg/enums"
	"github.com/angelmondragon/eventbook-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/eventbook-backend/pkg/redis"
)

// RedisStore is the redis surface the API middleware needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	pkgredis.Pinger
	middleware.WindowLimiter
}

type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    RedisStore
	Holds    controllers.HoldsService
	Bookings controllers.BookingsService
	Sweeper  controllers.SweepTrigger
	// Metrics defaults to the process-wide prometheus handler.
	Metrics http.Handler
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	view := controllers.HoldView{
		BucketPrefix: cfg.Holds.BucketPrefix,
		SystemOwner:  cfg.Holds.SystemOwner,
		Timeout:      cfg.Holds.Timeout,
	}
	metricsHandler := p.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Redis,
		}))
	})
	r.Handle("/metrics", metricsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.HTTPRateLimit))
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Route("/v1/holds", func(r chi.Router) {
			r.Get("/", controllers.HoldsList(p.Holds, view, logg))
			r.Post("/", controllers.HoldsPlace(p.Holds, view, logg))
			r.Delete("/{kind}/{date}/{shift}/{code}", controllers.HoldsCancel(p.Holds, logg))
		})

		r.Route("/v1/bookings", func(r chi.Router) {
			r.Post("/", controllers.BookingsCreate(p.Bookings, logg))
			r.Get("/{bookingId}", controllers.BookingsGet(p.Bookings, logg))
		})

		r.Route("/admin/v1", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.ActorRoleAdmin, logg))
			r.With(middleware.SweepRateLimit(cfg.SweepRateLimit, p.Redis, logg)).
				Post("/holds/sweep", controllers.AdminHoldsSweep(p.Sweeper, logg))
			r.Post("/holds/block", controllers.AdminHoldsBlock(p.Holds, view, logg))
			r.Delete("/holds/block/{kind}/{date}/{shift}/{code}", controllers.AdminHoldsUnblock(p.Holds, logg))
			r.Post("/bookings/{bookingId}/confirm", controllers.AdminBookingsConfirm(p.Bookings, logg))
		})
	})

	return r
}
