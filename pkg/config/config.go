package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	Service        ServiceConfig
	DB             DBConfig
	Redis          RedisConfig
	JWT            JWTConfig
	FeatureFlags   FeatureFlagsConfig
	Holds          HoldsConfig
	SweepRateLimit SweepRateLimitConfig
	HTTPRateLimit  HTTPRateLimitConfig
	Supervisor     SupervisorConfig
	GCP            GCPConfig
	PubSub         PubSubConfig
	Outbox         OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Holds.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EVENTBOOK_APP_ENV" required:"true"`
	Port         string `envconfig:"EVENTBOOK_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"EVENTBOOK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"EVENTBOOK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"EVENTBOOK_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"EVENTBOOK_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var origins []string
	for _, part := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

type ServiceConfig struct {
	Kind string `envconfig:"EVENTBOOK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EVENTBOOK_DB_DSN"`
	Driver string `envconfig:"EVENTBOOK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EVENTBOOK_DB_HOST"`
	LegacyPort     int    `envconfig:"EVENTBOOK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EVENTBOOK_DB_USER"`
	LegacyPassword string `envconfig:"EVENTBOOK_DB_PASSWORD"`
	LegacyName     string `envconfig:"EVENTBOOK_DB_NAME"`
	LegacySSLMode  string `envconfig:"EVENTBOOK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EVENTBOOK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EVENTBOOK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EVENTBOOK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EVENTBOOK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"EVENTBOOK_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EVENTBOOK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EVENTBOOK_REDIS_ADDR"`
	Password     string        `envconfig:"EVENTBOOK_REDIS_PASSWORD"`
	DB           int           `envconfig:"EVENTBOOK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EVENTBOOK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EVENTBOOK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EVENTBOOK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EVENTBOOK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EVENTBOOK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig validates access tokens issued by the external identity provider.
type JWTConfig struct {
	Secret            string `envconfig:"EVENTBOOK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"EVENTBOOK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"EVENTBOOK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"EVENTBOOK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"EVENTBOOK_AUTO_MIGRATE" default:"false"`
}

// HoldsConfig drives hold placement and the expiry sweeper.
type HoldsConfig struct {
	Timeout          time.Duration `envconfig:"EVENTBOOK_HOLDS_TIMEOUT" default:"15m"`
	SweepInterval    time.Duration `envconfig:"EVENTBOOK_HOLDS_SWEEP_INTERVAL" default:"1m"`
	AutoSweep        bool          `envconfig:"EVENTBOOK_HOLDS_AUTO_SWEEP" default:"false"`
	SystemOwner      string        `envconfig:"EVENTBOOK_HOLDS_SYSTEM_OWNER" default:"system"`
	SweepConcurrency int           `envconfig:"EVENTBOOK_HOLDS_SWEEP_CONCURRENCY" default:"4"`
	LockTTL          time.Duration `envconfig:"EVENTBOOK_HOLDS_LOCK_TTL" default:"5m"`
	BucketPrefix     string        `envconfig:"EVENTBOOK_HOLDS_BUCKET_PREFIX" default:""`

	BreakerMaxFailures uint32        `envconfig:"EVENTBOOK_HOLDS_BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"EVENTBOOK_HOLDS_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

// Validate rejects settings that would make the sweeper unsafe.
func (h HoldsConfig) Validate() error {
	if h.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvHoldsTimeout)
	}
	if h.AutoSweep && h.SweepInterval <= 0 {
		return fmt.Errorf("%s must be positive when auto sweep is enabled", EnvHoldsSweepInterval)
	}
	if strings.TrimSpace(h.SystemOwner) == "" {
		return fmt.Errorf("%s must not be empty", EnvHoldsSystemOwner)
	}
	if h.SweepConcurrency < 0 {
		return fmt.Errorf("%s must not be negative", EnvHoldsSweepConcurrency)
	}
	return nil
}

// SweepRateLimitConfig throttles the manual sweep trigger per admin.
type SweepRateLimitConfig struct {
	Window time.Duration `envconfig:"EVENTBOOK_SWEEP_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"EVENTBOOK_SWEEP_RATE_LIMIT" default:"6"`
}

// HTTPRateLimitConfig is the per-IP limit applied to the public API.
type HTTPRateLimitConfig struct {
	Requests int           `envconfig:"EVENTBOOK_HTTP_RATE_LIMIT_REQUESTS" default:"120"`
	Window   time.Duration `envconfig:"EVENTBOOK_HTTP_RATE_LIMIT_WINDOW" default:"1m"`
	Disabled bool          `envconfig:"EVENTBOOK_HTTP_RATE_LIMIT_DISABLED" default:"false"`
}

type SupervisorConfig struct {
	FailureThreshold float64       `envconfig:"EVENTBOOK_SUPERVISOR_FAILURE_THRESHOLD" default:"5"`
	FailureDecay     float64       `envconfig:"EVENTBOOK_SUPERVISOR_FAILURE_DECAY" default:"30"`
	FailureBackoff   time.Duration `envconfig:"EVENTBOOK_SUPERVISOR_FAILURE_BACKOFF" default:"15s"`
	ShutdownTimeout  time.Duration `envconfig:"EVENTBOOK_SUPERVISOR_SHUTDOWN_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"EVENTBOOK_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	HoldsTopic    string `envconfig:"EVENTBOOK_PUBSUB_HOLDS_TOPIC" default:"eventbook-hold-events"`
	BookingsTopic string `envconfig:"EVENTBOOK_PUBSUB_BOOKINGS_TOPIC" default:"eventbook-booking-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"EVENTBOOK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"EVENTBOOK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"EVENTBOOK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"EVENTBOOK_OUTBOX_RETENTION_DAYS" default:"30"`
	PurgeBatchSize int `envconfig:"EVENTBOOK_OUTBOX_PURGE_BATCH_SIZE" default:"500"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, "sqlite") {
		db.DSN = "file:eventbook.db?cache=shared"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
