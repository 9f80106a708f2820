package config

const (
	EnvPrefix = "EVENTBOOK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "EVENTBOOK_APP_ENV"
	EnvPort      = "EVENTBOOK_APP_PORT"
	EnvDBDSN     = "EVENTBOOK_DB_DSN"
	EnvDBHost    = "EVENTBOOK_DB_HOST"
	EnvDBUser    = "EVENTBOOK_DB_USER"
	EnvDBName    = "EVENTBOOK_DB_NAME"
	EnvRedisURL  = "EVENTBOOK_REDIS_URL"
	EnvJWTSecret = "EVENTBOOK_JWT_SECRET"
	EnvJWTIssuer = "EVENTBOOK_JWT_ISSUER"
	EnvUseSQLite = "EVENTBOOK_USE_SQLITE"

	EnvHoldsTimeout          = "EVENTBOOK_HOLDS_TIMEOUT"
	EnvHoldsSweepInterval    = "EVENTBOOK_HOLDS_SWEEP_INTERVAL"
	EnvHoldsAutoSweep        = "EVENTBOOK_HOLDS_AUTO_SWEEP"
	EnvHoldsSystemOwner      = "EVENTBOOK_HOLDS_SYSTEM_OWNER"
	EnvHoldsSweepConcurrency = "EVENTBOOK_HOLDS_SWEEP_CONCURRENCY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
