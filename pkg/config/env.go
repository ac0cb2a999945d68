package config

// EnvPrefix is passed to envconfig; every field carries its full variable name.
const EnvPrefix = "PACKFINDERZ"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "PACKFINDERZ_APP_ENV"
	EnvLogLevel = "PACKFINDERZ_LOG_LEVEL"

	EnvDBDSN  = "PACKFINDERZ_DB_DSN"
	EnvDBHost = "PACKFINDERZ_DB_HOST"
	EnvDBUser = "PACKFINDERZ_DB_USER"
	EnvDBName = "PACKFINDERZ_DB_NAME"

	EnvRedisURL = "PACKFINDERZ_REDIS_URL"

	EnvStockReservationTTL   = "PACKFINDERZ_STOCK_RESERVATION_TTL"
	EnvStockCleanupBatchSize = "PACKFINDERZ_STOCK_CLEANUP_BATCH_SIZE"

	EnvCronInterval = "PACKFINDERZ_CRON_INTERVAL"
	EnvKafkaBrokers = "PACKFINDERZ_KAFKA_BROKERS"
	EnvUseSQLite    = "PACKFINDERZ_USE_SQLITE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
