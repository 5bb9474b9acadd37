// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, the database and its drivers, coin economics, rate limiting and
// observability settings.
package config

import (
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-coin-ledger")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// LogFileConfig defines the optional rolling log file.
type LogFileConfig struct {
	Path       string // LOG_FILE (empty = stdout only)
	MaxSizeMB  int    // LOG_MAX_SIZE_MB
	MaxBackups int    // LOG_MAX_BACKUPS
	MaxAgeDays int    // LOG_MAX_AGE_DAYS
	Compress   bool   // LOG_COMPRESS
}

// DBConfig selects the SQL driver and connection.
type DBConfig struct {
	Driver       string // sqlite|postgres|mysql
	DSN          string // postgres/mysql DSN
	Path         string // SQLite path
	MaxOpenConns int
	Tracing      bool // GORM OpenTelemetry plugin
}

// CoinConfig holds the coin economy parameters.
type CoinConfig struct {
	DailyBonus  int64
	SignupBonus int64
	MinStake    int64
	FeeMode     string // percent|flat
	FeeValue    int64
	MaxContent  int // max runes of thread/answer content

	TxMaxAttempts int
	TxBackoffBase time.Duration
	TxBackoffMax  time.Duration

	ExpiryGrace   time.Duration // after deadline before an unresolved stake is refunded
	SweepInterval time.Duration
}

// RedisConfig enables the ranking cache when Addr is set.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	RankingTTL time.Duration
}

// KafkaConfig enables ledger event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// AuthConfig configures caller identity.
type AuthConfig struct {
	JWTSecret string // HS256 secret; empty = development identity headers
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	LogFile        LogFileConfig
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DB DBConfig

	// Coins
	Coins CoinConfig

	// Optional collaborators
	Redis RedisConfig
	Kafka KafkaConfig
	Auth  AuthConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)
	// Separate bucket for unsafe methods; 0 uses the read limits.
	RateWriteRPS   float64
	RateWriteBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults and
// aliases, and validates the result. Every invalid setting is reported in the
// returned error, not just the first.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		LogFile: LogFileConfig{
			Path:       getenv("LOG_FILE", ""),
			MaxSizeMB:  getint("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getint("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getint("LOG_MAX_AGE_DAYS", 30),
			Compress:   getbool("LOG_COMPRESS", true),
		},
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DB: DBConfig{
			Driver:       strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			DSN:          getenv("DB_DSN", ""),
			Path:         getenv("DB_PATH", "app.db"),
			MaxOpenConns: getint("DB_MAX_OPEN_CONNS", 10),
			Tracing:      getbool("DB_TRACING", false),
		},

		// Coins
		Coins: CoinConfig{
			DailyBonus:    getint64("COIN_DAILY_BONUS", 20),
			SignupBonus:   getint64("COIN_SIGNUP_BONUS", 100),
			MinStake:      getint64("COIN_MIN_STAKE", 1),
			FeeMode:       strings.ToLower(getenv("COIN_FEE_MODE", "percent")),
			FeeValue:      getint64("COIN_FEE_VALUE", 10),
			MaxContent:    getint("MAX_CONTENT_RUNES", 20000),
			TxMaxAttempts: getint("TX_MAX_ATTEMPTS", 5),
			TxBackoffBase: getdur("TX_BACKOFF_BASE", 10*time.Millisecond),
			TxBackoffMax:  getdur("TX_BACKOFF_MAX", 250*time.Millisecond),
			ExpiryGrace:   getdur("THREAD_EXPIRY_GRACE", 72*time.Hour),
			SweepInterval: getdur("SWEEP_INTERVAL", 5*time.Minute),
		},

		Redis: RedisConfig{
			Addr:       getenv("REDIS_ADDR", ""),
			Password:   getenv("REDIS_PASSWORD", ""),
			DB:         getint("REDIS_DB", 0),
			RankingTTL: getdur("RANKING_CACHE_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitCSV(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_TOPIC", "coin-ledger-events"),
		},
		Auth: AuthConfig{
			JWTSecret: getenv("JWT_SECRET", ""),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		RateWriteRPS:   getfloat("RATE_WRITE_RPS", 2.0),
		RateWriteBurst: getint("RATE_WRITE_BURST", 5),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-coin-ledger"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	cfg.normalize()
	return cfg, cfg.validate()
}
