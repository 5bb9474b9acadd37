package config

import (
	"errors"
	"fmt"
	"strings"
)

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	switch c.DB.Driver {
	case "postgresql", "pg":
		c.DB.Driver = "postgres"
	case "sqlite3":
		c.DB.Driver = "sqlite"
	}
}

// validate reports every invalid setting, joined.
func (c Config) validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		check(false, "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	if c.LogFile.Path != "" {
		check(c.LogFile.MaxSizeMB >= 1 && c.LogFile.MaxBackups >= 0 && c.LogFile.MaxAgeDays >= 0,
			"LOG_MAX_SIZE_MB must be >= 1; LOG_MAX_BACKUPS and LOG_MAX_AGE_DAYS must be >= 0")
	}

	switch c.DB.Driver {
	case "sqlite":
		check(strings.TrimSpace(c.DB.Path) != "", "DB_PATH must not be empty")
	case "postgres", "mysql":
		check(strings.TrimSpace(c.DB.DSN) != "", "DB_DSN is required for DB_DRIVER=%s", c.DB.Driver)
	default:
		check(false, "DB_DRIVER must be one of: sqlite, postgres, mysql")
	}
	check(c.DB.MaxOpenConns >= 1, "DB_MAX_OPEN_CONNS must be >= 1")

	coins := c.Coins
	check(coins.DailyBonus >= 0 && coins.SignupBonus >= 0, "COIN_DAILY_BONUS and COIN_SIGNUP_BONUS must be >= 0")
	check(coins.MinStake >= 0, "COIN_MIN_STAKE must be >= 0")
	switch coins.FeeMode {
	case "percent":
		check(coins.FeeValue >= 0 && coins.FeeValue <= 100, "COIN_FEE_VALUE must be in [0,100] for percent mode")
	case "flat":
		check(coins.FeeValue >= 0, "COIN_FEE_VALUE must be >= 0")
	default:
		check(false, "COIN_FEE_MODE must be one of: percent, flat")
	}
	check(coins.MaxContent >= 1, "MAX_CONTENT_RUNES must be >= 1")
	check(coins.TxMaxAttempts >= 1, "TX_MAX_ATTEMPTS must be >= 1")
	check(coins.TxBackoffBase > 0 && coins.TxBackoffMax >= coins.TxBackoffBase,
		"TX_BACKOFF_BASE must be > 0 and <= TX_BACKOFF_MAX")
	check(coins.ExpiryGrace >= 0, "THREAD_EXPIRY_GRACE must be >= 0")
	check(coins.SweepInterval > 0, "SWEEP_INTERVAL must be > 0")

	if len(c.Kafka.Brokers) > 0 {
		check(strings.TrimSpace(c.Kafka.Topic) != "", "KAFKA_TOPIC must not be empty when KAFKA_BROKERS is set")
	}
	check(c.Redis.RankingTTL > 0, "RANKING_CACHE_TTL must be > 0")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.RateWriteRPS >= 0 && c.RateWriteBurst >= 0, "RATE_WRITE_RPS and RATE_WRITE_BURST must be >= 0")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}
