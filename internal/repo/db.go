// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for the
// supported drivers (pure-Go SQLite, PostgreSQL, MySQL) and schema migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-coin-ledger/internal/domain"
)

// Options selects and tunes the database connection.
type Options struct {
	Driver string // sqlite|postgres|mysql
	DSN    string // postgres/mysql DSN
	Path   string // sqlite file path
	// MaxOpenConns caps the pool; <= 0 keeps the driver default.
	MaxOpenConns int
	// Tracing installs the OpenTelemetry GORM plugin.
	Tracing bool
	// LogLevel is the GORM logger level (silent|error|warn|info).
	LogLevel string
}

// UTCNow is the GORM clock. All timestamps are written in UTC so that string
// comparison in SQLite orders them correctly.
func UTCNow() time.Time { return time.Now().UTC() }

// Open connects to the configured driver and applies pool settings.
func Open(opt Options) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opt.Driver)) {
	case "", "sqlite":
		db, err = OpenSQLite(opt.Path)
	case "postgres", "postgresql":
		db, err = gorm.Open(postgres.Open(opt.DSN), gormConfig(opt.LogLevel))
	case "mysql":
		db, err = gorm.Open(mysql.Open(opt.DSN), gormConfig(opt.LogLevel))
	default:
		return nil, fmt.Errorf("unsupported DB driver %q", opt.Driver)
	}
	if err != nil {
		return nil, err
	}

	if opt.Tracing {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, err
		}
	}
	if opt.MaxOpenConns > 0 {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(opt.MaxOpenConns)
			sqlDB.SetMaxIdleConns(opt.MaxOpenConns)
		}
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig("warn"))
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

func gormConfig(level string) *gorm.Config {
	lvl := logger.Warn
	switch strings.ToLower(level) {
	case "silent":
		lvl = logger.Silent
	case "error":
		lvl = logger.Error
	case "info", "debug":
		lvl = logger.Info
	}
	return &gorm.Config{
		Logger:  logger.Default.LogMode(lvl),
		NowFunc: UTCNow,
	}
}

// AutoMigrate creates or updates the ledger schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Profile{},
		&domain.SubjectTag{},
		&domain.CoinAccount{},
		&domain.CoinEvent{},
		&domain.Thread{},
		&domain.Answer{},
		&domain.AnswerLike{},
		&domain.Idempotency{},
	)
}
