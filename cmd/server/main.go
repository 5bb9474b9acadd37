// Command server runs the coin ledger HTTP API.
//
// @title                      Coin Ledger API
// @version                    1.0
// @description                Coin incentives for Q&A threads: stake escrow, best-answer rewards, daily bonus and likes.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-coin-ledger/internal/cache"
	"github.com/tbourn/go-coin-ledger/internal/config"
	"github.com/tbourn/go-coin-ledger/internal/events"
	httpapi "github.com/tbourn/go-coin-ledger/internal/http"
	"github.com/tbourn/go-coin-ledger/internal/observability"
	"github.com/tbourn/go-coin-ledger/internal/repo"
	"github.com/tbourn/go-coin-ledger/internal/services"
	"github.com/tbourn/go-coin-ledger/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real environment wins.
	_ = godotenv.Load()
	cfg := config.MustLoad()

	logger, logCloser := sysutil.NewLogger(sysutil.LogOptions{
		Level:      cfg.LogLevel,
		Pretty:     cfg.LogPretty,
		File:       cfg.LogFile.Path,
		MaxSizeMB:  cfg.LogFile.MaxSizeMB,
		MaxBackups: cfg.LogFile.MaxBackups,
		MaxAgeDays: cfg.LogFile.MaxAgeDays,
		Compress:   cfg.LogFile.Compress,
	})
	defer logCloser.Close()
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(repo.Options{
		Driver:       cfg.DB.Driver,
		DSN:          cfg.DB.DSN,
		Path:         cfg.DB.Path,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		Tracing:      cfg.DB.Tracing,
		LogLevel:     "warn",
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("automigrate")
	}

	var ranking services.RankingCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisClient(cache.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, ranking cache disabled")
			_ = rc.Close()
		} else {
			defer rc.Close()
			ranking = cache.NewRedisRanking(rc, cfg.Redis.RankingTTL)
		}
	}

	var publisher services.EventPublisher = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(events.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			log.Fatal().Err(err).Msg("kafka publisher")
		}
		defer kp.Close()
		publisher = kp
	}

	svc := httpapi.NewServices(db, cfg, publisher, ranking)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, svc, cfg)

	sweeper := &services.Sweeper{Threads: svc.Threads, DB: db, Interval: cfg.Coins.SweepInterval}
	go sweeper.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
