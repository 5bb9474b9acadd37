// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, identity, idempotency, and rate
// limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-coin-ledger/internal/config"
	"github.com/tbourn/go-coin-ledger/internal/docs"
	"github.com/tbourn/go-coin-ledger/internal/http/handlers"
	"github.com/tbourn/go-coin-ledger/internal/http/middleware"
	"github.com/tbourn/go-coin-ledger/internal/observability"
	"github.com/tbourn/go-coin-ledger/internal/repo"
	"github.com/tbourn/go-coin-ledger/internal/services"
)

// Services bundles the application services mounted by RegisterRoutes.
type Services struct {
	Coins    *services.CoinService
	Threads  *services.ThreadService
	Answers  *services.AnswerService
	Rewards  *services.RewardService
	Profiles *services.ProfileService
}

// NewServices builds the services from configuration. events and ranking are
// optional collaborators; nil disables them.
func NewServices(db *gorm.DB, cfg config.Config, events services.EventPublisher, ranking services.RankingCache) Services {
	retry := services.RetryPolicy{
		MaxAttempts: cfg.Coins.TxMaxAttempts,
		BaseDelay:   cfg.Coins.TxBackoffBase,
		MaxDelay:    cfg.Coins.TxBackoffMax,
	}
	coins := &services.CoinService{
		DB:          db,
		DailyBonus:  cfg.Coins.DailyBonus,
		SignupBonus: cfg.Coins.SignupBonus,
		Retry:       retry,
		Events:      events,
		RankCache:   ranking,
	}
	return Services{
		Coins: coins,
		Threads: &services.ThreadService{
			DB:              db,
			Coins:           coins,
			Fees:            services.FeePolicy{Mode: services.ParseFeeMode(cfg.Coins.FeeMode), Value: cfg.Coins.FeeValue},
			MinStake:        cfg.Coins.MinStake,
			MaxContentRunes: cfg.Coins.MaxContent,
			ExpiryGrace:     cfg.Coins.ExpiryGrace,
			Retry:           retry,
		},
		Answers:  &services.AnswerService{DB: db, MaxContentRunes: cfg.Coins.MaxContent, Retry: retry},
		Rewards:  &services.RewardService{DB: db, Coins: coins, Retry: retry},
		Profiles: &services.ProfileService{DB: db, Coins: coins, Retry: retry},
	}
}

// idempotencyStore adapts the repository to middleware.IdempotencyStore.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func (s idempotencyStore) Lookup(ctx context.Context, userID, scope, key string, now time.Time) (*middleware.StoredResponse, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
	if repo.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &middleware.StoredResponse{Status: rec.Status, Body: rec.Body}, nil
}

func (s idempotencyStore) Save(ctx context.Context, userID, scope, key string, resp middleware.StoredResponse) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resp.Status, resp.Body, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent retry stored it first.
		return nil
	}
	return err
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip, CORS and security headers
//  8. Identify: resolve the caller (JWT or development headers)
//  9. Idempotency (after Identify so records are per user)
//  10. Rate limiter (read/write tiers per user or IP, bypass on replay)
func RegisterRoutes(r *gin.Engine, db *gorm.DB, svc Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(observability.ServiceName(cfg.OTEL)))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression, CORS, security headers
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	useCORS(r, cfg.CORS.AllowedOrigins)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		PrivatePrefixes: []string{
			joinPath(cfg.APIBasePath, "/coins"),
			joinPath(cfg.APIBasePath, "/admin"),
			joinPath(cfg.APIBasePath, "/me"),
		},
		EnablePolicy: true,
	}))

	// 8-10) Identity, idempotency, rate limit
	r.Use(middleware.Identify(middleware.IdentityOptions{JWTSecret: cfg.Auth.JWTSecret}))
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		idempotencyStore{db: db, ttl: cfg.IdempotencyTTL},
	))
	rl := middleware.NewRateLimiter(middleware.RateOptions{
		RPS:        cfg.RateRPS,
		Burst:      cfg.RateBurst,
		WriteRPS:   cfg.RateWriteRPS,
		WriteBurst: cfg.RateWriteBurst,
	})
	r.Use(rl.Handler())

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc.Threads, svc.Answers, svc.Rewards, svc.Coins, svc.Profiles)
	auth := middleware.RequireUser(svc.Profiles)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Threads
		api.GET("/threads", h.ListThreads)
		api.GET("/threads/:id", h.GetThread)
		api.GET("/threads/:id/answers", h.ListAnswers)
		api.POST("/threads", auth, h.CreateThread)
		api.PATCH("/threads/:id", auth, h.UpdateThread)
		api.DELETE("/threads/:id", auth, h.DeleteThread)

		// Answers & likes
		api.POST("/answers", auth, h.CreateAnswer)
		api.PATCH("/answers/:id/best", auth, h.SelectBestAnswer)
		api.DELETE("/answers/:id", auth, h.DeleteAnswer)
		api.POST("/answers/:id/like", auth, h.LikeAnswer)
		api.DELETE("/answers/:id/like", auth, h.UnlikeAnswer)

		// Coins
		api.GET("/coins/ranking", h.Ranking)
		api.GET("/coins/balance", auth, h.GetBalance)
		api.POST("/coins/daily-claim", auth, h.ClaimDaily)
		api.GET("/coins/events", auth, h.ListCoinEvents)
		api.POST("/admin/coins/adjust", auth, h.AdminAdjust)

		api.GET("/me", auth, h.Me)
	}
}

// useCORS installs gin-contrib/cors. With no allowlist every origin is
// allowed (credentials off); otherwise only listed origins are echoed.
func useCORS(r *gin.Engine, origins []string) {
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderUserID, middleware.HeaderUserName, middleware.HeaderUserAdmin, middleware.HeaderUserBanned,
		middleware.HeaderIdempotencyKey, "If-None-Match",
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(origins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
		return
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     methods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    exposeHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath prefixes p with the API base path, treating "/" as root.
func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return strings.TrimSuffix(base, "/") + p
}
