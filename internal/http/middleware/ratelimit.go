package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Rate tiers. Writes (anything that is not GET/HEAD/OPTIONS) may move coins
// and draw from a stricter bucket than reads.
const (
	tierRead  = "read"
	tierWrite = "write"
)

var rateRejected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "coin_ledger",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter, by tier.",
	},
	[]string{"tier"},
)

func init() {
	prometheus.MustRegister(rateRejected)
}

// RateKeyFunc selects the bucket owner for a request.
type RateKeyFunc func(*gin.Context) string

// KeyByIdentityOrIP keys buckets by the caller resolved by Identify, falling
// back to the client IP for anonymous traffic.
func KeyByIdentityOrIP() RateKeyFunc {
	return func(c *gin.Context) string {
		if id, ok := IdentityFrom(c); ok {
			return "user:" + id.UserID
		}
		return "ip:" + c.ClientIP()
	}
}

// RateOptions configures NewRateLimiter. Zero write limits inherit the read
// limits.
type RateOptions struct {
	RPS        float64
	Burst      int
	WriteRPS   float64
	WriteBurst int
	Key        RateKeyFunc
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local token bucket limiter with one bucket per
// (tier, key). Idle buckets are evicted opportunistically.
type RateLimiter struct {
	limits map[string]rate.Limit
	bursts map[string]int
	keyFn  RateKeyFunc
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	ttl     time.Duration
	sweepN  uint64
}

// NewRateLimiter builds a limiter from opts. Bursts <= 0 are coerced to 1
// and a nil Key means KeyByIdentityOrIP.
func NewRateLimiter(opts RateOptions) *RateLimiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.WriteRPS <= 0 {
		opts.WriteRPS = opts.RPS
	}
	if opts.WriteBurst <= 0 {
		opts.WriteBurst = opts.Burst
	}
	if opts.Key == nil {
		opts.Key = KeyByIdentityOrIP()
	}
	return &RateLimiter{
		limits:  map[string]rate.Limit{tierRead: rate.Limit(opts.RPS), tierWrite: rate.Limit(opts.WriteRPS)},
		bursts:  map[string]int{tierRead: opts.Burst, tierWrite: opts.WriteBurst},
		keyFn:   opts.Key,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		ttl:     10 * time.Minute,
	}
}

func tierOf(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return tierRead
	default:
		return tierWrite
	}
}

// limiter returns the bucket for (tier, key). Every 5000 lookups idle buckets
// are swept before the requested one is touched.
func (rl *RateLimiter) limiter(tier, key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.sweepN++
	if rl.sweepN >= 5000 {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.sweepN = 0
	}

	id := tier + "|" + key
	if b, ok := rl.buckets[id]; ok {
		b.lastSeen = now
		return b.limiter
	}
	lim := rate.NewLimiter(rl.limits[tier], rl.bursts[tier])
	rl.buckets[id] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator served a stored replay
// for this request. Replays do not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limits. Rejected requests get 429 with code
// "rate_limited" and a Retry-After of at least one second.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		tier := tierOf(c.Request.Method)
		now := rl.now()
		lim := rl.limiter(tier, rl.keyFn(c), now)

		res := lim.ReserveN(now, 1)
		wait := time.Second
		if res.OK() {
			wait = res.DelayFrom(now)
			if wait == 0 {
				c.Next()
				return
			}
			res.CancelAt(now)
		}
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))

		rateRejected.WithLabelValues(tier).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
