// Package cache provides the Redis-backed read cache for the coin balance
// leaderboard. The database stays the source of truth; every cache failure
// degrades to a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-coin-ledger/internal/domain"
)

const (
	// DefaultRankingKey is the hash holding one field per requested limit.
	DefaultRankingKey = "coin:ranking"
	defaultTTL        = 30 * time.Second
	opTimeout         = 2 * time.Second
)

// Options configures NewRedisClient.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient builds a client and pings it once. The client is returned
// even when the ping fails so callers can decide whether to run without it.
func NewRedisClient(opt Options) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:         opt.Addr,
		Password:     opt.Password,
		DB:           opt.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return c, c.Ping(ctx).Err()
}

// RedisRanking caches leaderboard pages in a single Redis hash so one DEL
// drops every page.
type RedisRanking struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration
}

// NewRedisRanking returns a RedisRanking with default key and ttl when unset.
func NewRedisRanking(c *redis.Client, ttl time.Duration) *RedisRanking {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisRanking{Client: c, Key: DefaultRankingKey, TTL: ttl}
}

func (r *RedisRanking) key() string {
	if r.Key == "" {
		return DefaultRankingKey
	}
	return r.Key
}

// Get returns the cached page for limit.
func (r *RedisRanking) Get(ctx context.Context, limit int) ([]domain.RankingEntry, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := r.Client.HGet(ctx, r.key(), strconv.Itoa(limit)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("ranking cache get failed")
		}
		return nil, false
	}
	var out []domain.RankingEntry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

// Set stores the page for limit and refreshes the hash ttl.
func (r *RedisRanking) Set(ctx context.Context, limit int, entries []domain.RankingEntry) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipe := r.Client.TxPipeline()
	pipe.HSet(ctx, r.key(), strconv.Itoa(limit), raw)
	pipe.Expire(ctx, r.key(), r.ttl())
	if _, err := pipe.Exec(ctx); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("ranking cache set failed")
	}
}

// Invalidate drops every cached page.
func (r *RedisRanking) Invalidate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := r.Client.Del(ctx, r.key()).Err(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("ranking cache invalidate failed")
	}
}

func (r *RedisRanking) ttl() time.Duration {
	if r.TTL <= 0 {
		return defaultTTL
	}
	return r.TTL
}
