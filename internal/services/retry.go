package services

import (
	"context"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-coin-ledger/internal/repo"
)

// RetryPolicy bounds how often a transaction is re-run after a transient
// store conflict (busy database, serialization failure, deadlock).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is used when a service carries a zero policy.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 250 * time.Millisecond}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// backoff returns the full-jitter delay before the given retry (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if d <= 0 || d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d/2 + rand.N(d/2+1)
}

// withRetry runs fn until it succeeds, fails with a non-transient error, the
// context ends, or the attempts run out. Exhaustion maps to
// ErrRetryExhausted.
func withRetry(ctx context.Context, p RetryPolicy, fn func() error) error {
	p = p.normalized()
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(); err == nil || !repo.IsTransient(err) {
			return err
		}
		retriesTotal.Inc()
		if attempt == p.MaxAttempts {
			break
		}
		t := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return ErrRetryExhausted
}

// inTx runs fn in a database transaction under the retry policy.
func inTx(ctx context.Context, db *gorm.DB, p RetryPolicy, fn func(tx *gorm.DB) error) error {
	return withRetry(ctx, p, func() error {
		return db.WithContext(ctx).Transaction(fn)
	})
}

// clock returns now in UTC, using fn when set.
func clock(fn func() time.Time) time.Time {
	if fn != nil {
		return fn().UTC()
	}
	return time.Now().UTC()
}
