package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-coin-ledger/internal/repo"
)

// Sweeper periodically expires overdue staked threads and purges expired
// idempotency records. It is best-effort: failures are logged and the next
// tick tries again.
type Sweeper struct {
	Threads  *ThreadService
	DB       *gorm.DB
	Interval time.Duration
	Now      func() time.Time
}

// Run blocks until ctx is done, sweeping once per Interval.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	lg := zerolog.Ctx(ctx)
	if s.Threads != nil {
		n, err := s.Threads.ExpireOverdue(ctx)
		if err != nil {
			lg.Warn().Err(err).Msg("sweeper: expire overdue threads failed")
		} else if n > 0 {
			lg.Info().Int("expired", n).Msg("sweeper: expired overdue threads")
		}
	}
	if s.DB != nil {
		n, err := repo.PurgeExpiredIdempotency(ctx, s.DB, clock(s.Now))
		if err != nil {
			lg.Warn().Err(err).Msg("sweeper: purge idempotency records failed")
		} else if n > 0 {
			lg.Debug().Int64("purged", n).Msg("sweeper: purged idempotency records")
		}
	}
}
