// Package services – CoinService
//
// This file implements CoinService, the only component that changes coin
// balances. Every change is a conditional UPDATE on coin_accounts plus an
// appended coin_events row inside one transaction, so the cached balance
// always equals the sum of the user's ledger deltas and never goes below
// zero. Other services call DebitTx/CreditTx with their own transaction to
// make money movement part of a larger atomic unit.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-coin-ledger/internal/domain"
	"github.com/tbourn/go-coin-ledger/internal/repo"
)

const (
	defaultEventsLimit  = 30
	defaultRankingLimit = 20
	maxListLimit        = 100
)

// EventPublisher receives ledger entries after their transaction commits.
type EventPublisher interface {
	Publish(ctx context.Context, events ...domain.CoinEvent) error
}

// RankingCache is a read-side cache for the balance leaderboard. It is never
// consulted for debit or credit decisions.
type RankingCache interface {
	Get(ctx context.Context, limit int) ([]domain.RankingEntry, bool)
	Set(ctx context.Context, limit int, entries []domain.RankingEntry)
	Invalidate(ctx context.Context)
}

// Entry describes one balance movement.
type Entry struct {
	UserID   string
	Amount   int64
	Reason   domain.CoinReason
	ThreadID string
	AnswerID string
	// Key makes the entry unique per user in the ledger; empty for none.
	Key  string
	Note string
}

// Balance is the read model of a coin account.
type Balance struct {
	Balance            int64      `json:"balance"`
	LastDailyClaimedAt *time.Time `json:"last_daily_claimed_at"`
}

// DailyClaim is the outcome of ClaimDaily.
type DailyClaim struct {
	Balance        int64 `json:"balance"`
	Awarded        int64 `json:"awarded"`
	AlreadyClaimed bool  `json:"already_claimed"`
}

// CoinService owns coin accounts and the ledger.
type CoinService struct {
	DB *gorm.DB

	DailyBonus  int64
	SignupBonus int64

	Retry RetryPolicy
	Now   func() time.Time

	// Optional collaborators.
	Events    EventPublisher
	RankCache RankingCache
}

// GetBalance returns the balance of userID. Unknown users have a zero balance.
func (s *CoinService) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	acc, err := repo.GetCoinAccount(ctx, s.DB, userID)
	if repo.IsNotFound(err) {
		return &Balance{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Balance{Balance: acc.Balance, LastDailyClaimedAt: acc.LastDailyClaimedAt}, nil
}

// Debit removes e.Amount from the user's balance in its own transaction and
// returns the new balance.
func (s *CoinService) Debit(ctx context.Context, e Entry) (int64, error) {
	var ev *domain.CoinEvent
	err := inTx(ctx, s.DB, s.Retry, func(tx *gorm.DB) error {
		var err error
		ev, err = s.DebitTx(ctx, tx, e)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.afterCommit(ctx, ev)
	return ev.BalanceAfter, nil
}

// Credit adds e.Amount to the user's balance in its own transaction and
// returns the new balance.
func (s *CoinService) Credit(ctx context.Context, e Entry) (int64, error) {
	var (
		ev  *domain.CoinEvent
		bal int64
	)
	err := inTx(ctx, s.DB, s.Retry, func(tx *gorm.DB) error {
		var err error
		if ev, err = s.CreditTx(ctx, tx, e); err != nil {
			return err
		}
		if ev != nil {
			bal = ev.BalanceAfter
			return nil
		}
		bal, err = balanceTx(ctx, tx, e.UserID)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.afterCommit(ctx, ev)
	return bal, nil
}

// DebitTx debits within tx. It fails with ErrInsufficientFunds, leaving the
// account untouched, when the balance does not cover the amount.
func (s *CoinService) DebitTx(ctx context.Context, tx *gorm.DB, e Entry) (*domain.CoinEvent, error) {
	if e.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !e.Reason.Valid() {
		return nil, ErrInvalidReason
	}
	ok, err := repo.DebitBalance(ctx, tx, e.UserID, e.Amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientFunds
	}
	return s.appendEvent(ctx, tx, e, -e.Amount)
}

// CreditTx credits within tx, opening the account when needed. A zero amount
// is a no-op and returns a nil event.
func (s *CoinService) CreditTx(ctx context.Context, tx *gorm.DB, e Entry) (*domain.CoinEvent, error) {
	if e.Amount < 0 {
		return nil, ErrInvalidAmount
	}
	if !e.Reason.Valid() {
		return nil, ErrInvalidReason
	}
	if e.Amount == 0 {
		return nil, nil
	}
	if err := repo.EnsureCoinAccount(ctx, tx, e.UserID); err != nil {
		return nil, err
	}
	if err := repo.CreditBalance(ctx, tx, e.UserID, e.Amount); err != nil {
		return nil, err
	}
	return s.appendEvent(ctx, tx, e, e.Amount)
}

func (s *CoinService) appendEvent(ctx context.Context, tx *gorm.DB, e Entry, delta int64) (*domain.CoinEvent, error) {
	bal, err := balanceTx(ctx, tx, e.UserID)
	if err != nil {
		return nil, err
	}
	ev := &domain.CoinEvent{
		UserID:       e.UserID,
		Delta:        delta,
		Reason:       e.Reason,
		BalanceAfter: bal,
		Note:         e.Note,
		CreatedAt:    clock(s.Now),
	}
	if e.ThreadID != "" {
		ev.ThreadID = &e.ThreadID
	}
	if e.AnswerID != "" {
		ev.AnswerID = &e.AnswerID
	}
	if e.Key != "" {
		ev.IdempotencyKey = &e.Key
	}
	if err := repo.AppendCoinEvent(ctx, tx, ev); err != nil {
		if repo.IsDuplicate(err) {
			return nil, ErrDuplicateEntry
		}
		return nil, err
	}
	return ev, nil
}

// ClaimDaily grants the daily bonus once per UTC calendar day. A second claim
// on the same day reports AlreadyClaimed and changes nothing.
func (s *CoinService) ClaimDaily(ctx context.Context, userID string) (*DailyClaim, error) {
	var (
		out DailyClaim
		ev  *domain.CoinEvent
	)
	err := inTx(ctx, s.DB, s.Retry, func(tx *gorm.DB) error {
		out, ev = DailyClaim{}, nil
		now := clock(s.Now)
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

		if err := repo.EnsureCoinAccount(ctx, tx, userID); err != nil {
			return err
		}
		ok, err := repo.MarkDailyClaim(ctx, tx, userID, s.DailyBonus, dayStart, now)
		if err != nil {
			return err
		}
		if !ok {
			bal, err := balanceTx(ctx, tx, userID)
			if err != nil {
				return err
			}
			out = DailyClaim{Balance: bal, AlreadyClaimed: true}
			return nil
		}
		ev, err = s.appendEvent(ctx, tx, Entry{
			UserID: userID,
			Amount: s.DailyBonus,
			Reason: domain.ReasonDailyBonus,
			Key:    "daily:" + dayStart.Format(time.DateOnly),
		}, s.DailyBonus)
		if err != nil {
			return err
		}
		out = DailyClaim{Balance: ev.BalanceAfter, Awarded: s.DailyBonus}
		return nil
	})
	if errors.Is(err, ErrDuplicateEntry) {
		// The ledger already holds today's bonus; the watermark update rolled back.
		b, berr := s.GetBalance(ctx, userID)
		if berr != nil {
			return nil, berr
		}
		dailyClaims.WithLabelValues("already_claimed").Inc()
		return &DailyClaim{Balance: b.Balance, AlreadyClaimed: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if out.AlreadyClaimed {
		dailyClaims.WithLabelValues("already_claimed").Inc()
	} else {
		dailyClaims.WithLabelValues("awarded").Inc()
	}
	s.afterCommit(ctx, ev)
	return &out, nil
}

// ListEvents returns the newest ledger entries of userID first. limit is
// clamped to [1, 100] with 30 as default.
func (s *CoinService) ListEvents(ctx context.Context, userID string, limit int) ([]domain.CoinEvent, error) {
	limit = clampLimit(limit, defaultEventsLimit)
	evs, err := repo.ListCoinEvents(ctx, s.DB, userID, limit)
	if err != nil {
		return nil, err
	}
	if evs == nil {
		evs = []domain.CoinEvent{}
	}
	return evs, nil
}

// Ranking returns the balance leaderboard. limit is clamped to [1, 100] with
// 20 as default. Results may come from the ranking cache.
func (s *CoinService) Ranking(ctx context.Context, limit int) ([]domain.RankingEntry, error) {
	limit = clampLimit(limit, defaultRankingLimit)
	if s.RankCache != nil {
		if cached, ok := s.RankCache.Get(ctx, limit); ok {
			return cached, nil
		}
	}
	out, err := repo.ListRanking(ctx, s.DB, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.RankingEntry{}
	}
	if s.RankCache != nil {
		s.RankCache.Set(ctx, limit, out)
	}
	return out, nil
}

// AdminAdjust lets an admin add (delta > 0) or remove (delta < 0) coins.
// Removal follows debit rules and cannot make the balance negative.
func (s *CoinService) AdminAdjust(ctx context.Context, actor Identity, userID string, delta int64, note string) (int64, error) {
	if !actor.IsAdmin {
		return 0, ErrNotAdmin
	}
	if userID == "" {
		return 0, ErrInvalidIdentity
	}
	if delta == 0 {
		return 0, ErrInvalidAmount
	}
	e := Entry{UserID: userID, Reason: domain.ReasonAdminAdjust, Note: note}
	zerolog.Ctx(ctx).Info().
		Str("admin_id", actor.UserID).
		Str("target_user_id", userID).
		Int64("delta", delta).
		Msg("admin coin adjustment")
	if delta < 0 {
		e.Amount = -delta
		return s.Debit(ctx, e)
	}
	e.Amount = delta
	return s.Credit(ctx, e)
}

// grantSignupBonusTx credits the one-time signup bonus within tx.
func (s *CoinService) grantSignupBonusTx(ctx context.Context, tx *gorm.DB, userID string) (*domain.CoinEvent, error) {
	return s.CreditTx(ctx, tx, Entry{
		UserID: userID,
		Amount: s.SignupBonus,
		Reason: domain.ReasonSignupBonus,
		Key:    "signup",
	})
}

// VerifyConsistency checks that the cached balance equals the ledger sum.
func (s *CoinService) VerifyConsistency(ctx context.Context, userID string) error {
	b, err := s.GetBalance(ctx, userID)
	if err != nil {
		return err
	}
	sum, err := repo.SumCoinDeltas(ctx, s.DB, userID)
	if err != nil {
		return err
	}
	if sum != b.Balance {
		zerolog.Ctx(ctx).Error().
			Str("user_id", userID).
			Int64("balance", b.Balance).
			Int64("ledger_sum", sum).
			Msg("coin ledger mismatch")
		return ErrLedgerMismatch
	}
	return nil
}

// afterCommit publishes committed entries and drops cached rankings.
func (s *CoinService) afterCommit(ctx context.Context, evs ...*domain.CoinEvent) {
	out := make([]domain.CoinEvent, 0, len(evs))
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		dir := "credit"
		amt := ev.Delta
		if amt < 0 {
			dir, amt = "debit", -amt
		}
		coinMoved.WithLabelValues(string(ev.Reason), dir).Add(float64(amt))
		out = append(out, *ev)
	}
	if len(out) == 0 {
		return
	}
	lg := zerolog.Ctx(ctx)
	for _, ev := range out {
		lg.Debug().
			Str("user_id", ev.UserID).
			Str("reason", string(ev.Reason)).
			Int64("delta", ev.Delta).
			Int64("balance_after", ev.BalanceAfter).
			Msg("coin ledger entry")
	}
	if s.RankCache != nil {
		s.RankCache.Invalidate(ctx)
	}
	if s.Events != nil {
		if err := s.Events.Publish(ctx, out...); err != nil {
			lg.Warn().Err(err).Int("events", len(out)).Msg("publish ledger events failed")
		}
	}
}

func balanceTx(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	acc, err := repo.GetCoinAccount(ctx, tx, userID)
	if repo.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
