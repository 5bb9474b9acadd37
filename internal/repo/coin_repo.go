// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for coin accounts
// and the append-only coin event ledger.
//
// Balance mutations are single conditional UPDATE statements so that the
// database, not the caller, decides whether a debit fits. Callers run them
// inside a transaction together with AppendCoinEvent.
//
// Functions:
//
//   - EnsureCoinAccount(ctx, db, userID) -> error
//     Inserts a zero-balance account if none exists (no-op otherwise).
//
//   - GetCoinAccount(ctx, db, userID) -> *domain.CoinAccount, error
//     Fetches the account or ErrNotFound.
//
//   - DebitBalance(ctx, db, userID, amount) -> (bool, error)
//     Subtracts amount only when balance >= amount; false means insufficient.
//
//   - CreditBalance(ctx, db, userID, amount) -> error
//     Adds amount to an existing account.
//
//   - MarkDailyClaim(ctx, db, userID, amount, dayStart, now) -> (bool, error)
//     Compare-and-set on last_daily_claimed_at; credits amount on success.
//
//   - AppendCoinEvent / ListCoinEvents / SumCoinDeltas / ListRanking.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-coin-ledger/internal/domain"
)

// EnsureCoinAccount inserts an empty account for userID unless one exists.
func EnsureCoinAccount(ctx context.Context, db *gorm.DB, userID string) error {
	acc := &domain.CoinAccount{UserID: userID}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(acc).Error
}

// GetCoinAccount fetches the account for userID, or ErrNotFound.
func GetCoinAccount(ctx context.Context, db *gorm.DB, userID string) (*domain.CoinAccount, error) {
	var acc domain.CoinAccount
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&acc).Error; err != nil {
		return nil, err
	}
	return &acc, nil
}

// DebitBalance atomically subtracts amount when the balance covers it. It
// returns false, without touching the row, when funds are insufficient or the
// account does not exist.
func DebitBalance(ctx context.Context, db *gorm.DB, userID string, amount int64) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.CoinAccount{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": UTCNow(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CreditBalance atomically adds amount to the account. It returns ErrNotFound
// when the account row is missing.
func CreditBalance(ctx context.Context, db *gorm.DB, userID string, amount int64) error {
	res := db.WithContext(ctx).
		Model(&domain.CoinAccount{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": UTCNow(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDailyClaim credits amount and moves the daily watermark to now, but
// only if the previous claim happened before dayStart. It returns false when
// the user already claimed on this day.
func MarkDailyClaim(ctx context.Context, db *gorm.DB, userID string, amount int64, dayStart, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.CoinAccount{}).
		Where("user_id = ? AND (last_daily_claimed_at IS NULL OR last_daily_claimed_at < ?)", userID, dayStart).
		Updates(map[string]any{
			"balance":               gorm.Expr("balance + ?", amount),
			"last_daily_claimed_at": now,
			"updated_at":            now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AppendCoinEvent inserts an immutable ledger entry. ID and CreatedAt are
// filled when empty. A duplicate (user_id, idempotency_key) surfaces as a
// unique violation (see IsDuplicate).
func AppendCoinEvent(ctx context.Context, db *gorm.DB, ev *domain.CoinEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = UTCNow()
	}
	return db.WithContext(ctx).Create(ev).Error
}

// ListCoinEvents returns the newest events of userID first.
func ListCoinEvents(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.CoinEvent, error) {
	var out []domain.CoinEvent
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SumCoinDeltas returns the sum of all ledger deltas for userID.
func SumCoinDeltas(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var row struct{ Total int64 }
	err := db.WithContext(ctx).
		Model(&domain.CoinEvent{}).
		Select("COALESCE(SUM(delta), 0) AS total").
		Where("user_id = ?", userID).
		Scan(&row).Error
	return row.Total, err
}

// ListRanking returns accounts by balance descending, joined with display
// names from profiles (empty when the profile is unknown).
func ListRanking(ctx context.Context, db *gorm.DB, limit int) ([]domain.RankingEntry, error) {
	var out []domain.RankingEntry
	err := db.WithContext(ctx).
		Table("coin_accounts AS a").
		Select("a.user_id AS user_id, COALESCE(p.display_name, '') AS display_name, a.balance AS balance").
		Joins("LEFT JOIN profiles AS p ON p.user_id = a.user_id").
		Order("a.balance desc").
		Order("a.user_id asc").
		Limit(limit).
		Scan(&out).Error
	return out, err
}
