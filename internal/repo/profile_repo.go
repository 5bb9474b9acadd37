package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-coin-ledger/internal/domain"
)

// UpsertProfile inserts p or refreshes the identity fields of an existing
// profile. TotalLikes is never overwritten. It reports whether a new row was
// created.
func UpsertProfile(ctx context.Context, db *gorm.DB, p *domain.Profile) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	err := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("user_id = ?", p.UserID).
		Updates(map[string]any{
			"display_name": p.DisplayName,
			"is_admin":     p.IsAdmin,
			"is_banned":    p.IsBanned,
			"updated_at":   UTCNow(),
		}).Error
	return false, err
}

// GetProfile fetches a profile by user id, or ErrNotFound.
func GetProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// AddTotalLikes shifts a user's total_likes by delta, clamping at zero. A
// missing profile row is created so the counter is never lost.
func AddTotalLikes(ctx context.Context, db *gorm.DB, userID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	if delta > 0 {
		if err := db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
			Create(&domain.Profile{UserID: userID}).Error; err != nil {
			return err
		}
	}
	expr := gorm.Expr("total_likes + ?", delta)
	if delta < 0 {
		expr = gorm.Expr("CASE WHEN total_likes >= ? THEN total_likes - ? ELSE 0 END", -delta, -delta)
	}
	return db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"total_likes": expr, "updated_at": UTCNow()}).Error
}
