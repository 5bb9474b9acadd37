// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-coin-ledger/internal/domain"
)

// ThreadsStats returns the number of threads matching f and the greatest
// UpdatedAt among them. When nothing matches, count is 0 and maxUpdatedAt
// is nil.
func ThreadsStats(ctx context.Context, db *gorm.DB, f ThreadFilter) (count int64, maxUpdatedAt *time.Time, err error) {
	return stats(f.apply(db.WithContext(ctx).Model(&domain.Thread{})))
}

// AnswersStats returns the number of answers in a thread and the greatest
// UpdatedAt among them.
func AnswersStats(ctx context.Context, db *gorm.DB, threadID string) (count int64, maxUpdatedAt *time.Time, err error) {
	return stats(db.WithContext(ctx).Model(&domain.Answer{}).Where("thread_id = ?", threadID))
}

func stats(q *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Session(&gorm.Session{}).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
