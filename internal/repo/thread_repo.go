// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Thread
// model.
//
// Status transitions are compare-and-set updates guarded on the current
// status. A zero RowsAffected means another writer got there first and is
// reported as false rather than an error.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-coin-ledger/internal/domain"
)

// ThreadFilter narrows and orders thread listings.
type ThreadFilter struct {
	Status       domain.ThreadStatus // empty = any
	SubjectTagID int64               // 0 = any
	OwnerID      string              // empty = any
	Sort         string              // created_at|deadline|coin_stake
	Desc         bool
}

func (f ThreadFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Status != "" {
		q = q.Where("threads.status = ?", f.Status)
	}
	if f.SubjectTagID > 0 {
		q = q.Where("threads.subject_tag_id = ?", f.SubjectTagID)
	}
	if f.OwnerID != "" {
		q = q.Where("threads.owner_id = ?", f.OwnerID)
	}
	return q
}

func (f ThreadFilter) orderColumn() string {
	switch f.Sort {
	case "deadline", "coin_stake":
		return f.Sort
	default:
		return "created_at"
	}
}

// CreateThread inserts t, assigning an ID when empty.
func CreateThread(ctx context.Context, db *gorm.DB, t *domain.Thread) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.ThreadOpen
	}
	return db.WithContext(ctx).Create(t).Error
}

// GetThread fetches a thread by id, or ErrNotFound.
func GetThread(ctx context.Context, db *gorm.DB, id string) (*domain.Thread, error) {
	var t domain.Thread
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetThreadForUpdate is GetThread holding a row lock until the surrounding
// transaction ends. SQLite ignores the clause; its writers are serialized.
func GetThreadForUpdate(ctx context.Context, tx *gorm.DB, id string) (*domain.Thread, error) {
	return GetThread(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// GetThreadDetails is GetThread with the owner's display name and the
// subject tag name joined in.
func GetThreadDetails(ctx context.Context, db *gorm.DB, id string) (*domain.Thread, error) {
	var t domain.Thread
	if err := withThreadDetails(db.WithContext(ctx)).Where("threads.id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func withThreadDetails(q *gorm.DB) *gorm.DB {
	return q.Model(&domain.Thread{}).
		Select("threads.*, profiles.display_name AS owner_display_name, subject_tags.name AS subject_tag_name").
		Joins("LEFT JOIN profiles ON profiles.user_id = threads.owner_id").
		Joins("LEFT JOIN subject_tags ON subject_tags.id = threads.subject_tag_id")
}

// CountThreads returns the number of threads matching f.
func CountThreads(ctx context.Context, db *gorm.DB, f ThreadFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Thread{})).Count(&total).Error
	return total, err
}

// ListThreadsPage returns a page of threads matching f.
func ListThreadsPage(ctx context.Context, db *gorm.DB, f ThreadFilter, offset, limit int) ([]domain.Thread, error) {
	var out []domain.Thread
	err := f.apply(withThreadDetails(db.WithContext(ctx))).
		Order(clause.OrderByColumn{Column: clause.Column{Table: "threads", Name: f.orderColumn()}, Desc: f.Desc}).
		Order("threads.id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// TransitionThreadStatus moves a thread from one status to another. It
// returns false when the thread is not currently in from.
func TransitionThreadStatus(ctx context.Context, db *gorm.DB, id string, from, to domain.ThreadStatus) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": UTCNow()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateThreadDeadline changes the deadline of an open thread. It returns
// false when the thread is no longer open.
func UpdateThreadDeadline(ctx context.Context, db *gorm.DB, id string, deadline *time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("id = ? AND status = ?", id, domain.ThreadOpen).
		Updates(map[string]any{"deadline": deadline, "updated_at": UTCNow()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReserveAnswerSlot increments answers_count only while the thread is open
// and its deadline (if any) is after now. It returns false otherwise, which
// lets the caller refuse the answer in the same transaction.
func ReserveAnswerSlot(ctx context.Context, db *gorm.DB, threadID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("id = ? AND status = ? AND (deadline IS NULL OR deadline > ?)", threadID, domain.ThreadOpen, now).
		Updates(map[string]any{
			"answers_count": gorm.Expr("answers_count + 1"),
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseAnswerSlot decrements answers_count, never below zero.
func ReleaseAnswerSlot(ctx context.Context, db *gorm.DB, threadID string) error {
	return db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("id = ?", threadID).
		Updates(map[string]any{
			"answers_count": gorm.Expr("CASE WHEN answers_count > 0 THEN answers_count - 1 ELSE 0 END"),
			"updated_at":    UTCNow(),
		}).Error
}

// MarkRewardPaid records the payout on a thread that has not been paid yet.
// It returns false when the reward was already marked as paid.
func MarkRewardPaid(ctx context.Context, db *gorm.DB, threadID string, reward int64, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("id = ? AND coin_reward_paid = ?", threadID, false).
		Updates(map[string]any{
			"coin_reward_amount":  reward,
			"coin_reward_paid":    true,
			"coin_reward_paid_at": paidAt,
			"updated_at":          paidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ClaimThreadEscrow closes an open, unpaid thread ahead of its deletion by
// moving it to expired. It returns false when the thread was resolved, paid
// or expired by a concurrent writer, in which case no refund is owed.
func ClaimThreadEscrow(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("id = ? AND status = ? AND coin_reward_paid = ?", id, domain.ThreadOpen, false).
		Updates(map[string]any{"status": domain.ThreadExpired, "updated_at": UTCNow()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteThread removes a thread row. Answers and likes must already be gone
// or be removed by the caller in the same transaction.
func DeleteThread(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Thread{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireThread moves an open, unpaid, staked thread whose deadline is before
// cutoff to expired. It returns false when any of those conditions no longer
// holds.
func ExpireThread(ctx context.Context, db *gorm.DB, id string, cutoff time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("id = ? AND status = ? AND deadline IS NOT NULL AND deadline < ? AND coin_stake > 0 AND coin_reward_paid = ?",
			id, domain.ThreadOpen, cutoff, false).
		Updates(map[string]any{"status": domain.ThreadExpired, "updated_at": UTCNow()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListOverdueThreadIDs returns ids of open threads with an unpaid stake
// whose deadline is before cutoff, oldest deadline first.
func ListOverdueThreadIDs(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("status = ? AND deadline IS NOT NULL AND deadline < ? AND coin_stake > 0 AND coin_reward_paid = ?",
			domain.ThreadOpen, cutoff, false).
		Order("deadline asc").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
