// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for answers and
// their like records.
//
// Counters (likes_count, total_likes) are only ever changed with relative
// UPDATE expressions, never by writing back a value read earlier.
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-coin-ledger/internal/domain"
)

// CreateAnswer inserts a, assigning an ID when empty.
func CreateAnswer(ctx context.Context, db *gorm.DB, a *domain.Answer) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Omit("Thread").Create(a).Error
}

// GetAnswer fetches an answer by id, or ErrNotFound.
func GetAnswer(ctx context.Context, db *gorm.DB, id string) (*domain.Answer, error) {
	var a domain.Answer
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAnswerForUpdate is GetAnswer holding a row lock until the surrounding
// transaction ends. The lock also blocks like inserts on the answer, whose
// foreign-key check needs a share lock on the same row.
func GetAnswerForUpdate(ctx context.Context, tx *gorm.DB, id string) (*domain.Answer, error) {
	return GetAnswer(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// ListAnswersByThread returns the answers of a thread with their authors'
// display names, best answer first, then oldest first.
func ListAnswersByThread(ctx context.Context, db *gorm.DB, threadID string) ([]domain.Answer, error) {
	var out []domain.Answer
	err := db.WithContext(ctx).
		Model(&domain.Answer{}).
		Select("answers.*, profiles.display_name AS author_display_name").
		Joins("LEFT JOIN profiles ON profiles.user_id = answers.author_id").
		Where("answers.thread_id = ?", threadID).
		Order("answers.is_best_answer desc").
		Order("answers.created_at asc").
		Order("answers.id asc").
		Find(&out).Error
	return out, err
}

// LockAnswersByThread returns the answers of a thread, each locked for the
// rest of the transaction.
func LockAnswersByThread(ctx context.Context, tx *gorm.DB, threadID string) ([]domain.Answer, error) {
	var out []domain.Answer
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("thread_id = ?", threadID).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// ClearBestAnswers unflags every best answer of a thread.
func ClearBestAnswers(ctx context.Context, db *gorm.DB, threadID string) error {
	return db.WithContext(ctx).
		Model(&domain.Answer{}).
		Where("thread_id = ? AND is_best_answer = ?", threadID, true).
		Updates(map[string]any{"is_best_answer": false, "updated_at": UTCNow()}).Error
}

// SetBestAnswer flags answerID as best. It returns ErrNotFound when the
// answer does not belong to threadID.
func SetBestAnswer(ctx context.Context, db *gorm.DB, threadID, answerID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Answer{}).
		Where("id = ? AND thread_id = ?", answerID, threadID).
		Updates(map[string]any{"is_best_answer": true, "updated_at": UTCNow()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAnswer removes an answer that is not the best answer of its thread.
// It returns ErrNotFound when no such row exists, including when the answer
// has been selected as best.
func DeleteAnswer(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ? AND is_best_answer = ?", id, false).Delete(&domain.Answer{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAnswersByThread removes every answer of a thread.
func DeleteAnswersByThread(ctx context.Context, db *gorm.DB, threadID string) error {
	return db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&domain.Answer{}).Error
}

// AddAnswerLikes shifts likes_count by delta, clamping at zero.
func AddAnswerLikes(ctx context.Context, db *gorm.DB, answerID string, delta int64) error {
	expr := gorm.Expr("likes_count + ?", delta)
	if delta < 0 {
		expr = gorm.Expr("CASE WHEN likes_count >= ? THEN likes_count - ? ELSE 0 END", -delta, -delta)
	}
	res := db.WithContext(ctx).
		Model(&domain.Answer{}).
		Where("id = ?", answerID).
		Updates(map[string]any{"likes_count": expr, "updated_at": UTCNow()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAnswerLike inserts the (answer, user) like. A second like by the same
// user surfaces as a unique violation (see IsDuplicate).
func CreateAnswerLike(ctx context.Context, db *gorm.DB, answerID, userID string) error {
	like := &domain.AnswerLike{AnswerID: answerID, UserID: userID, CreatedAt: UTCNow()}
	return db.WithContext(ctx).Omit("Answer").Create(like).Error
}

// DeleteAnswerLike removes the (answer, user) like. It returns false when no
// such like existed.
func DeleteAnswerLike(ctx context.Context, db *gorm.DB, answerID, userID string) (bool, error) {
	res := db.WithContext(ctx).
		Where("answer_id = ? AND user_id = ?", answerID, userID).
		Delete(&domain.AnswerLike{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteAnswerLikes removes every like of answerID and returns how many
// rows went. Callers adjust reputation by that count, not by likes_count.
func DeleteAnswerLikes(ctx context.Context, db *gorm.DB, answerID string) (int64, error) {
	res := db.WithContext(ctx).Where("answer_id = ?", answerID).Delete(&domain.AnswerLike{})
	return res.RowsAffected, res.Error
}

// LikedAnswerIDs returns the subset of answerIDs liked by userID.
func LikedAnswerIDs(ctx context.Context, db *gorm.DB, userID string, answerIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(answerIDs))
	if userID == "" || len(answerIDs) == 0 {
		return out, nil
	}
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.AnswerLike{}).
		Where("user_id = ? AND answer_id IN ?", userID, answerIDs).
		Pluck("answer_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
