// Package services – AnswerService
//
// AnswerService posts answers into open threads and maintains the like
// counters. An answer is accepted only while its thread is open and before
// the deadline; the check and the answers_count increment are a single
// conditional UPDATE so a concurrent resolve cannot slip in between.
//
// Likes are unique per (answer, user). Each like or unlike moves both the
// answer's likes_count and the author's total_likes by exactly one, inside
// the transaction that inserts or deletes the like row.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-coin-ledger/internal/domain"
	"github.com/tbourn/go-coin-ledger/internal/repo"
	"github.com/tbourn/go-coin-ledger/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LikeState is the viewer's like state after Like or Unlike.
type LikeState struct {
	AnswerID    string `json:"answer_id"`
	LikesCount  int64  `json:"likes_count"`
	IsLikedByMe bool   `json:"is_liked_by_me"`
}

// AnswerService implements answers and likes.
type AnswerService struct {
	DB *gorm.DB

	MaxContentRunes int

	Retry RetryPolicy
	Now   func() time.Time
}

// Create posts content as an answer by authorID to threadID.
func (s *AnswerService) Create(ctx context.Context, authorID, threadID, content string) (*domain.Answer, error) {
	ctx, span := otel.Tracer("services/AnswerService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.String("user.id", authorID),
		),
	)
	defer span.End()

	content = utils.SanitizeContent(content)
	if err := checkContent(content, s.MaxContentRunes); err != nil {
		return nil, err
	}

	var a *domain.Answer
	err := inTx(ctx, s.DB, s.Retry, func(tx *gorm.DB) error {
		now := clock(s.Now)
		ok, err := repo.ReserveAnswerSlot(ctx, tx, threadID, now)
		if err != nil {
			return err
		}
		if !ok {
			return whyClosed(ctx, tx, threadID)
		}
		a = &domain.Answer{
			ThreadID:  threadID,
			AuthorID:  authorID,
			Content:   content,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return repo.CreateAnswer(ctx, tx, a)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return a, nil
}

// whyClosed explains a refused ReserveAnswerSlot.
func whyClosed(ctx context.Context, tx *gorm.DB, threadID string) error {
	t, err := repo.GetThread(ctx, tx, threadID)
	switch {
	case repo.IsNotFound(err):
		return ErrThreadNotFound
	case err != nil:
		return err
	case t.Status != domain.ThreadOpen:
		return ErrThreadResolved
	default:
		return ErrDeadlinePassed
	}
}

// ListByThread returns the answers of threadID with IsLikedByMe computed for
// viewerID. An empty viewer sees no likes of their own.
func (s *AnswerService) ListByThread(ctx context.Context, threadID, viewerID string) ([]domain.Answer, error) {
	if _, err := repo.GetThread(ctx, s.DB, threadID); err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	answers, err := repo.ListAnswersByThread(ctx, s.DB, threadID)
	if err != nil {
		return nil, err
	}
	if len(answers) == 0 {
		return []domain.Answer{}, nil
	}
	ids := make([]string, len(answers))
	for i := range answers {
		ids[i] = answers[i].ID
	}
	liked, err := repo.LikedAnswerIDs(ctx, s.DB, viewerID, ids)
	if err != nil {
		return nil, err
	}
	for i := range answers {
		answers[i].IsLikedByMe = liked[answers[i].ID]
	}
	return answers, nil
}

// Stats returns the answer count and latest update for threadID.
func (s *AnswerService) Stats(ctx context.Context, threadID string) (int64, *time.Time, error) {
	return repo.AnswersStats(ctx, s.DB, threadID)
}

// Like records userID's like of answerID. The thread owner cannot like
// answers on their own thread.
func (s *AnswerService) Like(ctx context.Context, answerID, userID string) (*LikeState, error) {
	var out *LikeState
	err := inTx(ctx, s.DB, s.Retry, func(tx *gorm.DB) error {
		a, t, err := answerWithThread(ctx, tx, answerID)
		if err != nil {
			return err
		}
		if t.OwnerID == userID {
			return ErrOwnerLike
		}
		if err := repo.CreateAnswerLike(ctx, tx, answerID, userID); err != nil {
			if repo.IsDuplicate(err) {
				return ErrAlreadyLiked
			}
			return err
		}
		if err := repo.AddAnswerLikes(ctx, tx, answerID, 1); err != nil {
			return err
		}
		if err := repo.AddTotalLikes(ctx, tx, a.AuthorID, 1); err != nil {
			return err
		}
		out, err = likeState(ctx, tx, answerID, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Unlike removes userID's like of answerID.
func (s *AnswerService) Unlike(ctx context.Context, answerID, userID string) (*LikeState, error) {
	var out *LikeState
	err := inTx(ctx, s.DB, s.Retry, func(tx *gorm.DB) error {
		a, err := repo.GetAnswer(ctx, tx, answerID)
		if repo.IsNotFound(err) {
			return ErrAnswerNotFound
		}
		if err != nil {
			return err
		}
		ok, err := repo.DeleteAnswerLike(ctx, tx, answerID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrLikeNotFound
		}
		if err := repo.AddAnswerLikes(ctx, tx, answerID, -1); err != nil {
			return err
		}
		if err := repo.AddTotalLikes(ctx, tx, a.AuthorID, -1); err != nil {
			return err
		}
		out, err = likeState(ctx, tx, answerID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes an answer. Only its author or an admin may delete it, and a
// best answer stays because the reward it earned has been paid.
func (s *AnswerService) Delete(ctx context.Context, actor Identity, answerID string) error {
	return inTx(ctx, s.DB, s.Retry, func(tx *gorm.DB) error {
		a, err := repo.GetAnswerForUpdate(ctx, tx, answerID)
		if repo.IsNotFound(err) {
			return ErrAnswerNotFound
		}
		if err != nil {
			return err
		}
		if a.AuthorID != actor.UserID && !actor.IsAdmin {
			return ErrNotAnswerOwner
		}
		if a.IsBestAnswer {
			return ErrBestAnswerDelete
		}
		if err := dropLikes(ctx, tx, a); err != nil {
			return err
		}
		if err := repo.DeleteAnswer(ctx, tx, a.ID); err != nil {
			if repo.IsNotFound(err) {
				return ErrBestAnswerDelete
			}
			return err
		}
		return repo.ReleaseAnswerSlot(ctx, tx, a.ThreadID)
	})
}

// dropLikes deletes the like rows of a and takes exactly that many likes off
// its author's reputation.
func dropLikes(ctx context.Context, tx *gorm.DB, a *domain.Answer) error {
	n, err := repo.DeleteAnswerLikes(ctx, tx, a.ID)
	if err != nil || n == 0 {
		return err
	}
	return repo.AddTotalLikes(ctx, tx, a.AuthorID, -n)
}

func likeState(ctx context.Context, tx *gorm.DB, answerID string, liked bool) (*LikeState, error) {
	a, err := repo.GetAnswer(ctx, tx, answerID)
	if err != nil {
		return nil, err
	}
	return &LikeState{AnswerID: answerID, LikesCount: a.LikesCount, IsLikedByMe: liked}, nil
}

func answerWithThread(ctx context.Context, tx *gorm.DB, answerID string) (*domain.Answer, *domain.Thread, error) {
	a, err := repo.GetAnswer(ctx, tx, answerID)
	if repo.IsNotFound(err) {
		return nil, nil, ErrAnswerNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	t, err := repo.GetThread(ctx, tx, a.ThreadID)
	if repo.IsNotFound(err) {
		return nil, nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return a, t, nil
}
