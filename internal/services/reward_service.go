// Package services – RewardService
//
// RewardService settles a thread by choosing its best answer. Resolution,
// best-answer flag and payout happen in one transaction guarded by a
// compare-and-set on the thread status, so when several selections race
// exactly one wins and the stake is paid at most once.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-coin-ledger/internal/domain"
	"github.com/tbourn/go-coin-ledger/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RewardResult describes a successful best-answer selection.
type RewardResult struct {
	ThreadID      string `json:"thread_id"`
	AnswerID      string `json:"answer_id"`
	AuthorID      string `json:"author_id"`
	Reward        int64  `json:"reward"`
	Fee           int64  `json:"fee"`
	// AuthorBalance is the answer author's balance after the payout.
	AuthorBalance int64 `json:"balance"`
}

// RewardService selects best answers and pays stakes.
type RewardService struct {
	DB    *gorm.DB
	Coins *CoinService

	Retry RetryPolicy
	Now   func() time.Time
}

// SelectBestAnswer marks answerID as the best answer of its thread, resolves
// the thread and credits the stake minus the frozen fee to the answer's
// author. threadID may be empty; when set it must be the answer's thread.
// Only the thread owner may select, and only while the thread is open.
func (s *RewardService) SelectBestAnswer(ctx context.Context, threadID, answerID, selectorID string) (*RewardResult, error) {
	ctx, span := otel.Tracer("services/RewardService").Start(ctx, "SelectBestAnswer",
		trace.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.String("answer.id", answerID),
			attribute.String("user.id", selectorID),
		),
	)
	defer span.End()

	var (
		out *RewardResult
		ev  *domain.CoinEvent
	)
	err := inTx(ctx, s.DB, s.Retry, func(tx *gorm.DB) error {
		out, ev = nil, nil

		a, t, err := answerWithThread(ctx, tx, answerID)
		if err != nil {
			return err
		}
		if threadID != "" && threadID != a.ThreadID {
			return ErrAnswerNotFound
		}
		if t.OwnerID != selectorID {
			return ErrNotThreadOwner
		}
		if t.Status != domain.ThreadOpen {
			return ErrAlreadyResolved
		}

		ok, err := repo.TransitionThreadStatus(ctx, tx, t.ID, domain.ThreadOpen, domain.ThreadResolved)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyResolved
		}
		if err := repo.ClearBestAnswers(ctx, tx, t.ID); err != nil {
			return err
		}
		if err := repo.SetBestAnswer(ctx, tx, t.ID, a.ID); err != nil {
			if repo.IsNotFound(err) {
				return ErrAnswerNotFound
			}
			return err
		}

		out = &RewardResult{ThreadID: t.ID, AnswerID: a.ID, AuthorID: a.AuthorID, Fee: t.CoinFee}
		if t.CoinStake > 0 && !t.CoinRewardPaid {
			reward := max(t.CoinStake-t.CoinFee, 0)
			paid, err := repo.MarkRewardPaid(ctx, tx, t.ID, reward, clock(s.Now))
			if err != nil {
				return err
			}
			if !paid {
				return ErrAlreadyResolved
			}
			ev, err = s.Coins.CreditTx(ctx, tx, Entry{
				UserID:   a.AuthorID,
				Amount:   reward,
				Reason:   domain.ReasonBestAnswerReward,
				ThreadID: t.ID,
				AnswerID: a.ID,
				Key:      "reward:" + t.ID,
			})
			if err != nil {
				return err
			}
			out.Reward = reward
		}
		out.AuthorBalance, err = balanceTx(ctx, tx, a.AuthorID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		switch KindOf(err) {
		case KindConflict:
			bestAnswerSelections.WithLabelValues("conflict").Inc()
		default:
			bestAnswerSelections.WithLabelValues("rejected").Inc()
		}
		return nil, err
	}

	bestAnswerSelections.WithLabelValues("won").Inc()
	span.SetAttributes(attribute.Int64("coin.reward", out.Reward))
	zerolog.Ctx(ctx).Info().
		Str("thread_id", out.ThreadID).
		Str("answer_id", out.AnswerID).
		Int64("reward", out.Reward).
		Int64("fee", out.Fee).
		Msg("best answer selected")
	s.Coins.afterCommit(ctx, ev)
	return out, nil
}
