// Package services – ThreadService
//
// This file implements ThreadService, the thread state machine. A thread is
// born open with its stake already debited from the owner in the same
// transaction as the insert. It leaves the open state exactly once: resolved
// (best answer through RewardService, or owner close of a zero-stake thread)
// or expired (deadline plus grace passed, stake refunded by the sweeper).
// Deleting an open staked thread refunds the stake in the deleting
// transaction.
package services

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-coin-ledger/internal/domain"
	"github.com/tbourn/go-coin-ledger/internal/repo"
	"github.com/tbourn/go-coin-ledger/internal/utils"
)

const (
	maxTitleRunes          = 200
	defaultMaxContentRunes = 20000
	expireBatchSize        = 100
)

// CreateThreadInput carries the fields of a new thread.
type CreateThreadInput struct {
	Title        string
	Content      string
	SubjectTagID int64
	Deadline     *time.Time
	CoinStake    int64
}

// ThreadPatch is a partial update. Nil fields are left unchanged.
type ThreadPatch struct {
	Status   *domain.ThreadStatus
	Deadline *time.Time
}

// ThreadService implements the thread lifecycle.
type ThreadService struct {
	DB    *gorm.DB
	Coins *CoinService

	Fees            FeePolicy
	MinStake        int64
	MaxContentRunes int
	ExpiryGrace     time.Duration

	Retry RetryPolicy
	Now   func() time.Time
}

// Create validates in, computes the fee and inserts the thread while
// debiting the stake from ownerID. Either both happen or neither does.
func (s *ThreadService) Create(ctx context.Context, ownerID string, in CreateThreadInput) (*domain.Thread, error) {
	ctx, span := otel.Tracer("services/ThreadService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", ownerID),
			attribute.Int64("coin.stake", in.CoinStake),
		),
	)
	defer span.End()

	now := clock(s.Now)
	title := utils.NormalizeTitle(in.Title)
	content := utils.SanitizeContent(in.Content)
	if n := utf8.RuneCountInString(title); n == 0 || n > maxTitleRunes {
		return nil, ErrInvalidTitle
	}
	if err := checkContent(content, s.MaxContentRunes); err != nil {
		return nil, err
	}
	if in.SubjectTagID <= 0 {
		return nil, ErrInvalidSubject
	}
	if in.CoinStake < 0 || in.CoinStake < s.MinStake {
		return nil, ErrInvalidStake
	}
	var deadline *time.Time
	if in.Deadline != nil {
		d := in.Deadline.UTC()
		if !d.After(now) {
			return nil, ErrInvalidDeadline
		}
		deadline = &d
	}

	var (
		t  *domain.Thread
		ev *domain.CoinEvent
	)
	err := inTx(ctx, s.DB, s.Retry, func(tx *gorm.DB) error {
		ev = nil
		t = &domain.Thread{
			OwnerID:      ownerID,
			Title:        title,
			Content:      content,
			SubjectTagID: in.SubjectTagID,
			Status:       domain.ThreadOpen,
			Deadline:     deadline,
			CoinStake:    in.CoinStake,
			CoinFee:      s.Fees.Fee(in.CoinStake),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := repo.CreateThread(ctx, tx, t); err != nil {
			return err
		}
		if t.CoinStake == 0 {
			return nil
		}
		var err error
		ev, err = s.Coins.DebitTx(ctx, tx, Entry{
			UserID:   ownerID,
			Amount:   t.CoinStake,
			Reason:   domain.ReasonQuestionSpent,
			ThreadID: t.ID,
			Key:      "stake:" + t.ID,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.Coins.afterCommit(ctx, ev)
	zerolog.Ctx(ctx).Info().
		Str("thread_id", t.ID).
		Int64("stake", t.CoinStake).
		Int64("fee", t.CoinFee).
		Msg("thread created")
	return t, nil
}

// Get returns a thread by id.
func (s *ThreadService) Get(ctx context.Context, id string) (*domain.Thread, error) {
	t, err := repo.GetThreadDetails(ctx, s.DB, id)
	if repo.IsNotFound(err) {
		return nil, ErrThreadNotFound
	}
	return t, err
}

// ListPage returns a page of threads matching f and the total count.
func (s *ThreadService) ListPage(ctx context.Context, f repo.ThreadFilter, page, pageSize int) ([]domain.Thread, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	pg := utils.Page{Number: page, Size: pageSize}.Clamp(20, 0)

	total, err := repo.CountThreads(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Thread{}, 0, nil
	}
	items, err := repo.ListThreadsPage(ctx, s.DB, f, pg.Offset(), pg.Size)
	return items, total, err
}

// Stats returns the count and latest update of threads matching f, for
// conditional responses.
func (s *ThreadService) Stats(ctx context.Context, f repo.ThreadFilter) (int64, *time.Time, error) {
	return repo.ThreadsStats(ctx, s.DB, f)
}

// Update applies an owner's patch. The deadline can only change while the
// thread is open. The only status change allowed here is open -> resolved
// for a thread without stake; terminal threads never reopen.
func (s *ThreadService) Update(ctx context.Context, actor Identity, id string, p ThreadPatch) (*domain.Thread, error) {
	if p.Status == nil && p.Deadline == nil {
		return nil, ErrEmptyPatch
	}
	if p.Status != nil && !p.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	now := clock(s.Now)
	var deadline *time.Time
	if p.Deadline != nil {
		d := p.Deadline.UTC()
		if !d.After(now) {
			return nil, ErrInvalidDeadline
		}
		deadline = &d
	}

	var out *domain.Thread
	err := inTx(ctx, s.DB, s.Retry, func(tx *gorm.DB) error {
		t, err := repo.GetThread(ctx, tx, id)
		if repo.IsNotFound(err) {
			return ErrThreadNotFound
		}
		if err != nil {
			return err
		}
		if t.OwnerID != actor.UserID {
			return ErrNotThreadOwner
		}

		if deadline != nil {
			ok, err := repo.UpdateThreadDeadline(ctx, tx, id, deadline)
			if err != nil {
				return err
			}
			if !ok {
				return ErrInvalidTransition
			}
		}

		if p.Status != nil && *p.Status != t.Status {
			switch {
			case t.Status.Terminal():
				return ErrInvalidTransition
			case *p.Status != domain.ThreadResolved:
				return ErrInvalidTransition
			case t.CoinStake > 0 && !t.CoinRewardPaid:
				return ErrStakedResolve
			}
			ok, err := repo.TransitionThreadStatus(ctx, tx, id, domain.ThreadOpen, domain.ThreadResolved)
			if err != nil {
				return err
			}
			if !ok {
				return ErrAlreadyResolved
			}
		}

		out, err = repo.GetThreadDetails(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a thread with its answers and likes. The owner or an admin
// may delete. An open thread still holding its stake is refunded in the same
// transaction. It returns the refunded amount.
func (s *ThreadService) Delete(ctx context.Context, actor Identity, id string) (int64, error) {
	var (
		refunded int64
		ev       *domain.CoinEvent
	)
	err := inTx(ctx, s.DB, s.Retry, func(tx *gorm.DB) error {
		t, err := repo.GetThreadForUpdate(ctx, tx, id)
		if repo.IsNotFound(err) {
			return ErrThreadNotFound
		}
		if err != nil {
			return err
		}
		if t.OwnerID != actor.UserID && !actor.IsAdmin {
			return ErrNotThreadOwner
		}
		refunded, ev, err = s.deleteTx(ctx, tx, t)
		return err
	})
	if err != nil {
		return 0, err
	}
	if refunded > 0 {
		threadsRefunded.WithLabelValues("delete").Inc()
	}
	s.Coins.afterCommit(ctx, ev)
	return refunded, nil
}

// deleteTx deletes t. An open snapshot only counts once ClaimThreadEscrow
// succeeds; losing that race to a payout yields ErrAlreadyResolved and
// nothing is refunded.
func (s *ThreadService) deleteTx(ctx context.Context, tx *gorm.DB, t *domain.Thread) (int64, *domain.CoinEvent, error) {
	if t.Status == domain.ThreadOpen {
		ok, err := repo.ClaimThreadEscrow(ctx, tx, t.ID)
		if err != nil {
			return 0, nil, err
		}
		if !ok {
			return 0, nil, ErrAlreadyResolved
		}
	}

	answers, err := repo.LockAnswersByThread(ctx, tx, t.ID)
	if err != nil {
		return 0, nil, err
	}
	for _, a := range answers {
		if err := dropLikes(ctx, tx, &a); err != nil {
			return 0, nil, err
		}
	}
	if err := repo.DeleteAnswersByThread(ctx, tx, t.ID); err != nil {
		return 0, nil, err
	}

	var (
		refunded int64
		ev       *domain.CoinEvent
	)
	if t.Escrowed() {
		ev, err = s.Coins.CreditTx(ctx, tx, Entry{
			UserID:   t.OwnerID,
			Amount:   t.CoinStake,
			Reason:   domain.ReasonQuestionRefund,
			ThreadID: t.ID,
			Key:      "refund:" + t.ID,
		})
		if err != nil {
			return 0, nil, err
		}
		refunded = t.CoinStake
	}
	return refunded, ev, repo.DeleteThread(ctx, tx, t.ID)
}

// ExpireOverdue expires open staked threads whose deadline passed more than
// ExpiryGrace ago and refunds their stake. Each thread is handled in its own
// transaction; it returns how many were expired.
func (s *ThreadService) ExpireOverdue(ctx context.Context) (int, error) {
	now := clock(s.Now)
	cutoff := now.Add(-s.ExpiryGrace)
	ids, err := repo.ListOverdueThreadIDs(ctx, s.DB, cutoff, expireBatchSize)
	if err != nil {
		return 0, err
	}

	lg := zerolog.Ctx(ctx)
	expired := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		var ev *domain.CoinEvent
		err := inTx(ctx, s.DB, s.Retry, func(tx *gorm.DB) error {
			ev = nil
			ok, err := repo.ExpireThread(ctx, tx, id, cutoff)
			if err != nil || !ok {
				return err
			}
			t, err := repo.GetThread(ctx, tx, id)
			if err != nil {
				return err
			}
			ev, err = s.Coins.CreditTx(ctx, tx, Entry{
				UserID:   t.OwnerID,
				Amount:   t.CoinStake,
				Reason:   domain.ReasonQuestionRefund,
				ThreadID: t.ID,
				Key:      "refund:" + t.ID,
			})
			return err
		})
		if err != nil {
			lg.Warn().Err(err).Str("thread_id", id).Msg("expire thread failed")
			continue
		}
		if ev == nil {
			continue
		}
		expired++
		threadsRefunded.WithLabelValues("expiry").Inc()
		s.Coins.afterCommit(ctx, ev)
	}
	return expired, nil
}

func checkContent(content string, limit int) error {
	if limit <= 0 {
		limit = defaultMaxContentRunes
	}
	if content == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > limit {
		return ErrContentTooLong
	}
	return nil
}
