package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-coin-ledger/internal/domain"
	"github.com/tbourn/go-coin-ledger/internal/repo"
)

func TestAnswer_CreateCountsAndRespectsDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "owner")
	f.user(t, "helper")
	deadline := f.clock.Now().Add(time.Hour)
	th, err := f.threads.Create(ctx, "owner", CreateThreadInput{
		Title: "q", Content: "c", SubjectTagID: 1, Deadline: &deadline,
	})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}

	f.answer(t, "helper", th.ID)
	got, _ := f.threads.Get(ctx, th.ID)
	if got.AnswersCount != 1 {
		t.Fatalf("answers_count = %d; want 1", got.AnswersCount)
	}

	f.clock.Advance(2 * time.Hour)
	if _, err := f.answers.Create(ctx, "helper", th.ID, "late"); !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("late answer err = %v", err)
	}
	if _, err := f.answers.Create(ctx, "helper", "missing", "x"); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("missing thread err = %v", err)
	}
	if _, err := f.answers.Create(ctx, "helper", th.ID, "   "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("blank err = %v", err)
	}
}

func TestAnswer_CreateRejectedOnResolvedThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "owner")
	f.user(t, "helper")
	th := f.thread(t, "owner", 10)
	a := f.answer(t, "helper", th.ID)
	if _, err := f.rewards.SelectBestAnswer(ctx, th.ID, a.ID, "owner"); err != nil {
		t.Fatalf("select: %v", err)
	}

	if _, err := f.answers.Create(ctx, "helper", th.ID, "one more"); !errors.Is(err, ErrThreadResolved) {
		t.Fatalf("err = %v; want ErrThreadResolved", err)
	}
	got, _ := f.threads.Get(ctx, th.ID)
	if got.AnswersCount != 1 {
		t.Fatalf("answers_count = %d; want 1", got.AnswersCount)
	}
}

func TestAnswer_LikeUnlikeCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "owner")
	f.user(t, "helper")
	f.user(t, "fan")
	th := f.thread(t, "owner", 0)
	a := f.answer(t, "helper", th.ID)

	if _, err := f.answers.Like(ctx, a.ID, "owner"); !errors.Is(err, ErrOwnerLike) {
		t.Fatalf("owner like err = %v", err)
	}

	st, err := f.answers.Like(ctx, a.ID, "fan")
	if err != nil || st.LikesCount != 1 || !st.IsLikedByMe {
		t.Fatalf("like = %+v, %v", st, err)
	}
	if _, err := f.answers.Like(ctx, a.ID, "fan"); !errors.Is(err, ErrAlreadyLiked) {
		t.Fatalf("double like err = %v", err)
	}
	st, err = f.answers.Like(ctx, a.ID, "helper")
	if err != nil || st.LikesCount != 2 {
		t.Fatalf("self like = %+v, %v", st, err)
	}

	p, _ := repo.GetProfile(ctx, f.db, "helper")
	if p.TotalLikes != 2 {
		t.Fatalf("total_likes = %d; want 2", p.TotalLikes)
	}

	list, err := f.answers.ListByThread(ctx, th.ID, "fan")
	if err != nil || len(list) != 1 || !list[0].IsLikedByMe {
		t.Fatalf("list for fan = %+v, %v", list, err)
	}
	list, _ = f.answers.ListByThread(ctx, th.ID, "")
	if list[0].IsLikedByMe {
		t.Fatalf("anonymous viewer sees a like")
	}

	st, err = f.answers.Unlike(ctx, a.ID, "fan")
	if err != nil || st.LikesCount != 1 || st.IsLikedByMe {
		t.Fatalf("unlike = %+v, %v", st, err)
	}
	if _, err := f.answers.Unlike(ctx, a.ID, "fan"); !errors.Is(err, ErrLikeNotFound) {
		t.Fatalf("double unlike err = %v", err)
	}
	if _, err := f.answers.Like(ctx, "missing", "fan"); !errors.Is(err, ErrAnswerNotFound) {
		t.Fatalf("missing answer err = %v", err)
	}

	n := f.count(t, &domain.AnswerLike{}, "answer_id = ?", a.ID)
	got, _ := repo.GetAnswer(ctx, f.db, a.ID)
	if n != got.LikesCount {
		t.Fatalf("like rows %d != likes_count %d", n, got.LikesCount)
	}
}

func TestAnswer_ConcurrentLikesMatchRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "owner")
	f.user(t, "helper")
	th := f.thread(t, "owner", 0)
	a := f.answer(t, "helper", th.ID)

	users := []string{"u1", "u2", "u3", "u4", "u5"}
	var wg sync.WaitGroup
	for _, u := range users {
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				if _, err := f.answers.Like(ctx, a.ID, u); err != nil && !errors.Is(err, ErrAlreadyLiked) {
					t.Errorf("like %s: %v", u, err)
				}
			}(u)
		}
	}
	wg.Wait()

	got, _ := repo.GetAnswer(ctx, f.db, a.ID)
	n := f.count(t, &domain.AnswerLike{}, "answer_id = ?", a.ID)
	if got.LikesCount != int64(len(users)) || n != int64(len(users)) {
		t.Fatalf("likes_count=%d rows=%d; want %d", got.LikesCount, n, len(users))
	}
	p, _ := repo.GetProfile(ctx, f.db, "helper")
	if p.TotalLikes != int64(len(users)) {
		t.Fatalf("total_likes = %d; want %d", p.TotalLikes, len(users))
	}
}

func TestAnswer_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	helper := f.user(t, "helper")
	f.user(t, "fan")
	th := f.thread(t, "owner", 10)
	a1 := f.answer(t, "helper", th.ID)
	a2 := f.answer(t, "helper", th.ID)
	if _, err := f.answers.Like(ctx, a2.ID, "fan"); err != nil {
		t.Fatalf("like: %v", err)
	}

	if err := f.answers.Delete(ctx, owner, a2.ID); !errors.Is(err, ErrNotAnswerOwner) {
		t.Fatalf("owner delete err = %v", err)
	}
	if err := f.answers.Delete(ctx, helper, a2.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := f.threads.Get(ctx, th.ID)
	if got.AnswersCount != 1 {
		t.Fatalf("answers_count = %d; want 1", got.AnswersCount)
	}
	p, _ := repo.GetProfile(ctx, f.db, "helper")
	if p.TotalLikes != 0 {
		t.Fatalf("total_likes = %d; want 0", p.TotalLikes)
	}

	if _, err := f.rewards.SelectBestAnswer(ctx, "", a1.ID, "owner"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := f.answers.Delete(ctx, Identity{UserID: "mod", IsAdmin: true}, a1.ID); !errors.Is(err, ErrBestAnswerDelete) {
		t.Fatalf("best delete err = %v", err)
	}
	if err := f.answers.Delete(ctx, helper, "missing"); !errors.Is(err, ErrAnswerNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}

func TestAnswer_ListOrdersBestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "owner")
	f.user(t, "h1")
	f.user(t, "h2")
	th := f.thread(t, "owner", 0)
	f.answer(t, "h1", th.ID)
	f.clock.Advance(time.Minute)
	second := f.answer(t, "h2", th.ID)
	if _, err := f.rewards.SelectBestAnswer(ctx, th.ID, second.ID, "owner"); err != nil {
		t.Fatalf("select: %v", err)
	}

	list, err := f.answers.ListByThread(ctx, th.ID, "")
	if err != nil || len(list) != 2 {
		t.Fatalf("list = %v, %v", list, err)
	}
	if list[0].ID != second.ID || !list[0].IsBestAnswer {
		t.Fatalf("first = %+v; want best answer", list[0])
	}
	if _, err := f.answers.ListByThread(ctx, "missing", ""); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}

func TestAnswer_DeleteUsesLikeRowsNotCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	helper := f.user(t, "helper")
	f.user(t, "owner")
	th := f.thread(t, "owner", 0)
	a1 := f.answer(t, "helper", th.ID)
	a2 := f.answer(t, "helper", th.ID)
	for _, fan := range []string{"f1", "f2"} {
		if _, err := f.answers.Like(ctx, a1.ID, fan); err != nil {
			t.Fatalf("like a1: %v", err)
		}
	}
	if _, err := f.answers.Like(ctx, a2.ID, "f3"); err != nil {
		t.Fatalf("like a2: %v", err)
	}

	// A drifted counter must not leak into total_likes.
	if err := f.db.Model(&domain.Answer{}).Where("id = ?", a1.ID).Update("likes_count", 9).Error; err != nil {
		t.Fatalf("skew counter: %v", err)
	}
	if err := f.answers.Delete(ctx, helper, a1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	p, _ := repo.GetProfile(ctx, f.db, "helper")
	if p.TotalLikes != 1 {
		t.Fatalf("total_likes = %d; want 1", p.TotalLikes)
	}
	if n := f.count(t, &domain.AnswerLike{}, "answer_id = ?", a1.ID); n != 0 {
		t.Fatalf("orphan likes = %d", n)
	}
}

func TestAnswer_ListCarriesAuthorName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "owner")
	f.user(t, "helper")
	th := f.thread(t, "owner", 0)
	f.answer(t, "helper", th.ID)

	list, err := f.answers.ListByThread(ctx, th.ID, "")
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %+v, %v", list, err)
	}
	if list[0].AuthorDisplayName != "helper" {
		t.Fatalf("author_display_name = %q; want helper", list[0].AuthorDisplayName)
	}
}
