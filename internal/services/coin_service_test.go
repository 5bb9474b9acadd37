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

func TestCoin_SignupBonusOnce(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice")
	f.user(t, "alice")
	if _, err := f.profile.Ensure(context.Background(), Identity{UserID: "alice", DisplayName: "Alice"}); err != nil {
		t.Fatalf("ensure rename: %v", err)
	}

	if got := f.balance(t, "alice"); got != 100 {
		t.Fatalf("balance = %d; want 100", got)
	}
	evs, err := f.coins.ListEvents(context.Background(), "alice", 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evs) != 1 || evs[0].Reason != domain.ReasonSignupBonus {
		t.Fatalf("events = %+v; want one signup bonus", evs)
	}
	f.assertConsistent(t, "alice")
}

func TestCoin_DebitInsufficientLeavesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "bob")

	_, err := f.coins.Debit(ctx, Entry{UserID: "bob", Amount: 101, Reason: domain.ReasonAdminAdjust})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v; want ErrInsufficientFunds", err)
	}
	if KindOf(err) != KindInsufficientFunds {
		t.Fatalf("kind = %v", KindOf(err))
	}
	if got := f.balance(t, "bob"); got != 100 {
		t.Fatalf("balance = %d; want 100", got)
	}

	bal, err := f.coins.Debit(ctx, Entry{UserID: "bob", Amount: 100, Reason: domain.ReasonAdminAdjust})
	if err != nil || bal != 0 {
		t.Fatalf("debit all = %d, %v; want 0, nil", bal, err)
	}
	f.assertConsistent(t, "bob")
}

func TestCoin_InvalidEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1")

	if _, err := f.coins.Debit(ctx, Entry{UserID: "u1", Amount: 0, Reason: domain.ReasonAdminAdjust}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero debit err = %v", err)
	}
	if _, err := f.coins.Credit(ctx, Entry{UserID: "u1", Amount: -5, Reason: domain.ReasonAdminAdjust}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative credit err = %v", err)
	}
	if _, err := f.coins.Credit(ctx, Entry{UserID: "u1", Amount: 5, Reason: "gift"}); !errors.Is(err, ErrInvalidReason) {
		t.Fatalf("bad reason err = %v", err)
	}
	bal, err := f.coins.Credit(ctx, Entry{UserID: "u1", Amount: 0, Reason: domain.ReasonAdminAdjust})
	if err != nil || bal != 100 {
		t.Fatalf("zero credit = %d, %v; want 100, nil", bal, err)
	}
}

func TestCoin_DuplicateKeyRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1")

	e := Entry{UserID: "u1", Amount: 5, Reason: domain.ReasonAdminAdjust, Key: "k1"}
	if _, err := f.coins.Credit(ctx, e); err != nil {
		t.Fatalf("first credit: %v", err)
	}
	if _, err := f.coins.Credit(ctx, e); !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("second credit err = %v; want ErrDuplicateEntry", err)
	}
	if got := f.balance(t, "u1"); got != 105 {
		t.Fatalf("balance = %d; want 105", got)
	}
	f.assertConsistent(t, "u1")
}

func TestCoin_ClaimDaily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1")

	first, err := f.coins.ClaimDaily(ctx, "u1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if first.AlreadyClaimed || first.Awarded != 20 || first.Balance != 120 {
		t.Fatalf("first claim = %+v", first)
	}

	second, err := f.coins.ClaimDaily(ctx, "u1")
	if err != nil {
		t.Fatalf("claim again: %v", err)
	}
	if !second.AlreadyClaimed || second.Awarded != 0 || second.Balance != 120 {
		t.Fatalf("second claim = %+v", second)
	}

	// Next UTC day.
	f.clock.Advance(12 * time.Hour)
	third, err := f.coins.ClaimDaily(ctx, "u1")
	if err != nil {
		t.Fatalf("claim next day: %v", err)
	}
	if third.AlreadyClaimed || third.Balance != 140 {
		t.Fatalf("third claim = %+v", third)
	}
	f.assertConsistent(t, "u1")
}

func TestCoin_ClaimDailyFromZeroBalance(t *testing.T) {
	f := newFixture(t)
	f.coins.SignupBonus = 0
	ctx := context.Background()
	f.user(t, "u1")

	if got := f.balance(t, "u1"); got != 0 {
		t.Fatalf("balance before claim = %d; want 0", got)
	}
	res, err := f.coins.ClaimDaily(ctx, "u1")
	if err != nil || res.AlreadyClaimed || res.Awarded != 20 || res.Balance != 20 {
		t.Fatalf("claim = %+v, %v; want 20 awarded", res, err)
	}
	if got := f.balance(t, "u1"); got != 20 {
		t.Fatalf("balance after claim = %d; want 20", got)
	}
	f.assertConsistent(t, "u1")
}

func TestCoin_ClaimDailyConcurrent(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1")

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		awarded int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.coins.ClaimDaily(context.Background(), "u1")
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if !res.AlreadyClaimed {
				mu.Lock()
				awarded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if awarded != 1 {
		t.Fatalf("awarded %d times; want 1", awarded)
	}
	if got := f.balance(t, "u1"); got != 120 {
		t.Fatalf("balance = %d; want 120", got)
	}
	f.assertConsistent(t, "u1")
}

func TestCoin_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1")

	const n = 10
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coins.Debit(context.Background(), Entry{UserID: "u1", Amount: 30, Reason: domain.ReasonAdminAdjust})
			switch {
			case err == nil:
				mu.Lock()
				ok++
				mu.Unlock()
			case !errors.Is(err, ErrInsufficientFunds):
				t.Errorf("debit: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 3 {
		t.Fatalf("successful debits = %d; want 3", ok)
	}
	if got := f.balance(t, "u1"); got != 10 {
		t.Fatalf("balance = %d; want 10", got)
	}
	f.assertConsistent(t, "u1")
}

func TestCoin_ListEventsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1")

	for i := 1; i <= 3; i++ {
		f.clock.Advance(time.Minute)
		if _, err := f.coins.Credit(ctx, Entry{UserID: "u1", Amount: int64(i), Reason: domain.ReasonAdminAdjust}); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	evs, err := f.coins.ListEvents(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evs) != 2 || evs[0].Delta != 3 || evs[1].Delta != 2 {
		t.Fatalf("events = %+v; want deltas 3, 2", evs)
	}
	if evs[0].BalanceAfter != 106 {
		t.Fatalf("balance_after = %d; want 106", evs[0].BalanceAfter)
	}
}

func TestCoin_RankingOrderAndCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "a")
	f.user(t, "b")
	f.user(t, "c")
	if _, err := f.coins.Credit(ctx, Entry{UserID: "b", Amount: 50, Reason: domain.ReasonAdminAdjust}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	cache := &memRanking{}
	f.coins.RankCache = cache

	top, err := f.coins.Ranking(ctx, 2)
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	if len(top) != 2 || top[0].UserID != "b" || top[1].UserID != "a" {
		t.Fatalf("ranking = %+v; want b then a", top)
	}
	if cache.sets != 1 {
		t.Fatalf("cache sets = %d; want 1", cache.sets)
	}
	if _, err := f.coins.Ranking(ctx, 2); err != nil {
		t.Fatalf("ranking again: %v", err)
	}
	if cache.hits != 1 {
		t.Fatalf("cache hits = %d; want 1", cache.hits)
	}

	if _, err := f.coins.Credit(ctx, Entry{UserID: "c", Amount: 1, Reason: domain.ReasonAdminAdjust}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if cache.invalidations != 1 {
		t.Fatalf("invalidations = %d; want 1", cache.invalidations)
	}
}

func TestCoin_AdminAdjust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1")
	admin := Identity{UserID: "root", IsAdmin: true}

	if _, err := f.coins.AdminAdjust(ctx, Identity{UserID: "u2"}, "u1", 5, ""); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("non-admin err = %v", err)
	}
	if _, err := f.coins.AdminAdjust(ctx, admin, "u1", 0, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero delta err = %v", err)
	}
	bal, err := f.coins.AdminAdjust(ctx, admin, "u1", -40, "correction")
	if err != nil || bal != 60 {
		t.Fatalf("adjust down = %d, %v; want 60", bal, err)
	}
	if _, err := f.coins.AdminAdjust(ctx, admin, "u1", -61, ""); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraw err = %v", err)
	}
	bal, err = f.coins.AdminAdjust(ctx, admin, "u1", 15, "")
	if err != nil || bal != 75 {
		t.Fatalf("adjust up = %d, %v; want 75", bal, err)
	}
	f.assertConsistent(t, "u1")
}

func TestCoin_PublishesAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1")
	if f.pub.Len() != 1 {
		t.Fatalf("published = %d; want 1 (signup)", f.pub.Len())
	}

	_, _ = f.coins.Debit(ctx, Entry{UserID: "u1", Amount: 500, Reason: domain.ReasonAdminAdjust})
	if f.pub.Len() != 1 {
		t.Fatalf("failed debit published an event")
	}

	f.pub.err = errors.New("broker down")
	if _, err := f.coins.Credit(ctx, Entry{UserID: "u1", Amount: 1, Reason: domain.ReasonAdminAdjust}); err != nil {
		t.Fatalf("credit must not fail on publish error: %v", err)
	}
}

func TestCoin_VerifyConsistencyDetectsDrift(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1")
	if err := repo.CreditBalance(context.Background(), f.db, "u1", 7); err != nil {
		t.Fatalf("raw credit: %v", err)
	}
	if err := f.coins.VerifyConsistency(context.Background(), "u1"); !errors.Is(err, ErrLedgerMismatch) {
		t.Fatalf("err = %v; want ErrLedgerMismatch", err)
	}
}

func TestCoin_GetBalanceUnknownUser(t *testing.T) {
	f := newFixture(t)
	b, err := f.coins.GetBalance(context.Background(), "ghost")
	if err != nil || b.Balance != 0 || b.LastDailyClaimedAt != nil {
		t.Fatalf("balance = %+v, %v; want zero", b, err)
	}
}

type memRanking struct {
	mu            sync.Mutex
	entries       map[int][]domain.RankingEntry
	hits          int
	sets          int
	invalidations int
}

func (m *memRanking) Get(_ context.Context, limit int) ([]domain.RankingEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[limit]
	if ok {
		m.hits++
	}
	return e, ok
}

func (m *memRanking) Set(_ context.Context, limit int, entries []domain.RankingEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[int][]domain.RankingEntry{}
	}
	m.entries[limit] = entries
	m.sets++
}

func (m *memRanking) Invalidate(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.invalidations++
}
