package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-coin-ledger/internal/domain"
	"github.com/tbourn/go-coin-ledger/internal/repo"
)

// newTestDB opens a private in-memory database. A single connection keeps
// concurrent tests serialized at the driver instead of failing with
// SQLITE_BUSY.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:coinsvc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: repo.UTCNow,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeClock is a settable clock for deadline and daily-claim tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now.UTC()} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingPublisher captures published ledger events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.CoinEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...domain.CoinEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return p.err
}

func (p *recordingPublisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// fixture wires every service against one database.
type fixture struct {
	db      *gorm.DB
	clock   *fakeClock
	pub     *recordingPublisher
	coins   *CoinService
	threads *ThreadService
	answers *AnswerService
	rewards *RewardService
	profile *ProfileService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	clk := newFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	pub := &recordingPublisher{}
	retry := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	coins := &CoinService{
		DB:          db,
		DailyBonus:  20,
		SignupBonus: 100,
		Retry:       retry,
		Now:         clk.Now,
		Events:      pub,
	}
	return &fixture{
		db:    db,
		clock: clk,
		pub:   pub,
		coins: coins,
		threads: &ThreadService{
			DB:          db,
			Coins:       coins,
			Fees:        FeePolicy{Mode: FeePercent, Value: 10},
			MinStake:    0,
			ExpiryGrace: 72 * time.Hour,
			Retry:       retry,
			Now:         clk.Now,
		},
		answers: &AnswerService{DB: db, Retry: retry, Now: clk.Now},
		rewards: &RewardService{DB: db, Coins: coins, Retry: retry, Now: clk.Now},
		profile: &ProfileService{DB: db, Coins: coins, Retry: retry},
	}
}

// user registers id and returns its identity. New users receive the signup
// bonus.
func (f *fixture) user(t *testing.T, id string) Identity {
	t.Helper()
	ident := Identity{UserID: id, DisplayName: id}
	if _, err := f.profile.Ensure(context.Background(), ident); err != nil {
		t.Fatalf("ensure %s: %v", id, err)
	}
	return ident
}

func (f *fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	b, err := f.coins.GetBalance(context.Background(), id)
	if err != nil {
		t.Fatalf("balance %s: %v", id, err)
	}
	return b.Balance
}

func (f *fixture) thread(t *testing.T, owner string, stake int64) *domain.Thread {
	t.Helper()
	th, err := f.threads.Create(context.Background(), owner, CreateThreadInput{
		Title:        "How do I invert a matrix?",
		Content:      "Looking for a step by step method.",
		SubjectTagID: 1,
		CoinStake:    stake,
	})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	return th
}

func (f *fixture) answer(t *testing.T, author, threadID string) *domain.Answer {
	t.Helper()
	a, err := f.answers.Create(context.Background(), author, threadID, "Use Gauss-Jordan elimination.")
	if err != nil {
		t.Fatalf("create answer: %v", err)
	}
	return a
}

// count returns how many rows of model match where.
func (f *fixture) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(model).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

func (f *fixture) hasEvent(t *testing.T, userID, key string) bool {
	t.Helper()
	return f.count(t, &domain.CoinEvent{}, "user_id = ? AND idempotency_key = ?", userID, key) == 1
}

func (f *fixture) bestAnswers(t *testing.T, threadID string) []string {
	t.Helper()
	var ids []string
	if err := f.db.Model(&domain.Answer{}).Where("thread_id = ? AND is_best_answer = ?", threadID, true).Pluck("id", &ids).Error; err != nil {
		t.Fatalf("best answers: %v", err)
	}
	return ids
}

func (f *fixture) assertConsistent(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := f.coins.VerifyConsistency(context.Background(), id); err != nil {
			t.Fatalf("ledger for %s inconsistent: %v", id, err)
		}
	}
}
