package domain

import (
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestIdempotency_Migration_Indexes_AndInsert(t *testing.T) {
	db := newTestDB(t, &Idempotency{})
	m := db.Migrator()

	if !m.HasTable(&Idempotency{}) {
		t.Fatalf("expected table %q to exist", Idempotency{}.TableName())
	}
	if !m.HasIndex(&Idempotency{}, "ux_idem_user_scope_key") {
		t.Fatalf("expected composite index ux_idem_user_scope_key to exist")
	}

	now := time.Now().UTC()
	rec := &Idempotency{
		ID:        "id-1",
		UserID:    "u1",
		Scope:     "POST /api/v1/threads",
		Key:       "k1",
		Status:    201,
		Body:      []byte(`{"id":"t1"}`),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert valid: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "id-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.UserID != "u1" || got.Scope != rec.Scope || got.Key != "k1" || got.Status != 201 || string(got.Body) != `{"id":"t1"}` {
		t.Fatalf("unexpected row: %+v", got)
	}

	// (user_id, scope, key) must be unique.
	dup := *rec
	dup.ID = "id-2"
	if err := db.Create(&dup).Error; err == nil {
		t.Fatalf("expected UNIQUE constraint violation on (user_id, scope, key)")
	}

	// Same key under another scope is a different record.
	other := *rec
	other.ID = "id-3"
	other.Scope = "POST /api/v1/answers"
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("insert other scope: %v", err)
	}
}
