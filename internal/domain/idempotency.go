package domain

import "time"

// Idempotency records the result of a completed unsafe request, keyed by
// (user_id, scope, key). Scope is the route template plus the path target so
// the same key can be reused across unrelated endpoints. The stored status
// and body are replayed verbatim for retries within the TTL.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_idem_user_scope_key,priority:1"`
	Scope     string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_idem_user_scope_key,priority:2"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idem_user_scope_key,priority:3"`
	Status    int       `gorm:"not null"`
	Body      []byte
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
