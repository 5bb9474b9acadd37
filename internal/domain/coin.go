package domain

import "time"

// CoinReason classifies a ledger entry.
type CoinReason string

const (
	ReasonSignupBonus      CoinReason = "signup_bonus"
	ReasonDailyBonus       CoinReason = "daily_bonus"
	ReasonQuestionSpent    CoinReason = "question_spent"
	ReasonQuestionRefund   CoinReason = "question_refund"
	ReasonBestAnswerReward CoinReason = "best_answer_reward"
	ReasonAdminAdjust      CoinReason = "admin_adjust"
)

// Valid reports whether r is a known reason.
func (r CoinReason) Valid() bool {
	switch r {
	case ReasonSignupBonus, ReasonDailyBonus, ReasonQuestionSpent,
		ReasonQuestionRefund, ReasonBestAnswerReward, ReasonAdminAdjust:
		return true
	}
	return false
}

// CoinAccount is the cached balance of a user. Balance always equals the
// sum of the user's CoinEvent deltas and never drops below zero.
type CoinAccount struct {
	UserID             string     `json:"user_id"                          gorm:"type:varchar(64);primaryKey"`
	Balance            int64      `json:"balance"                          gorm:"not null;default:0;check:balance >= 0;index"`
	LastDailyClaimedAt *time.Time `json:"last_daily_claimed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName returns the database table name for CoinAccount.
func (CoinAccount) TableName() string { return "coin_accounts" }

// CoinEvent is an immutable ledger entry. IdempotencyKey, when set, is
// unique per user and makes stake, payout, refund and bonus entries
// impossible to apply twice.
type CoinEvent struct {
	ID             string     `json:"id"                  gorm:"type:char(36);primaryKey"`
	UserID         string     `json:"user_id"             gorm:"type:varchar(64);not null;index:idx_coin_events_user_created,priority:1;uniqueIndex:ux_coin_events_user_key,priority:1"`
	Delta          int64      `json:"delta"               gorm:"not null"`
	Reason         CoinReason `json:"reason"              gorm:"type:varchar(32);not null;check:reason IN ('signup_bonus','daily_bonus','question_spent','question_refund','best_answer_reward','admin_adjust')"`
	ThreadID       *string    `json:"thread_id,omitempty" gorm:"type:char(36);index"`
	AnswerID       *string    `json:"answer_id,omitempty" gorm:"type:char(36)"`
	BalanceAfter   int64      `json:"balance_after"       gorm:"not null"`
	IdempotencyKey *string    `json:"-"                   gorm:"type:varchar(128);uniqueIndex:ux_coin_events_user_key,priority:2"`
	Note           string     `json:"note,omitempty"      gorm:"type:varchar(255);not null;default:''"`
	CreatedAt      time.Time  `json:"created_at"          gorm:"index:idx_coin_events_user_created,priority:2,sort:desc"`
}

// TableName returns the database table name for CoinEvent.
func (CoinEvent) TableName() string { return "coin_events" }

// RankingEntry is one row of the balance leaderboard.
type RankingEntry struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Balance     int64  `json:"balance"`
}
