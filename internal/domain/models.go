// Package domain defines the persistence models for threads, answers, likes
// and profiles. These types are mapped with GORM and form the core data layer
// of the Q&A coin ledger.
package domain

import (
	"time"
)

// ThreadStatus is the lifecycle state of a thread.
type ThreadStatus string

const (
	// ThreadOpen is the initial state; answers are accepted.
	ThreadOpen ThreadStatus = "open"
	// ThreadResolved is terminal: a best answer was chosen or the owner
	// closed a zero-stake thread.
	ThreadResolved ThreadStatus = "resolved"
	// ThreadExpired is terminal: the deadline passed without a best answer
	// and the stake was refunded.
	ThreadExpired ThreadStatus = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s ThreadStatus) Valid() bool {
	switch s {
	case ThreadOpen, ThreadResolved, ThreadExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s ThreadStatus) Terminal() bool {
	return s == ThreadResolved || s == ThreadExpired
}

// Thread is a question posted by a user, optionally backed by a coin stake
// that is held in escrow until it is paid out or refunded.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - OwnerID: identifier of the asking user.
//   - Status: open, resolved or expired.
//   - Deadline: optional cut-off for new answers (UTC).
//   - CoinStake / CoinFee: escrowed amount and platform fee, frozen at creation.
//   - CoinRewardAmount / CoinRewardPaid / CoinRewardPaidAt: payout record.
//   - AnswersCount: materialised number of answers.
type Thread struct {
	ID               string       `json:"id"                           gorm:"type:char(36);primaryKey"`
	OwnerID          string       `json:"owner_id"                     gorm:"type:varchar(64);not null;index:idx_threads_owner"`
	Title            string       `json:"title"                        gorm:"type:varchar(200);not null"`
	Content          string       `json:"content"                      gorm:"type:text;not null"`
	SubjectTagID     int64        `json:"subject_tag_id"               gorm:"not null;index:idx_threads_subject"`
	Status           ThreadStatus `json:"status"                       gorm:"type:varchar(16);not null;default:'open';index:idx_threads_status_deadline,priority:1;check:status IN ('open','resolved','expired')"`
	Deadline         *time.Time   `json:"deadline,omitempty"           gorm:"index:idx_threads_status_deadline,priority:2"`
	CoinStake        int64        `json:"coin_stake"                   gorm:"not null;default:0;check:coin_stake >= 0"`
	CoinFee          int64        `json:"coin_fee"                     gorm:"not null;default:0;check:coin_fee >= 0"`
	CoinRewardAmount *int64       `json:"coin_reward_amount,omitempty"`
	CoinRewardPaid   bool         `json:"coin_reward_paid"             gorm:"not null;default:false"`
	CoinRewardPaidAt *time.Time   `json:"coin_reward_paid_at,omitempty"`
	AnswersCount     int64        `json:"answers_count"                gorm:"not null;default:0"`
	CreatedAt        time.Time    `json:"created_at"                   gorm:"index"`
	UpdatedAt        time.Time    `json:"updated_at"`

	// Joined on read; never stored.
	OwnerDisplayName string `json:"owner_display_name,omitempty" gorm:"->;-:migration"`
	SubjectTagName   string `json:"subject_tag_name,omitempty"   gorm:"->;-:migration"`
}

// TableName returns the database table name for Thread.
func (Thread) TableName() string { return "threads" }

// Escrowed reports whether the thread still holds an unresolved stake.
func (t *Thread) Escrowed() bool {
	return t.CoinStake > 0 && !t.CoinRewardPaid && t.Status == ThreadOpen
}

// Answer is a reply to a thread. At most one answer per thread carries
// IsBestAnswer.
type Answer struct {
	ID           string    `json:"id"             gorm:"type:char(36);primaryKey"`
	ThreadID     string    `json:"thread_id"      gorm:"type:char(36);not null;index:idx_answers_thread,priority:1"`
	AuthorID     string    `json:"author_id"      gorm:"type:varchar(64);not null;index"`
	Content      string    `json:"content"        gorm:"type:text;not null"`
	IsBestAnswer bool      `json:"is_best_answer" gorm:"not null;default:false"`
	LikesCount   int64     `json:"likes_count"    gorm:"not null;default:0;check:likes_count >= 0"`
	CreatedAt    time.Time `json:"created_at"     gorm:"index:idx_answers_thread,priority:2"`
	UpdatedAt    time.Time `json:"updated_at"`

	// IsLikedByMe is computed per viewer and never stored.
	IsLikedByMe bool `json:"is_liked_by_me" gorm:"-"`
	// AuthorDisplayName is joined from profiles on list.
	AuthorDisplayName string `json:"author_display_name,omitempty" gorm:"->;-:migration"`

	Thread Thread `json:"-" gorm:"foreignKey:ThreadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Answer.
func (Answer) TableName() string { return "answers" }

// AnswerLike records that a user likes an answer. The (answer_id, user_id)
// pair is unique.
type AnswerLike struct {
	AnswerID  string    `json:"answer_id"  gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);primaryKey;index"`
	CreatedAt time.Time `json:"created_at"`

	Answer Answer `json:"-" gorm:"foreignKey:AnswerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for AnswerLike.
func (AnswerLike) TableName() string { return "answer_likes" }

// SubjectTag names a subject a thread can be filed under. Tags are curated
// outside this service; threads reference them by id only.
type SubjectTag struct {
	ID   int64  `json:"id"   gorm:"primaryKey"`
	Name string `json:"name" gorm:"type:varchar(64);not null;uniqueIndex"`
}

// TableName returns the database table name for SubjectTag.
func (SubjectTag) TableName() string { return "subject_tags" }

// Profile mirrors the identity handed over by the auth collaborator and
// carries the materialised like reputation.
type Profile struct {
	UserID      string    `json:"user_id"      gorm:"type:varchar(64);primaryKey"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(100);not null;default:''"`
	IsAdmin     bool      `json:"is_admin"     gorm:"not null;default:false"`
	IsBanned    bool      `json:"is_banned"    gorm:"not null;default:false"`
	TotalLikes  int64     `json:"total_likes"  gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }
