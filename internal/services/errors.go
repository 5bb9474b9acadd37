// Package services defines the business logic for the coin ledger, threads,
// answers, likes and best-answer rewards. This file centralizes the error
// taxonomy so that service methods return predictable values and handlers
// can translate them into HTTP status codes in one place.
package services

import "errors"

// Kind classifies a service failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindInsufficientFunds
	KindNotFound
	KindForbidden
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified service error with a stable machine-readable code.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is matches errors by code so wrapped sentinels compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of err, or "internal_error".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}

// Validation errors.
var (
	ErrInvalidAmount   = newErr(KindValidation, "invalid_amount", "amount must be positive")
	ErrInvalidReason   = newErr(KindValidation, "invalid_reason", "unknown coin reason")
	ErrInvalidTitle    = newErr(KindValidation, "invalid_title", "title must be 1-200 characters")
	ErrEmptyContent    = newErr(KindValidation, "empty_content", "content is empty")
	ErrContentTooLong  = newErr(KindValidation, "content_too_long", "content too long")
	ErrInvalidSubject  = newErr(KindValidation, "invalid_subject", "subject_tag_id must be positive")
	ErrInvalidDeadline = newErr(KindValidation, "invalid_deadline", "deadline must be in the future")
	ErrInvalidStake    = newErr(KindValidation, "invalid_stake", "coin_stake below minimum")
	ErrInvalidStatus   = newErr(KindValidation, "invalid_status", "unknown thread status")
	ErrEmptyPatch      = newErr(KindValidation, "empty_patch", "nothing to update")
	ErrThreadResolved  = newErr(KindValidation, "thread_resolved", "thread is not open for answers")
	ErrDeadlinePassed  = newErr(KindValidation, "deadline_passed", "thread deadline has passed")
	ErrInvalidIdentity = newErr(KindValidation, "invalid_identity", "user id is required")
)

// Money errors.
var (
	ErrInsufficientFunds = newErr(KindInsufficientFunds, "insufficient_funds", "insufficient coin balance")
)

// Not-found errors.
var (
	ErrThreadNotFound  = newErr(KindNotFound, "thread_not_found", "thread not found")
	ErrAnswerNotFound  = newErr(KindNotFound, "answer_not_found", "answer not found")
	ErrLikeNotFound    = newErr(KindNotFound, "like_not_found", "like not found")
	ErrProfileNotFound = newErr(KindNotFound, "profile_not_found", "profile not found")
)

// Forbidden errors.
var (
	ErrNotThreadOwner = newErr(KindForbidden, "not_thread_owner", "only the thread owner can do this")
	ErrNotAnswerOwner = newErr(KindForbidden, "not_answer_owner", "only the answer author can do this")
	ErrOwnerLike      = newErr(KindForbidden, "owner_cannot_like", "question owner cannot like answers on their own thread")
	ErrNotAdmin       = newErr(KindForbidden, "not_admin", "admin privileges required")
	ErrBanned         = newErr(KindForbidden, "banned", "user is banned")
)

// Conflict errors.
var (
	ErrAlreadyLiked      = newErr(KindConflict, "already_liked", "answer already liked")
	ErrAlreadyResolved   = newErr(KindConflict, "already_resolved", "thread is already resolved")
	ErrInvalidTransition = newErr(KindConflict, "invalid_transition", "thread status cannot change this way")
	ErrStakedResolve     = newErr(KindConflict, "staked_thread", "a staked thread is resolved by choosing a best answer")
	ErrBestAnswerDelete  = newErr(KindConflict, "best_answer_locked", "the best answer cannot be deleted")
	ErrDuplicateEntry    = newErr(KindConflict, "duplicate_entry", "ledger entry already recorded")
	ErrRetryExhausted    = newErr(KindConflict, "retry_exhausted", "concurrent update conflict, try again")
)

// ErrLedgerMismatch is returned when a cached balance diverges from its
// event sum.
var ErrLedgerMismatch = newErr(KindInternal, "ledger_mismatch", "balance does not match ledger")
