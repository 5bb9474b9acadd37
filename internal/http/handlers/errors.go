// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Transport-level failures (malformed JSON, bad path ids, unknown routes)
// use the generic codes below. Business failures carry the stable code of
// the service error that caused them (e.g. insufficient_funds,
// already_resolved, owner_cannot_like), mapped to a status by failErr.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "already_liked",
//	  "message": "answer already liked"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
