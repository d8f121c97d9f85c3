// Package handlers defines the error codes returned by the scheduling API.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Every error response carries an HTTP status and one of
// these codes inside an ErrorResponse.
//
// Example:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_cancellable",
//	  "message": "post is not cancellable in its current state (status published)"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_failed"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Lifecycle preconditions.
	ErrCodeNotCancellable    = "not_cancellable"
	ErrCodeNotReschedulable  = "not_reschedulable"
	ErrCodeNotRetryable      = "not_retryable"
	ErrCodePublishInProgress = "publish_in_progress"
)
