// Package services defines the business logic for scheduled posts.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into HTTP status codes or tool errors is performed by the
// transport layers.
package services

import "errors"

// Validation errors. No record is created or modified when one is returned.
var (
	// ErrScheduleInPast is returned when scheduled_time is not strictly after now.
	ErrScheduleInPast = errors.New("scheduled_time must be in the future")

	// ErrInvalidTime is returned when scheduled_time cannot be parsed.
	ErrInvalidTime = errors.New("scheduled_time must be an RFC 3339 timestamp")

	// ErrEmptyContent is returned when content is blank after normalization.
	ErrEmptyContent = errors.New("content is empty")

	// ErrContentTooLong is returned when content exceeds the configured rune limit.
	ErrContentTooLong = errors.New("content too long")

	// ErrInvalidVisibility is returned for an unknown visibility value.
	ErrInvalidVisibility = errors.New("visibility must be one of PUBLIC, CONNECTIONS, LOGGED_IN, CONTAINER")

	// ErrInvalidLinkURL is returned when link_url is not an absolute http(s) URL.
	ErrInvalidLinkURL = errors.New("link_url must be an absolute http or https URL")

	// ErrInvalidStatus is returned for an unknown status filter.
	ErrInvalidStatus = errors.New("status must be one of pending, published, failed, cancelled")
)

// Not-found and precondition errors. State is never mutated when returned.
var (
	// ErrPostNotFound indicates that no post has the requested id.
	ErrPostNotFound = errors.New("scheduled post not found")

	// ErrNotCancellable is returned when cancel targets a post that is not pending.
	ErrNotCancellable = errors.New("post is not cancellable in its current state")

	// ErrNotReschedulable is returned when reschedule targets a post that is not pending.
	ErrNotReschedulable = errors.New("post is not reschedulable in its current state")

	// ErrNotRetryable is returned when retry targets a post that is not failed.
	ErrNotRetryable = errors.New("only failed posts can be retried")

	// ErrPublishInProgress is returned when the daemon is publishing the post.
	ErrPublishInProgress = errors.New("post is being published")
)

// ValidationError reports which input field failed and why. It unwraps to
// one of the sentinel validation errors above.
type ValidationError struct {
	Field  string
	Err    error
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return e.Field + ": " + e.Err.Error()
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
