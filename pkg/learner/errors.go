package learner

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is matched by errors for lessons the lookup does not know.
	ErrNotFound = errors.New("not found")

	// ErrLookupFailed is matched by errors for lookups that could not complete.
	ErrLookupFailed = errors.New("lesson lookup failed")

	// ErrRejected is matched by every other decision failure.
	ErrRejected = errors.New("command rejected")
)

// LessonNotFoundError reports a lesson id the lookup does not know.
type LessonNotFoundError struct {
	LessonID uuid.UUID
}

func (e *LessonNotFoundError) Error() string {
	return fmt.Sprintf("lesson %s not found", e.LessonID)
}

// Is reports whether target is ErrNotFound.
func (e *LessonNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Code returns the wire code of the error.
func (e *LessonNotFoundError) Code() string { return "NOT_FOUND" }

// LookupFailedError reports a lookup that was reachable but failed, or was cancelled.
type LookupFailedError struct {
	LessonID uuid.UUID
	Err      error
}

func (e *LookupFailedError) Error() string {
	return fmt.Sprintf("lookup of lesson %s failed: %v", e.LessonID, e.Err)
}

// Is reports whether target is ErrLookupFailed.
func (e *LookupFailedError) Is(target error) bool {
	return target == ErrLookupFailed
}

// Unwrap returns the underlying failure.
func (e *LookupFailedError) Unwrap() error { return e.Err }

// Code returns the wire code of the error.
func (e *LookupFailedError) Code() string { return "LOOKUP_FAILED" }

// RejectedError is the catch-all decision failure.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string { return e.Message }

// Is reports whether target is ErrRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// Code returns the wire code of the error.
func (e *RejectedError) Code() string { return "REJECTED" }

// Reject returns a RejectedError with a formatted message.
func Reject(format string, args ...any) error {
	return &RejectedError{Message: fmt.Sprintf(format, args...)}
}
