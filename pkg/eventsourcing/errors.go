package eventsourcing

import (
	"errors"

	"github.com/plaenen/learnerstore/pkg/domain"
)

// Stable error codes reported to callers outside the process.
const (
	CodeOK             = "OK"
	CodeConflict       = "CONFLICT"
	CodeInvalidCommand = "INVALID_COMMAND"
	CodeUnknownCommand = "UNKNOWN_COMMAND"
	CodeUnknown        = "UNKNOWN"
)

// Coder is implemented by errors that carry their own stable code.
type Coder interface {
	Code() string
}

// ErrorCode maps err to a stable code. Errors implementing Coder report
// their own code; framework sentinels map to the constants above.
func ErrorCode(err error) string {
	if err == nil {
		return CodeOK
	}

	var coder Coder
	if errors.As(err, &coder) {
		return coder.Code()
	}

	switch {
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return CodeConflict
	case errors.Is(err, domain.ErrInvalidCommand):
		return CodeInvalidCommand
	case errors.Is(err, domain.ErrCommandNotFound):
		return CodeUnknownCommand
	default:
		return CodeUnknown
	}
}
