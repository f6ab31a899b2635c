package domain

import "errors"

var (
	// ErrConcurrencyConflict is returned when the expected version does not match the stream.
	ErrConcurrencyConflict = errors.New("concurrency conflict: aggregate version mismatch")

	// ErrInvalidVersion is returned when an invalid expected version is provided.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrInvalidCommand is returned when a command envelope is malformed.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrCommandNotFound is returned when no handler is registered for a command type.
	ErrCommandNotFound = errors.New("command handler not found")

	// ErrUnknownEvent is returned when a persisted event cannot be decoded.
	// A stream containing such an event cannot be folded and the host should treat it as fatal.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrDuplicateEvent is returned when an event id has already been appended.
	ErrDuplicateEvent = errors.New("duplicate event id")

	// ErrCheckpointNotFound is returned when a projection has no checkpoint yet.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)
