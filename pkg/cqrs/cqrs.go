// Package cqrs defines the JSON wire format for submitting commands to a
// remote command bus.
package cqrs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/eventsourcing"
)

// Request headers carrying command metadata.
const (
	HeaderCommandID     = "Command-Id"
	HeaderCorrelationID = "Correlation-Id"
	HeaderPrincipalID   = "Principal-Id"
)

// Response is the reply to a submitted command.
type Response struct {
	Success     bool       `json:"success"`
	AggregateID string     `json:"aggregate_id,omitempty"`
	Version     int64      `json:"version,omitempty"`
	Events      []EventDTO `json:"events,omitempty"`
	Error       *Error     `json:"error,omitempty"`
}

// EventDTO is a committed event as seen by remote callers.
type EventDTO struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion string          `json:"schema_version"`
	Version       int64           `json:"version"`
	Payload       json.RawMessage `json:"payload"`
}

// Error is a failed command as seen by remote callers.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches another *Error with the same code, and the framework
// sentinels behind the framework codes.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	switch e.Code {
	case eventsourcing.CodeConflict:
		return target == domain.ErrConcurrencyConflict
	case eventsourcing.CodeInvalidCommand:
		return target == domain.ErrInvalidCommand
	case eventsourcing.CodeUnknownCommand:
		return target == domain.ErrCommandNotFound
	}
	return false
}

// NewResponse builds a success response from committed envelopes.
func NewResponse(aggregateID string, events []*domain.Event) *Response {
	resp := &Response{
		Success:     true,
		AggregateID: aggregateID,
		Events:      make([]EventDTO, len(events)),
	}
	for i, e := range events {
		resp.Events[i] = EventDTO{
			EventID:       e.ID,
			EventType:     e.EventType,
			SchemaVersion: e.SchemaVersion,
			Version:       e.Version,
			Payload:       json.RawMessage(e.Data),
		}
		resp.Version = e.Version
	}
	return resp
}

// ErrorResponse builds a failure response; the code comes from eventsourcing.ErrorCode.
func ErrorResponse(aggregateID string, err error) *Response {
	return &Response{
		AggregateID: aggregateID,
		Error: &Error{
			Code:    eventsourcing.ErrorCode(err),
			Message: err.Error(),
		},
	}
}

// Err returns the response error, or nil on success.
func (r *Response) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == nil {
		return &Error{Code: eventsourcing.CodeUnknown, Message: "command failed without error details"}
	}
	return r.Error
}
