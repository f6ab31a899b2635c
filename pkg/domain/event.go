package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Event is the persisted envelope of a domain event.
// Envelopes are immutable once appended to a stream.
type Event struct {
	// ID is the unique identifier for this event (deterministic when a command id is known)
	ID string `json:"id"`

	// AggregateID is the identifier of the aggregate this event belongs to
	AggregateID string `json:"aggregate_id"`

	// AggregateType is the kind of aggregate (e.g., "learner")
	AggregateType string `json:"aggregate_type"`

	// EventType is the stable name of the event variant (e.g., "LessonStarted")
	EventType string `json:"event_type"`

	// SchemaVersion tags the payload layout for wire compatibility
	SchemaVersion string `json:"schema_version"`

	// Version is the per-aggregate sequence number, starting at 1
	Version int64 `json:"version"`

	// Position is the store-wide append order, assigned by the event store
	Position int64 `json:"position,omitempty"`

	// Timestamp is when the event was decided
	Timestamp time.Time `json:"timestamp"`

	// Data is the encoded payload of the event variant
	Data []byte `json:"data"`

	// Metadata contains additional contextual information
	Metadata EventMetadata `json:"metadata"`
}

// EventMetadata contains contextual information about an event.
type EventMetadata struct {
	// CausationID is the ID of the command that caused this event
	CausationID string `json:"causation_id,omitempty"`

	// CorrelationID is used to trace related events across aggregates
	CorrelationID string `json:"correlation_id,omitempty"`

	// PrincipalID is the identifier of the principal who triggered this event
	PrincipalID string `json:"principal_id,omitempty"`

	// Custom allows for application-specific metadata
	Custom map[string]string `json:"custom,omitempty"`
}

// Clone returns a copy of the envelope that shares no mutable state with e.
func (e *Event) Clone() *Event {
	c := *e
	c.Data = append([]byte(nil), e.Data...)
	if e.Metadata.Custom != nil {
		c.Metadata.Custom = make(map[string]string, len(e.Metadata.Custom))
		for k, v := range e.Metadata.Custom {
			c.Metadata.Custom[k] = v
		}
	}
	return &c
}

// GenerateDeterministicEventID generates a deterministic event ID from command context.
// The same command always produces the same event IDs.
func GenerateDeterministicEventID(commandID, aggregateID string, sequence int) string {
	h := sha256.New()
	h.Write([]byte(fmt.Sprintf("%s:%s:%d", commandID, aggregateID, sequence)))
	return hex.EncodeToString(h.Sum(nil))[:32] // 128 bits
}
