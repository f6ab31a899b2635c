package domain

import "time"

// CommandMetadata contains contextual information about a command.
type CommandMetadata struct {
	// CommandID is the unique identifier for this command
	CommandID string

	// CorrelationID is used to trace related commands and events
	CorrelationID string

	// PrincipalID is the identifier of the principal executing this command
	PrincipalID string

	// Timestamp is when the command was created
	Timestamp time.Time

	// Custom allows for application-specific metadata
	Custom map[string]string
}

// EventMetadata derives the metadata stamped on events caused by this command.
func (m CommandMetadata) EventMetadata() EventMetadata {
	return EventMetadata{
		CausationID:   m.CommandID,
		CorrelationID: m.CorrelationID,
		PrincipalID:   m.PrincipalID,
		Custom:        m.Custom,
	}
}

// CommandEnvelope wraps a command with its metadata.
type CommandEnvelope struct {
	Command  any
	Metadata CommandMetadata
}

// CommandResult represents the result of processing a command.
type CommandResult struct {
	// CommandID is the ID of the command that was processed
	CommandID string

	// AggregateID is the stream the events were appended to
	AggregateID string

	// Events are the envelopes committed for the command, in order
	Events []*Event

	// Version is the aggregate version after the append
	Version int64

	// ProcessedAt is when the events were committed
	ProcessedAt time.Time
}
