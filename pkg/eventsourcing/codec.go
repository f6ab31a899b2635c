package eventsourcing

import (
	"fmt"

	"github.com/plaenen/learnerstore/pkg/domain"
)

// Codec converts between in-memory event values and envelope payloads.
type Codec[E any] interface {
	// EventType returns the stable name of the event variant.
	EventType(evt E) string

	// SchemaVersion returns the payload schema version for the event variant.
	SchemaVersion(evt E) string

	// Marshal encodes the event payload.
	Marshal(evt E) ([]byte, error)

	// Unmarshal decodes a payload. Unknown types or versions must return an error
	// wrapping domain.ErrUnknownEvent.
	Unmarshal(eventType, schemaVersion string, data []byte) (E, error)
}

// DecodeEvents decodes a slice of envelopes in order.
func DecodeEvents[E any](codec Codec[E], envelopes []*domain.Event) ([]E, error) {
	events := make([]E, 0, len(envelopes))
	for _, env := range envelopes {
		evt, err := codec.Unmarshal(env.EventType, env.SchemaVersion, env.Data)
		if err != nil {
			return nil, fmt.Errorf("decode event %s (%s v%d): %w", env.ID, env.AggregateID, env.Version, err)
		}
		events = append(events, evt)
	}
	return events, nil
}
