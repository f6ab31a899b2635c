package learner

import (
	"encoding/json"
	"fmt"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/eventsourcing"
)

var _ eventsourcing.Codec[Event] = Codec{}

// Codec encodes learner events as JSON payloads tagged with SchemaVersion.
type Codec struct{}

// EventType implements eventsourcing.Codec.
func (Codec) EventType(evt Event) string { return evt.EventName() }

// SchemaVersion implements eventsourcing.Codec.
func (Codec) SchemaVersion(Event) string { return SchemaVersion }

// Marshal implements eventsourcing.Codec.
func (Codec) Marshal(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}

// Unmarshal implements eventsourcing.Codec.
func (Codec) Unmarshal(eventType, schemaVersion string, data []byte) (Event, error) {
	if schemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %s schema version %q", domain.ErrUnknownEvent, eventType, schemaVersion)
	}

	switch eventType {
	case "LearnerCreated":
		return decodeEvent[LearnerCreated](data)
	case "LessonStarted":
		return decodeEvent[LessonStarted](data)
	case "VideoBookmarked":
		return decodeEvent[VideoBookmarked](data)
	case "VideoCompleted":
		return decodeEvent[VideoCompleted](data)
	case "QuestionAnswered":
		return decodeEvent[QuestionAnswered](data)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownEvent, eventType)
	}
}

func decodeEvent[T Event](data []byte) (Event, error) {
	var evt T
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", evt.EventName(), err)
	}
	return evt, nil
}
