package eventsourcing_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/eventsourcing"
)

// A tiny counter aggregate used to exercise the generic machinery.

type counterState struct {
	Total int
	Seen  int
}

type counterCmd struct {
	ID     string
	By     []int
	Reject bool
}

func (c counterCmd) AggregateID() string { return c.ID }
func (c counterCmd) CommandType() string { return "Add" }

type added struct {
	N int `json:"n"`
}

var errRejected = errors.New("rejected")

type limitPort struct {
	calls atomic.Int32
}

func counterDecider() eventsourcing.Decider[counterState, counterCmd, added, *limitPort] {
	return eventsourcing.Decider[counterState, counterCmd, added, *limitPort]{
		AggregateType: "counter",
		Initial:       func() counterState { return counterState{} },
		Decide: func(_ context.Context, _ counterState, cmd counterCmd, port *limitPort) ([]added, error) {
			if port != nil {
				port.calls.Add(1)
			}
			if cmd.Reject {
				return nil, errRejected
			}
			events := make([]added, len(cmd.By))
			for i, n := range cmd.By {
				events[i] = added{N: n}
			}
			return events, nil
		},
		Evolve: func(s counterState, e added) counterState {
			return counterState{Total: s.Total + e.N, Seen: s.Seen + 1}
		},
	}
}

type counterCodec struct{}

func (counterCodec) EventType(added) string     { return "Added" }
func (counterCodec) SchemaVersion(added) string { return "1.0" }
func (counterCodec) Marshal(e added) ([]byte, error) {
	return json.Marshal(e)
}
func (counterCodec) Unmarshal(eventType, schemaVersion string, data []byte) (added, error) {
	if eventType != "Added" || schemaVersion != "1.0" {
		return added{}, fmt.Errorf("%w: %s v%s", domain.ErrUnknownEvent, eventType, schemaVersion)
	}
	var e added
	err := json.Unmarshal(data, &e)
	return e, err
}
