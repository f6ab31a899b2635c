// Package messaging defines the event bus contract used to fan committed events out.
package messaging

import (
	"context"

	"github.com/plaenen/learnerstore/pkg/domain"
)

// EventBus defines the interface for publishing and subscribing to events.
// The event store stays the source of truth; the bus only distributes committed envelopes.
type EventBus interface {
	// Publish publishes events to all subscribers.
	Publish(ctx context.Context, events []*domain.Event) error

	// Subscribe subscribes to events matching the filter.
	// The handler is called for each event.
	Subscribe(filter EventFilter, handler EventHandler) (Subscription, error)

	// Close closes the event bus and releases resources.
	Close() error
}

// EventFilter defines criteria for filtering events.
type EventFilter struct {
	// AggregateTypes filters by aggregate type (empty = all types)
	AggregateTypes []string

	// EventTypes filters by event type (empty = all types)
	EventTypes []string
}

// Matches reports whether an envelope passes the filter.
func (f EventFilter) Matches(event *domain.Event) bool {
	return matchAny(f.AggregateTypes, event.AggregateType) && matchAny(f.EventTypes, event.EventType)
}

func matchAny(values []string, v string) bool {
	if len(values) == 0 {
		return true
	}
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// EventHandler processes an event.
// Return an error to nack the event (it will be redelivered based on bus configuration).
type EventHandler func(event *domain.Event) error

// Subscription represents an active event subscription.
type Subscription interface {
	// Unsubscribe stops receiving events and cleans up resources.
	Unsubscribe() error
}
