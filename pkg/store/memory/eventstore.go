// Package memory provides in-process implementations of the store contracts.
// They are used by tests and by hosts that do not need durability.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/store"
)

var _ store.EventStore = (*EventStore)(nil)

// EventStore keeps every stream in memory.
type EventStore struct {
	mu       sync.RWMutex
	log      []*domain.Event
	streams  map[string][]*domain.Event
	eventIDs map[string]struct{}
	closed   bool
}

// NewEventStore creates an empty in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		streams:  make(map[string][]*domain.Event),
		eventIDs: make(map[string]struct{}),
	}
}

// AppendEvents appends events to an aggregate's stream atomically.
func (s *EventStore) AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, events []*domain.Event) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if expectedVersion < 0 {
		return 0, domain.ErrInvalidVersion
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, store.ErrClosed
	}

	current := int64(len(s.streams[aggregateID]))
	if current != expectedVersion {
		return 0, fmt.Errorf("%w: expected %d, got %d", domain.ErrConcurrencyConflict, expectedVersion, current)
	}
	if len(events) == 0 {
		return current, nil
	}

	// Validate the whole batch before touching state so a failure leaves nothing behind.
	seen := make(map[string]struct{}, len(events))
	for i, event := range events {
		if event.AggregateID != aggregateID {
			return 0, fmt.Errorf("event %s targets aggregate %s, not %s", event.ID, event.AggregateID, aggregateID)
		}
		if want := expectedVersion + int64(i) + 1; event.Version != want {
			return 0, fmt.Errorf("%w: event %s has version %d, want %d", domain.ErrInvalidVersion, event.ID, event.Version, want)
		}
		if _, dup := s.eventIDs[event.ID]; dup {
			return 0, fmt.Errorf("%w: %s", domain.ErrDuplicateEvent, event.ID)
		}
		if _, dup := seen[event.ID]; dup {
			return 0, fmt.Errorf("%w: %s", domain.ErrDuplicateEvent, event.ID)
		}
		seen[event.ID] = struct{}{}
	}

	for _, event := range events {
		stored := event.Clone()
		stored.Position = int64(len(s.log)) + 1
		event.Position = stored.Position

		s.log = append(s.log, stored)
		s.streams[aggregateID] = append(s.streams[aggregateID], stored)
		s.eventIDs[stored.ID] = struct{}{}
	}

	return expectedVersion + int64(len(events)), nil
}

// LoadEvents loads events for an aggregate with a version greater than afterVersion.
func (s *EventStore) LoadEvents(ctx context.Context, aggregateID string, afterVersion int64) ([]*domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	stream := s.streams[aggregateID]
	if afterVersion < 0 {
		afterVersion = 0
	}
	if afterVersion >= int64(len(stream)) {
		return []*domain.Event{}, nil
	}
	return cloneAll(stream[afterVersion:]), nil
}

// LoadAllEvents loads up to limit events with a position greater than afterPosition.
func (s *EventStore) LoadAllEvents(ctx context.Context, afterPosition int64, limit int) ([]*domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	if afterPosition < 0 {
		afterPosition = 0
	}
	if afterPosition >= int64(len(s.log)) {
		return []*domain.Event{}, nil
	}

	rest := s.log[afterPosition:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	return cloneAll(rest), nil
}

// GetAggregateVersion returns the current version of an aggregate.
func (s *EventStore) GetAggregateVersion(ctx context.Context, aggregateID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.streams[aggregateID])), nil
}

// Close marks the store closed. Further calls fail with store.ErrClosed.
func (s *EventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneAll(events []*domain.Event) []*domain.Event {
	out := make([]*domain.Event, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}
