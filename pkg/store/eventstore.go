// Package store defines the persistence contracts the engine and projections consume.
package store

import (
	"context"
	"errors"

	"github.com/plaenen/learnerstore/pkg/domain"
)

// EventStore defines the interface for persisting and retrieving event streams.
//
// Streams are append-only and totally ordered per aggregate. Implementations must
// serialise appends per aggregate id: AppendEvents succeeds only when the stream's
// current version equals expectedVersion.
type EventStore interface {
	// AppendEvents appends events to an aggregate's stream atomically and returns
	// the new stream version.
	// Returns domain.ErrConcurrencyConflict if expectedVersion doesn't match current version.
	AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, events []*domain.Event) (int64, error)

	// LoadEvents loads all events for an aggregate with a version greater than afterVersion.
	LoadEvents(ctx context.Context, aggregateID string, afterVersion int64) ([]*domain.Event, error)

	// LoadAllEvents loads up to limit events from all aggregates with a position
	// greater than afterPosition, in append order.
	LoadAllEvents(ctx context.Context, afterPosition int64, limit int) ([]*domain.Event, error)

	// GetAggregateVersion returns the current version of an aggregate.
	// Returns 0 if the aggregate doesn't exist.
	GetAggregateVersion(ctx context.Context, aggregateID string) (int64, error)

	// Close closes the event store and releases resources.
	Close() error
}

// ErrClosed is returned by stores after Close.
var ErrClosed = errors.New("store closed")
