package observability

import (
	"context"
	"errors"
	"time"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/store"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentEventStore wraps an event store with spans and latency metrics.
func InstrumentEventStore(next store.EventStore, tel *Telemetry) store.EventStore {
	return &instrumentedEventStore{next: next, tel: tel, tracer: tel.Tracer()}
}

type instrumentedEventStore struct {
	next   store.EventStore
	tel    *Telemetry
	tracer trace.Tracer
}

func (s *instrumentedEventStore) AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, events []*domain.Event) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			AttrAggregateID.String(aggregateID),
			AttrVersion.Int64(expectedVersion),
			AttrEventCount.Int(len(events)),
			AttrOperation.String("append"),
		),
	)

	start := time.Now()
	version, err := s.next.AppendEvents(ctx, aggregateID, expectedVersion, events)
	duration := time.Since(start)

	if errors.Is(err, domain.ErrConcurrencyConflict) {
		s.tel.Metrics.RecordConflict(ctx)
	}
	appended := 0
	if err == nil {
		appended = len(events)
	}
	s.tel.Metrics.RecordEventStoreOperation(ctx, "append", duration, appended)

	EndSpan(span, err)
	return version, err
}

func (s *instrumentedEventStore) LoadEvents(ctx context.Context, aggregateID string, afterVersion int64) ([]*domain.Event, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.load",
		trace.WithAttributes(
			AttrAggregateID.String(aggregateID),
			AttrOperation.String("load"),
		),
	)

	start := time.Now()
	events, err := s.next.LoadEvents(ctx, aggregateID, afterVersion)
	s.tel.Metrics.RecordEventStoreOperation(ctx, "load", time.Since(start), len(events))

	if err == nil {
		span.SetAttributes(AttrEventCount.Int(len(events)))
	}
	EndSpan(span, err)
	return events, err
}

func (s *instrumentedEventStore) LoadAllEvents(ctx context.Context, afterPosition int64, limit int) ([]*domain.Event, error) {
	start := time.Now()
	events, err := s.next.LoadAllEvents(ctx, afterPosition, limit)
	s.tel.Metrics.RecordEventStoreOperation(ctx, "load_all", time.Since(start), len(events))
	return events, err
}

func (s *instrumentedEventStore) GetAggregateVersion(ctx context.Context, aggregateID string) (int64, error) {
	return s.next.GetAggregateVersion(ctx, aggregateID)
}

func (s *instrumentedEventStore) Close() error {
	return s.next.Close()
}
