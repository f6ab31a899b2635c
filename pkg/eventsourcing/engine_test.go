package eventsourcing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/eventsourcing"
	"github.com/plaenen/learnerstore/pkg/messaging"
	"github.com/plaenen/learnerstore/pkg/store"
	"github.com/plaenen/learnerstore/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newCounterEngine(es store.EventStore, opts ...eventsourcing.EngineOption) *eventsourcing.Engine[counterState, counterCmd, added, *limitPort] {
	opts = append([]eventsourcing.EngineOption{eventsourcing.WithClock(func() time.Time { return fixedNow })}, opts...)
	return eventsourcing.NewEngine(counterDecider(), counterCodec{}, es, &limitPort{}, opts...)
}

func TestEngine_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("appends decided events with envelopes", func(t *testing.T) {
		es := memory.NewEventStore()
		engine := newCounterEngine(es)

		result, err := engine.Execute(ctx, counterCmd{ID: "c1", By: []int{2, 3}}, domain.CommandMetadata{
			CommandID:     "cmd-1",
			CorrelationID: "corr-1",
			PrincipalID:   "user-1",
		})
		require.NoError(t, err)

		assert.Equal(t, "cmd-1", result.CommandID)
		assert.Equal(t, "c1", result.AggregateID)
		assert.Equal(t, int64(2), result.Version)
		require.Len(t, result.Events, 2)

		first := result.Events[0]
		assert.Equal(t, domain.GenerateDeterministicEventID("cmd-1", "c1", 0), first.ID)
		assert.Equal(t, "counter", first.AggregateType)
		assert.Equal(t, "Added", first.EventType)
		assert.Equal(t, "1.0", first.SchemaVersion)
		assert.Equal(t, int64(1), first.Version)
		assert.Equal(t, fixedNow, first.Timestamp)
		assert.Equal(t, "cmd-1", first.Metadata.CausationID)
		assert.Equal(t, "corr-1", first.Metadata.CorrelationID)
		assert.Equal(t, "user-1", first.Metadata.PrincipalID)
		assert.Equal(t, int64(2), result.Events[1].Version)

		state, version, err := engine.Load(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)
		assert.Equal(t, counterState{Total: 5, Seen: 2}, state)
	})

	t.Run("decision error appends nothing", func(t *testing.T) {
		es := memory.NewEventStore()
		engine := newCounterEngine(es)

		_, err := engine.Execute(ctx, counterCmd{ID: "c1", By: []int{1}}, domain.CommandMetadata{CommandID: "cmd-1"})
		require.NoError(t, err)

		_, err = engine.Execute(ctx, counterCmd{ID: "c1", Reject: true}, domain.CommandMetadata{CommandID: "cmd-2"})
		assert.ErrorIs(t, err, errRejected)

		version, err := es.GetAggregateVersion(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)
	})

	t.Run("empty aggregate id is invalid", func(t *testing.T) {
		engine := newCounterEngine(memory.NewEventStore())
		_, err := engine.Execute(ctx, counterCmd{By: []int{1}}, domain.CommandMetadata{})
		assert.ErrorIs(t, err, domain.ErrInvalidCommand)
	})

	t.Run("empty decision appends nothing", func(t *testing.T) {
		es := memory.NewEventStore()
		engine := newCounterEngine(es)

		result, err := engine.Execute(ctx, counterCmd{ID: "c1"}, domain.CommandMetadata{})
		require.NoError(t, err)
		assert.Empty(t, result.Events)
		assert.Equal(t, int64(0), result.Version)
	})

	t.Run("random ids without command id", func(t *testing.T) {
		engine := newCounterEngine(memory.NewEventStore())
		result, err := engine.Execute(ctx, counterCmd{ID: "c1", By: []int{1, 1}}, domain.CommandMetadata{})
		require.NoError(t, err)
		assert.NotEqual(t, result.Events[0].ID, result.Events[1].ID)
	})

	t.Run("cancelled context discards the decision", func(t *testing.T) {
		es := memory.NewEventStore()
		cctx, cancel := context.WithCancel(ctx)

		d := counterDecider()
		inner := d.Decide
		d.Decide = func(ctx context.Context, s counterState, c counterCmd, p *limitPort) ([]added, error) {
			events, err := inner(ctx, s, c, p)
			cancel()
			return events, err
		}
		engine := eventsourcing.NewEngine(d, counterCodec{}, es, &limitPort{})

		_, err := engine.Execute(cctx, counterCmd{ID: "c1", By: []int{1}}, domain.CommandMetadata{})
		assert.ErrorIs(t, err, context.Canceled)

		version, err := es.GetAggregateVersion(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), version)
	})

	t.Run("undecodable history fails the command", func(t *testing.T) {
		es := memory.NewEventStore()
		_, err := es.AppendEvents(ctx, "c1", 0, []*domain.Event{{
			ID: "x", AggregateID: "c1", EventType: "Mystery", SchemaVersion: "9.9", Version: 1,
		}})
		require.NoError(t, err)

		engine := newCounterEngine(es)
		_, err = engine.Execute(ctx, counterCmd{ID: "c1", By: []int{1}}, domain.CommandMetadata{})
		assert.ErrorIs(t, err, domain.ErrUnknownEvent)
	})
}

// conflictingStore fails the first n appends with a concurrency conflict.
type conflictingStore struct {
	*memory.EventStore
	failures int
	appends  int
}

func (s *conflictingStore) AppendEvents(ctx context.Context, id string, expected int64, events []*domain.Event) (int64, error) {
	s.appends++
	if s.appends <= s.failures {
		return 0, domain.ErrConcurrencyConflict
	}
	return s.EventStore.AppendEvents(ctx, id, expected, events)
}

func TestEngine_RetriesConflicts(t *testing.T) {
	ctx := context.Background()

	t.Run("re-decides after a conflict", func(t *testing.T) {
		es := &conflictingStore{EventStore: memory.NewEventStore(), failures: 2}
		port := &limitPort{}
		engine := eventsourcing.NewEngine(counterDecider(), counterCodec{}, es, port)

		result, err := engine.Execute(ctx, counterCmd{ID: "c1", By: []int{1}}, domain.CommandMetadata{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Version)
		assert.Equal(t, int32(3), port.calls.Load())
	})

	t.Run("gives up after the configured retries", func(t *testing.T) {
		es := &conflictingStore{EventStore: memory.NewEventStore(), failures: 10}
		engine := eventsourcing.NewEngine(counterDecider(), counterCodec{}, es, &limitPort{},
			eventsourcing.WithMaxConflictRetries(1))

		_, err := engine.Execute(ctx, counterCmd{ID: "c1", By: []int{1}}, domain.CommandMetadata{})
		assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
		assert.Equal(t, 2, es.appends)
	})
}

func TestEngine_ConcurrentCommandsSerialise(t *testing.T) {
	ctx := context.Background()
	es := memory.NewEventStore()
	engine := newCounterEngine(es, eventsourcing.WithMaxConflictRetries(50))

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Execute(ctx, counterCmd{ID: "c1", By: []int{1}}, domain.CommandMetadata{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, version, err := engine.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), version)
	assert.Equal(t, workers, state.Total)
}

type recordingBus struct {
	mu        sync.Mutex
	published []*domain.Event
	err       error
}

func (b *recordingBus) Publish(_ context.Context, events []*domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, events...)
	return b.err
}

func (b *recordingBus) Subscribe(messaging.EventFilter, messaging.EventHandler) (messaging.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *recordingBus) Close() error { return nil }

func TestEngine_Publishes(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes committed events", func(t *testing.T) {
		bus := &recordingBus{}
		engine := newCounterEngine(memory.NewEventStore(), eventsourcing.WithEventBus(bus))

		_, err := engine.Execute(ctx, counterCmd{ID: "c1", By: []int{1, 2}}, domain.CommandMetadata{CommandID: "cmd-1"})
		require.NoError(t, err)
		require.Len(t, bus.published, 2)
		assert.Equal(t, int64(1), bus.published[0].Version)
	})

	t.Run("publish failure does not fail the command", func(t *testing.T) {
		es := memory.NewEventStore()
		bus := &recordingBus{err: errors.New("bus down")}
		engine := newCounterEngine(es, eventsourcing.WithEventBus(bus))

		result, err := engine.Execute(ctx, counterCmd{ID: "c1", By: []int{1}}, domain.CommandMetadata{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Version)
	})

	t.Run("rejected commands publish nothing", func(t *testing.T) {
		bus := &recordingBus{}
		engine := newCounterEngine(memory.NewEventStore(), eventsourcing.WithEventBus(bus))

		_, err := engine.Execute(ctx, counterCmd{ID: "c1", Reject: true}, domain.CommandMetadata{})
		require.Error(t, err)
		assert.Empty(t, bus.published)
	})
}

func TestEngine_Handle(t *testing.T) {
	ctx := context.Background()
	engine := newCounterEngine(memory.NewEventStore())

	events, err := engine.Handle(ctx, &domain.CommandEnvelope{
		Command:  counterCmd{ID: "c1", By: []int{4}},
		Metadata: domain.CommandMetadata{CommandID: "cmd-1"},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)

	_, err = engine.Handle(ctx, &domain.CommandEnvelope{Command: "not a command"})
	assert.ErrorIs(t, err, domain.ErrInvalidCommand)
}
