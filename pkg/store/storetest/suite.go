// Package storetest holds behavioural checks every store.EventStore and
// store.CheckpointStore implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewEvents builds count envelopes for aggregateID starting after fromVersion.
func NewEvents(aggregateID string, fromVersion int64, count int) []*domain.Event {
	events := make([]*domain.Event, count)
	for i := range events {
		v := fromVersion + int64(i) + 1
		events[i] = &domain.Event{
			ID:            fmt.Sprintf("%s-%d", aggregateID, v),
			AggregateID:   aggregateID,
			AggregateType: "test",
			EventType:     "Happened",
			SchemaVersion: "1.0",
			Version:       v,
			Timestamp:     time.Unix(1700000000, int64(v)).UTC(),
			Data:          []byte(fmt.Sprintf(`{"n":%d}`, v)),
			Metadata: domain.EventMetadata{
				CausationID: "cmd-" + aggregateID,
				Custom:      map[string]string{"k": "v"},
			},
		}
	}
	return events
}

// RunEventStore exercises an event store produced by newStore. Each subtest gets a fresh store.
func RunEventStore(t *testing.T, newStore func(t *testing.T) store.EventStore) {
	ctx := context.Background()

	t.Run("append and load", func(t *testing.T) {
		es := newStore(t)

		version, err := es.AppendEvents(ctx, "a", 0, NewEvents("a", 0, 2))
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)

		loaded, err := es.LoadEvents(ctx, "a", 0)
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		assert.Equal(t, "a-1", loaded[0].ID)
		assert.Equal(t, int64(1), loaded[0].Version)
		assert.Equal(t, "1.0", loaded[0].SchemaVersion)
		assert.Equal(t, []byte(`{"n":1}`), loaded[0].Data)
		assert.Equal(t, "cmd-a", loaded[0].Metadata.CausationID)
		assert.Equal(t, "v", loaded[0].Metadata.Custom["k"])
		assert.True(t, loaded[0].Timestamp.Equal(time.Unix(1700000000, 1)))
		assert.Equal(t, int64(2), loaded[1].Version)
		assert.Less(t, loaded[0].Position, loaded[1].Position)

		after, err := es.LoadEvents(ctx, "a", 1)
		require.NoError(t, err)
		require.Len(t, after, 1)
		assert.Equal(t, "a-2", after[0].ID)
	})

	t.Run("unknown aggregate is empty", func(t *testing.T) {
		es := newStore(t)

		loaded, err := es.LoadEvents(ctx, "missing", 0)
		require.NoError(t, err)
		assert.Empty(t, loaded)

		version, err := es.GetAggregateVersion(ctx, "missing")
		require.NoError(t, err)
		assert.Equal(t, int64(0), version)
	})

	t.Run("version conflict", func(t *testing.T) {
		es := newStore(t)

		_, err := es.AppendEvents(ctx, "a", 0, NewEvents("a", 0, 1))
		require.NoError(t, err)

		_, err = es.AppendEvents(ctx, "a", 0, NewEvents("a", 0, 1))
		assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

		version, err := es.GetAggregateVersion(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)
	})

	t.Run("failed batch leaves stream untouched", func(t *testing.T) {
		es := newStore(t)

		_, err := es.AppendEvents(ctx, "a", 0, NewEvents("a", 0, 1))
		require.NoError(t, err)

		batch := NewEvents("a", 1, 2)
		batch[1].ID = "a-1" // collides with the stored event
		_, err = es.AppendEvents(ctx, "a", 1, batch)
		require.Error(t, err)

		loaded, err := es.LoadEvents(ctx, "a", 0)
		require.NoError(t, err)
		assert.Len(t, loaded, 1)
	})

	t.Run("global order across aggregates", func(t *testing.T) {
		es := newStore(t)

		_, err := es.AppendEvents(ctx, "a", 0, NewEvents("a", 0, 1))
		require.NoError(t, err)
		_, err = es.AppendEvents(ctx, "b", 0, NewEvents("b", 0, 2))
		require.NoError(t, err)
		_, err = es.AppendEvents(ctx, "a", 1, NewEvents("a", 1, 1))
		require.NoError(t, err)

		all, err := es.LoadAllEvents(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 4)
		ids := make([]string, len(all))
		for i, e := range all {
			ids[i] = e.ID
		}
		assert.Equal(t, []string{"a-1", "b-1", "b-2", "a-2"}, ids)

		page, err := es.LoadAllEvents(ctx, all[0].Position, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "b-1", page[0].ID)
		assert.Equal(t, "b-2", page[1].ID)

		rest, err := es.LoadAllEvents(ctx, all[3].Position, 10)
		require.NoError(t, err)
		assert.Empty(t, rest)
	})

	t.Run("concurrent appends admit one writer per version", func(t *testing.T) {
		es := newStore(t)

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				events := NewEvents("a", 0, 1)
				events[0].ID = fmt.Sprintf("writer-%d", i)
				_, err := es.AppendEvents(ctx, "a", 0, events)

				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					successes++
				} else {
					assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
					conflicts++
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, writers-1, conflicts)
	})
}

// RunCheckpointStore exercises a checkpoint store produced by newStore.
func RunCheckpointStore(t *testing.T, newStore func(t *testing.T) store.CheckpointStore) {
	ctx := context.Background()

	t.Run("missing checkpoint", func(t *testing.T) {
		cs := newStore(t)
		_, err := cs.Load(ctx, "p")
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})

	t.Run("save load delete", func(t *testing.T) {
		cs := newStore(t)
		now := time.Unix(1700000000, 0).UTC()

		require.NoError(t, cs.Save(ctx, &store.ProjectionCheckpoint{ProjectionName: "p", Position: 3, LastEventID: "e3", UpdatedAt: now}))
		require.NoError(t, cs.Save(ctx, &store.ProjectionCheckpoint{ProjectionName: "p", Position: 5, LastEventID: "e5", UpdatedAt: now}))

		cp, err := cs.Load(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, int64(5), cp.Position)
		assert.Equal(t, "e5", cp.LastEventID)
		assert.True(t, cp.UpdatedAt.Equal(now))

		require.NoError(t, cs.Delete(ctx, "p"))
		_, err = cs.Load(ctx, "p")
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})
}
