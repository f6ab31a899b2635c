package learner_test

import (
	"context"
	"testing"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/eventsourcing"
	"github.com/plaenen/learnerstore/pkg/learner"
	"github.com/plaenen/learnerstore/pkg/learner/learnertest"
	"github.com/plaenen/learnerstore/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_LearnerLifecycle(t *testing.T) {
	ctx := context.Background()
	es := memory.NewEventStore()
	lesson := learner.NewLesson(lessonID, "Lesson 1", learner.Video{ID: 1, URL: "https://example.com/1.mp4"})

	engine := learner.NewEngine(es, learnertest.Returning(t, lesson))

	_, err := engine.Execute(ctx, learner.CreateLearner{LearnerID: learnerID, Name: "James Doe"}, domain.CommandMetadata{CommandID: "c1"})
	require.NoError(t, err)

	result, err := engine.Execute(ctx, learner.StartLesson{LearnerID: learnerID, LessonID: lessonID}, domain.CommandMetadata{CommandID: "c2"})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "learner", result.Events[0].AggregateType)
	assert.Equal(t, "LessonStarted", result.Events[0].EventType)
	assert.Equal(t, "1.0", result.Events[0].SchemaVersion)
	assert.Equal(t, int64(2), result.Events[0].Version)
	assert.Equal(t, learnerID.String(), result.Events[0].AggregateID)

	state, version, err := engine.Load(ctx, learnerID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	assert.Equal(t, learner.Learner{ID: learnerID, TouchedLessons: []learner.Lesson{lesson}}, state)
}

func TestEngine_NotFoundAppendsNothing(t *testing.T) {
	ctx := context.Background()
	es := memory.NewEventStore()
	engine := learner.NewEngine(es, learnertest.NotFound(t))

	_, err := engine.Execute(ctx, learner.CreateLearner{LearnerID: learnerID, Name: "James Doe"}, domain.CommandMetadata{})
	require.NoError(t, err)

	_, err = engine.Execute(ctx, learner.StartLesson{LearnerID: learnerID, LessonID: lessonID}, domain.CommandMetadata{})
	assert.ErrorIs(t, err, learner.ErrNotFound)

	version, err := es.GetAggregateVersion(ctx, learnerID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	bus := eventsourcing.NewCommandBus()
	learner.Register(bus, learner.NewEngine(memory.NewEventStore(), learnertest.NotFound(t)))

	assert.ElementsMatch(t, learner.CommandTypes(), bus.RegisteredTypes())

	events, err := bus.Send(ctx, &domain.CommandEnvelope{
		Command:  learner.CreateLearner{LearnerID: learnerID, Name: "James Doe"},
		Metadata: domain.CommandMetadata{CommandID: "c1"},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "LearnerCreated", events[0].EventType)
}
