package progress_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/learner"
	"github.com/plaenen/learnerstore/pkg/learner/progress"
	"github.com/plaenen/learnerstore/pkg/lessons"
	"github.com/plaenen/learnerstore/pkg/projection"
	"github.com/plaenen/learnerstore/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	learnerID = uuid.MustParse("0b6f1d7e-5c62-4d8f-9a44-2f3c1d2e7a10")
	lessonID  = uuid.MustParse("7a1c9e52-31b4-4c0e-8f7d-6e5b4a3c2d11")
)

func setup(t *testing.T) (*learner.Engine, *projection.Manager, *progress.Store) {
	t.Helper()

	catalog := lessons.NewCatalog(learner.NewLesson(lessonID, "Lesson 1",
		learner.Video{ID: 1, URL: "https://example.com/1.mp4"},
		learner.Video{ID: 2, URL: "https://example.com/2.mp4"},
		learner.Question{ID: 3, Prompt: "Done?"},
	))

	es := memory.NewEventStore()
	engine := learner.NewEngine(es, catalog)

	read := progress.NewStore()
	manager := projection.NewManager(es, memory.NewCheckpointStore())
	manager.Register(read.Projection())
	return engine, manager, read
}

func execute(t *testing.T, engine *learner.Engine, cmds ...learner.Command) {
	t.Helper()
	for _, cmd := range cmds {
		_, err := engine.Execute(context.Background(), cmd, domain.CommandMetadata{})
		require.NoError(t, err)
	}
}

func TestProgress(t *testing.T) {
	ctx := context.Background()
	engine, manager, read := setup(t)

	execute(t, engine,
		learner.CreateLearner{LearnerID: learnerID, Name: "James Doe"},
		learner.StartLesson{LearnerID: learnerID, LessonID: lessonID},
		learner.BookmarkVideo{LearnerID: learnerID, LessonID: lessonID, StepID: 1, SecondsIntoVideo: 10},
		learner.BookmarkVideo{LearnerID: learnerID, LessonID: lessonID, StepID: 1, SecondsIntoVideo: 25},
		learner.CompleteVideo{LearnerID: learnerID, LessonID: lessonID, StepID: 1},
		learner.CompleteVideo{LearnerID: learnerID, LessonID: lessonID, StepID: 1},
		learner.StartLesson{LearnerID: learnerID, LessonID: lessonID},
	)

	_, err := manager.CatchUp(ctx, progress.ProjectionName)
	require.NoError(t, err)

	p, ok := read.Get(learnerID)
	require.True(t, ok)
	assert.Equal(t, "James Doe", p.Name)
	assert.Equal(t, int64(7), p.Version)
	require.Len(t, p.Lessons, 1, "repeated starts collapse into one entry")

	lesson := p.Lessons[0]
	assert.Equal(t, "Lesson 1", lesson.Name)
	assert.True(t, lesson.Started)
	assert.Equal(t, 2, lesson.TimesStarted)
	assert.Equal(t, 3, lesson.StepCount)
	assert.Equal(t, learner.Seconds(25), lesson.Bookmarks[1])
	assert.Equal(t, []learner.StepID{1}, lesson.Completed)
	assert.Equal(t, "33.33", lesson.Percent.StringFixed(2))

	execute(t, engine,
		learner.CompleteVideo{LearnerID: learnerID, LessonID: lessonID, StepID: 2},
		learner.AnswerQuestion{LearnerID: learnerID, LessonID: lessonID, StepID: 3},
	)
	_, err = manager.CatchUp(ctx, progress.ProjectionName)
	require.NoError(t, err)

	p, _ = read.Get(learnerID)
	lesson, ok = p.Lesson(lessonID)
	require.True(t, ok)
	assert.Equal(t, "100.00", lesson.Percent.StringFixed(2))
	assert.Equal(t, []learner.StepID{3}, lesson.Answered)
}

func TestProgress_IgnoresStepsOutsideTheLesson(t *testing.T) {
	ctx := context.Background()
	engine, manager, read := setup(t)

	execute(t, engine,
		learner.CreateLearner{LearnerID: learnerID, Name: "James Doe"},
		learner.StartLesson{LearnerID: learnerID, LessonID: lessonID},
		learner.CompleteVideo{LearnerID: learnerID, LessonID: lessonID, StepID: 99},
		learner.AnswerQuestion{LearnerID: learnerID, LessonID: lessonID, StepID: 1},
	)
	_, err := manager.CatchUp(ctx, progress.ProjectionName)
	require.NoError(t, err)

	p, _ := read.Get(learnerID)
	assert.True(t, p.Lessons[0].Percent.IsZero())
}

func TestProgress_ActivityBeforeStart(t *testing.T) {
	ctx := context.Background()
	engine, manager, read := setup(t)

	execute(t, engine,
		learner.CompleteVideo{LearnerID: learnerID, LessonID: lessonID, StepID: 1},
	)
	_, err := manager.CatchUp(ctx, progress.ProjectionName)
	require.NoError(t, err)

	p, ok := read.Get(learnerID)
	require.True(t, ok)
	assert.Empty(t, p.Name)
	require.Len(t, p.Lessons, 1)
	assert.False(t, p.Lessons[0].Started)
	assert.True(t, p.Lessons[0].Percent.IsZero())
}

func TestProgress_Rebuild(t *testing.T) {
	ctx := context.Background()
	engine, manager, read := setup(t)

	execute(t, engine, learner.CreateLearner{LearnerID: learnerID, Name: "James Doe"})
	_, err := manager.CatchUp(ctx, progress.ProjectionName)
	require.NoError(t, err)

	require.NoError(t, manager.Rebuild(ctx, progress.ProjectionName))

	all := read.All()
	require.Len(t, all, 1)
	assert.Equal(t, "James Doe", all[0].Name)
}

func TestProgress_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	engine, manager, read := setup(t)

	execute(t, engine,
		learner.StartLesson{LearnerID: learnerID, LessonID: lessonID},
		learner.BookmarkVideo{LearnerID: learnerID, LessonID: lessonID, StepID: 1, SecondsIntoVideo: 5},
	)
	_, err := manager.CatchUp(ctx, progress.ProjectionName)
	require.NoError(t, err)

	p, _ := read.Get(learnerID)
	p.Lessons[0].Bookmarks[1] = 999

	again, _ := read.Get(learnerID)
	assert.Equal(t, learner.Seconds(5), again.Lessons[0].Bookmarks[1])
}

func TestProgress_RetriesDoNotRepeatEvents(t *testing.T) {
	ctx := context.Background()

	catalog := lessons.NewCatalog(learner.NewLesson(lessonID, "Lesson 1"))
	es := memory.NewEventStore()
	engine := learner.NewEngine(es, catalog)

	execute(t, engine,
		learner.CreateLearner{LearnerID: learnerID, Name: "James Doe"},
		learner.StartLesson{LearnerID: learnerID, LessonID: lessonID},
	)

	other := uuid.New().String()
	_, err := es.AppendEvents(ctx, other, 0, []*domain.Event{{
		ID:            "corrupt",
		AggregateID:   other,
		AggregateType: learner.AggregateType,
		EventType:     "LessonStarted",
		SchemaVersion: learner.SchemaVersion,
		Version:       1,
		Data:          []byte("{not json"),
	}})
	require.NoError(t, err)

	read := progress.NewStore()
	manager := projection.NewManager(es, memory.NewCheckpointStore())
	manager.Register(read.Projection())

	for range 3 {
		_, err := manager.CatchUp(ctx, progress.ProjectionName)
		require.Error(t, err)
	}

	p, ok := read.Get(learnerID)
	require.True(t, ok)
	require.Len(t, p.Lessons, 1)
	assert.Equal(t, 1, p.Lessons[0].TimesStarted)

	cp, err := manager.Checkpoint(ctx, progress.ProjectionName)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cp.Position)
}

func TestProgress_SkipsRedeliveredEvents(t *testing.T) {
	ctx := context.Background()
	es := memory.NewEventStore()
	engine := learner.NewEngine(es, lessons.NewCatalog(learner.NewLesson(lessonID, "Lesson 1")))

	execute(t, engine,
		learner.CreateLearner{LearnerID: learnerID, Name: "James Doe"},
		learner.StartLesson{LearnerID: learnerID, LessonID: lessonID},
	)
	history, err := es.LoadEvents(ctx, learnerID.String(), 0)
	require.NoError(t, err)

	read := progress.NewStore()
	p := read.Projection()
	for range 2 {
		for _, env := range history {
			require.NoError(t, p.Handle(ctx, env))
		}
	}

	got, ok := read.Get(learnerID)
	require.True(t, ok)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, 1, got.Lessons[0].TimesStarted)
}
