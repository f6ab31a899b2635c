package learner_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/plaenen/learnerstore/pkg/learner"
	"github.com/plaenen/learnerstore/pkg/learner/learnertest"
	"github.com/stretchr/testify/assert"
)

func sampleHistory() []learner.Event {
	lessonA := learner.NewLesson(lessonID, "Lesson A",
		learner.Video{ID: 1, URL: "https://example.com/a.mp4"},
		learner.Question{ID: 2, Prompt: "Why?"},
	)
	lessonB := learner.NewLesson(uuid.MustParse("c2d3e4f5-0a1b-4c2d-8e3f-405162738495"), "Lesson B")
	return []learner.Event{
		learner.LearnerCreated{LearnerID: learnerID, Name: "James Doe"},
		learner.LessonStarted{LearnerID: learnerID, Lesson: lessonA},
		learner.VideoBookmarked{LearnerID: learnerID, LessonID: lessonID, StepID: 1, SecondsIntoVideo: 30},
		learner.VideoCompleted{LearnerID: learnerID, LessonID: lessonID, StepID: 1},
		learner.QuestionAnswered{LearnerID: learnerID, LessonID: lessonID, StepID: 2},
		learner.LessonStarted{LearnerID: learnerID, Lesson: lessonB},
		learner.LessonStarted{LearnerID: learnerID, Lesson: lessonA},
	}
}

func TestApply(t *testing.T) {
	t.Run("created sets only the id", func(t *testing.T) {
		state := learner.Apply(learner.Learner{}, learner.LearnerCreated{LearnerID: learnerID, Name: "James Doe"})
		assert.Equal(t, learner.Learner{ID: learnerID}, state)
		assert.True(t, state.Exists())
		assert.False(t, learner.Learner{}.Exists())
	})

	t.Run("started lessons are kept in order with repeats", func(t *testing.T) {
		lessonA := learner.NewLesson(lessonID, "Lesson A")
		scenario(t, learnertest.NotFound(t)).
			Given(
				learner.LearnerCreated{LearnerID: learnerID, Name: "James Doe"},
				learner.LessonStarted{LearnerID: learnerID, Lesson: lessonA},
				learner.LessonStarted{LearnerID: learnerID, Lesson: lessonA},
			).
			ThenExpectState(t, learner.Learner{ID: learnerID, TouchedLessons: []learner.Lesson{lessonA, lessonA}})
	})

	t.Run("progress events leave state unchanged", func(t *testing.T) {
		before := learner.Learner{ID: learnerID}
		for _, evt := range []learner.Event{
			learner.VideoBookmarked{LearnerID: learnerID, StepID: 1},
			learner.VideoCompleted{LearnerID: learnerID, StepID: 1},
			learner.QuestionAnswered{LearnerID: learnerID, StepID: 2},
		} {
			assert.Equal(t, before, learner.Apply(before, evt), evt.EventName())
		}
	})

	t.Run("tolerates history without creation", func(t *testing.T) {
		lesson := learner.NewLesson(lessonID, "Lesson A")
		state := learner.Apply(learner.Learner{}, learner.LessonStarted{LearnerID: learnerID, Lesson: lesson})
		assert.False(t, state.Exists())
		assert.Equal(t, []learner.Lesson{lesson}, state.TouchedLessons)
	})

	t.Run("does not modify the input state", func(t *testing.T) {
		lessonA := learner.NewLesson(lessonID, "Lesson A")
		lessonB := learner.NewLesson(uuid.New(), "Lesson B")
		lessonC := learner.NewLesson(uuid.New(), "Lesson C")

		base := learner.Learner{ID: learnerID, TouchedLessons: make([]learner.Lesson, 1, 4)}
		base.TouchedLessons[0] = lessonA

		left := learner.Apply(base, learner.LessonStarted{Lesson: lessonB})
		right := learner.Apply(base, learner.LessonStarted{Lesson: lessonC})

		assert.Equal(t, []learner.Lesson{lessonA}, base.TouchedLessons)
		assert.Equal(t, []learner.Lesson{lessonA, lessonB}, left.TouchedLessons)
		assert.Equal(t, []learner.Lesson{lessonA, lessonC}, right.TouchedLessons)
	})
}

func TestReplayIsDeterministic(t *testing.T) {
	d := learner.NewDecider()
	history := sampleHistory()

	whole := d.Replay(history...)
	assert.Equal(t, whole, d.Replay(history...))

	for split := 0; split <= len(history); split++ {
		assert.Equal(t, whole, d.Fold(d.Replay(history[:split]...), history[split:]...), "split at %d", split)
	}

	assert.Equal(t, learnerID, whole.ID)
	assert.Len(t, whole.TouchedLessons, 3)
	assert.Empty(t, whole.Name)
}
