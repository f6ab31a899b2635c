package learner

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Learner is the folded state of one learner.
type Learner struct {
	// ID stays uuid.Nil until a LearnerCreated event has been applied.
	ID uuid.UUID

	// Name is not folded from LearnerCreated; the progress read model carries it.
	Name string

	// TouchedLessons holds every started lesson in order, including repeats.
	TouchedLessons []Lesson
}

// Exists reports whether a LearnerCreated event has been applied.
func (l Learner) Exists() bool {
	return l.ID != uuid.Nil
}

// Apply folds evt into state and returns the new state. The input is never modified.
func Apply(state Learner, evt Event) Learner {
	switch e := evt.(type) {
	case LearnerCreated:
		state.ID = e.LearnerID
	case LessonStarted:
		state.TouchedLessons = append(slices.Clip(state.TouchedLessons), e.Lesson.Clone())
	case VideoBookmarked, VideoCompleted, QuestionAnswered:
		// Recorded for history completeness; no state of their own yet.
	default:
		panic(fmt.Sprintf("learner: cannot apply %T", evt))
	}
	return state
}
