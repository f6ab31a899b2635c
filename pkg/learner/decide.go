package learner

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Decide maps cmd against state to the events it produces. It returns either a
// non-empty batch or an error, never both.
//
// Only StartLesson consults lookup. The other commands are recorded as given:
// step ids are not checked against the lesson and CreateLearner does not check
// whether the learner already exists.
func Decide(ctx context.Context, state Learner, cmd Command, lookup LessonLookup) ([]Event, error) {
	switch c := cmd.(type) {
	case CreateLearner:
		return []Event{LearnerCreated{LearnerID: c.LearnerID, Name: c.Name}}, nil

	case StartLesson:
		lesson, err := findLesson(ctx, lookup, c.LessonID)
		if err != nil {
			return nil, err
		}
		return []Event{LessonStarted{LearnerID: c.LearnerID, Lesson: lesson}}, nil

	case BookmarkVideo:
		return []Event{VideoBookmarked{
			LearnerID:        c.LearnerID,
			LessonID:         c.LessonID,
			StepID:           c.StepID,
			SecondsIntoVideo: c.SecondsIntoVideo,
		}}, nil

	case CompleteVideo:
		return []Event{VideoCompleted{
			LearnerID: c.LearnerID,
			LessonID:  c.LessonID,
			StepID:    c.StepID,
		}}, nil

	case AnswerQuestion:
		return []Event{QuestionAnswered{
			LearnerID: c.LearnerID,
			LessonID:  c.LessonID,
			StepID:    c.StepID,
			Answer:    c.Answer,
		}}, nil

	default:
		return nil, Reject("unsupported command %T", cmd)
	}
}

// findLesson calls the lookup and maps its outcome onto the learner error taxonomy.
// A context cancelled while the lookup was in flight discards its result.
func findLesson(ctx context.Context, lookup LessonLookup, id uuid.UUID) (Lesson, error) {
	if lookup == nil {
		return Lesson{}, &LookupFailedError{LessonID: id, Err: errors.New("no lesson lookup configured")}
	}

	lesson, err := lookup.FindLesson(ctx, id)
	if err != nil {
		var failed *LookupFailedError
		switch {
		case errors.As(err, &failed):
			return Lesson{}, failed
		case errors.Is(err, ErrNotFound):
			return Lesson{}, &LessonNotFoundError{LessonID: id}
		default:
			return Lesson{}, &LookupFailedError{LessonID: id, Err: err}
		}
	}

	if err := ctx.Err(); err != nil {
		return Lesson{}, &LookupFailedError{LessonID: id, Err: err}
	}

	return lesson.Clone(), nil
}
