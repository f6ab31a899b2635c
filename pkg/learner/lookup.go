package learner

import (
	"context"

	"github.com/google/uuid"
)

// LessonLookup retrieves lesson snapshots. Implementations must be safe for
// concurrent use and must report unknown lessons with an error matching
// ErrNotFound. Other failures are reported as LookupFailedError by Decide.
type LessonLookup interface {
	FindLesson(ctx context.Context, id uuid.UUID) (Lesson, error)
}

// LessonLookupFunc adapts a function to LessonLookup.
type LessonLookupFunc func(ctx context.Context, id uuid.UUID) (Lesson, error)

// FindLesson implements LessonLookup.
func (f LessonLookupFunc) FindLesson(ctx context.Context, id uuid.UUID) (Lesson, error) {
	return f(ctx, id)
}
