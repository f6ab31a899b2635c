package learnertest_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/plaenen/learnerstore/pkg/learner"
	"github.com/plaenen/learnerstore/pkg/learner/learnertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTB captures failures reported by the stub without failing the outer test.
type recordingTB struct {
	testing.TB
	failed bool
}

func (r *recordingTB) Errorf(string, ...any) { r.failed = true }

func TestStubLookup(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("answers once", func(t *testing.T) {
		lesson := learner.NewLesson(id, "Lesson 1", learner.Video{ID: 1, URL: "https://example.com/v.mp4"})
		stub := learnertest.Returning(t, lesson)

		got, err := stub.FindLesson(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, lesson, got)
		assert.Equal(t, []uuid.UUID{id}, stub.Calls())
	})

	t.Run("second call is an authoring error", func(t *testing.T) {
		inner := &recordingTB{TB: t}
		stub := learnertest.NotFound(inner)

		_, err := stub.FindLesson(ctx, id)
		assert.ErrorIs(t, err, learner.ErrNotFound)
		assert.False(t, inner.failed)

		_, err = stub.FindLesson(ctx, id)
		assert.ErrorIs(t, err, learnertest.ErrStubExhausted)
		assert.True(t, inner.failed)
	})
}
