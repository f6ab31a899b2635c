package lessons_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/plaenen/learnerstore/pkg/learner"
	"github.com/plaenen/learnerstore/pkg/lessons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
)

const catalogYAML = `
lessons:
  - id: 7a1c9e52-31b4-4c0e-8f7d-6e5b4a3c2d11
    name: Lesson 1
    steps:
      - kind: video
        id: 1
        url: https://videos.example.com/intro.mp4
      - kind: question
        id: 2
        prompt: What did the intro cover?
  - id: c2d3e4f5-0a1b-4c2d-8e3f-405162738495
    name: Empty lesson
`

var lessonID = uuid.MustParse("7a1c9e52-31b4-4c0e-8f7d-6e5b4a3c2d11")

func TestParseYAML(t *testing.T) {
	t.Run("valid catalog", func(t *testing.T) {
		parsed, err := lessons.ParseYAML([]byte(catalogYAML))
		require.NoError(t, err)
		require.Len(t, parsed, 2)

		assert.Equal(t, learner.NewLesson(lessonID, "Lesson 1",
			learner.Video{ID: 1, URL: "https://videos.example.com/intro.mp4"},
			learner.Question{ID: 2, Prompt: "What did the intro cover?"},
		), parsed[0])
		assert.Nil(t, parsed[1].Steps)
	})

	tests := []struct {
		name    string
		doc     string
		message string
	}{
		{
			name:    "bad lesson id",
			doc:     "lessons:\n  - id: nope\n    name: X\n",
			message: `id "nope" is not a uuid`,
		},
		{
			name:    "missing name",
			doc:     "lessons:\n  - id: 7a1c9e52-31b4-4c0e-8f7d-6e5b4a3c2d11\n",
			message: "name is required",
		},
		{
			name: "duplicate step id",
			doc: `lessons:
  - id: 7a1c9e52-31b4-4c0e-8f7d-6e5b4a3c2d11
    name: X
    steps:
      - {kind: question, id: 1, prompt: a}
      - {kind: question, id: 1, prompt: b}
`,
			message: "duplicate step id 1",
		},
		{
			name: "bad url",
			doc: `lessons:
  - id: 7a1c9e52-31b4-4c0e-8f7d-6e5b4a3c2d11
    name: X
    steps:
      - {kind: video, id: 1, url: "not a url"}
`,
			message: `url "not a url" is not valid`,
		},
		{
			name: "empty prompt",
			doc: `lessons:
  - id: 7a1c9e52-31b4-4c0e-8f7d-6e5b4a3c2d11
    name: X
    steps:
      - {kind: question, id: 1}
`,
			message: "prompt is required",
		},
		{
			name: "unknown kind",
			doc: `lessons:
  - id: 7a1c9e52-31b4-4c0e-8f7d-6e5b4a3c2d11
    name: X
    steps:
      - {kind: quiz, id: 1}
`,
			message: `unknown kind "quiz"`,
		},
		{
			name: "duplicate lesson",
			doc: `lessons:
  - {id: 7a1c9e52-31b4-4c0e-8f7d-6e5b4a3c2d11, name: X}
  - {id: 7a1c9e52-31b4-4c0e-8f7d-6e5b4a3c2d11, name: Y}
`,
			message: "duplicate lesson id",
		},
		{
			name:    "not yaml",
			doc:     "lessons: [",
			message: "invalid lesson catalog",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lessons.ParseYAML([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, lessons.ErrInvalidCatalog)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestMarshalYAMLRoundTrip(t *testing.T) {
	parsed, err := lessons.ParseYAML([]byte(catalogYAML))
	require.NoError(t, err)

	data, err := lessons.MarshalYAML(parsed)
	require.NoError(t, err)

	again, err := lessons.ParseYAML(data)
	require.NoError(t, err)
	assert.Equal(t, parsed, again)
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	lesson := learner.NewLesson(lessonID, "Lesson 1", learner.Video{ID: 1, URL: "https://example.com/1.mp4"})
	catalog := lessons.NewCatalog(lesson)

	t.Run("finds lessons", func(t *testing.T) {
		got, err := catalog.FindLesson(ctx, lessonID)
		require.NoError(t, err)
		assert.Equal(t, lesson, got)
	})

	t.Run("unknown lesson is not found", func(t *testing.T) {
		_, err := catalog.FindLesson(ctx, uuid.New())
		assert.ErrorIs(t, err, learner.ErrNotFound)
	})

	t.Run("returned lessons are copies", func(t *testing.T) {
		got, err := catalog.FindLesson(ctx, lessonID)
		require.NoError(t, err)
		got.Steps[0] = learner.Question{ID: 9}

		again, err := catalog.FindLesson(ctx, lessonID)
		require.NoError(t, err)
		assert.Equal(t, lesson, again)
	})

	t.Run("put and replace", func(t *testing.T) {
		c := lessons.NewCatalog()
		other := learner.NewLesson(uuid.New(), "A lesson")
		c.Put(lesson)
		c.Put(other)
		assert.Equal(t, 2, c.Len())
		assert.Equal(t, []learner.Lesson{other, lesson}, c.Lessons())

		c.Replace([]learner.Lesson{other})
		assert.Equal(t, 1, c.Len())
		_, err := c.FindLesson(ctx, lessonID)
		assert.ErrorIs(t, err, learner.ErrNotFound)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := catalog.FindLesson(cctx, lessonID)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestLoadFromBucket(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	require.NoError(t, bucket.WriteAll(ctx, lessons.DefaultCatalogKey, []byte(catalogYAML), nil))

	catalog, err := lessons.LoadFromBucket(ctx, bucket, "")
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	_, err = lessons.LoadFromBucket(ctx, bucket, "missing.yaml")
	assert.Error(t, err)
}

func TestOpenCatalog_File(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, writeFile(dir, "catalog.yaml", catalogYAML))

	catalog, err := lessons.OpenCatalog(ctx, "file://"+dir, "catalog.yaml")
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	_, err = lessons.OpenCatalog(ctx, "", "catalog.yaml")
	assert.Error(t, err)
}
