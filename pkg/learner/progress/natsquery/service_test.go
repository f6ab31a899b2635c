package natsquery_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/learner"
	"github.com/plaenen/learnerstore/pkg/learner/progress"
	"github.com/plaenen/learnerstore/pkg/learner/progress/natsquery"
	"github.com/plaenen/learnerstore/pkg/lessons"
	natsbus "github.com/plaenen/learnerstore/pkg/messaging/nats"
	"github.com/plaenen/learnerstore/pkg/projection"
	"github.com/plaenen/learnerstore/pkg/store/memory"
)

var (
	learnerID = uuid.MustParse("0b6f1d7e-5c62-4d8f-9a44-2f3c1d2e7a10")
	lessonID  = uuid.MustParse("7a1c9e52-31b4-4c0e-8f7d-6e5b4a3c2d11")
)

func startService(t *testing.T) *nats.Conn {
	t.Helper()
	ctx := context.Background()

	srv, err := natsbus.StartEmbeddedServer()
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown() })

	nc, err := srv.Connect()
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	catalog := lessons.NewCatalog(learner.NewLesson(lessonID, "Lesson 1",
		learner.Video{ID: 1, URL: "https://example.com/1.mp4"},
		learner.Question{ID: 2, Prompt: "Done?"},
	))
	es := memory.NewEventStore()
	engine := learner.NewEngine(es, catalog)
	for _, cmd := range []learner.Command{
		learner.CreateLearner{LearnerID: learnerID, Name: "James Doe"},
		learner.StartLesson{LearnerID: learnerID, LessonID: lessonID},
		learner.CompleteVideo{LearnerID: learnerID, LessonID: lessonID, StepID: 1},
	} {
		_, err := engine.Execute(ctx, cmd, domain.CommandMetadata{})
		require.NoError(t, err)
	}

	read := progress.NewStore()
	manager := projection.NewManager(es, memory.NewCheckpointStore())
	manager.Register(read.Projection())
	_, err = manager.CatchUp(ctx, progress.ProjectionName)
	require.NoError(t, err)

	svc := natsquery.New(natsbus.StaticConn(nc), read)
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(func() { _ = svc.Stop(ctx) })
	return nc
}

func TestGet(t *testing.T) {
	nc := startService(t)

	msg, err := nc.Request("learner.progress.get", []byte(learnerID.String()), 2*time.Second)
	require.NoError(t, err)
	require.Empty(t, msg.Header.Get(micro.ErrorCodeHeader))

	var got progress.Learner
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "James Doe", got.Name)
	require.Len(t, got.Lessons, 1)
	assert.Equal(t, []learner.StepID{1}, got.Lessons[0].Completed)
	assert.Equal(t, "50", got.Lessons[0].Percent.String())
}

func TestGetErrors(t *testing.T) {
	nc := startService(t)

	msg, err := nc.Request("learner.progress.get", []byte(uuid.NewString()), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "404", msg.Header.Get(micro.ErrorCodeHeader))

	msg, err = nc.Request("learner.progress.get", []byte("nope"), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "400", msg.Header.Get(micro.ErrorCodeHeader))
}

func TestList(t *testing.T) {
	nc := startService(t)

	msg, err := nc.Request("learner.progress.list", nil, 2*time.Second)
	require.NoError(t, err)

	var got []progress.Learner
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, learnerID, got[0].LearnerID)
}

func TestStartWithoutConnection(t *testing.T) {
	svc := natsquery.New(func() *nats.Conn { return nil }, progress.NewStore())
	assert.Error(t, svc.Start(context.Background()))
	assert.NoError(t, svc.Stop(context.Background()))
}
