package eventbus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/messaging"
	natsbus "github.com/plaenen/learnerstore/pkg/messaging/nats"
	"github.com/plaenen/learnerstore/pkg/runner"
	"github.com/plaenen/learnerstore/pkg/runtime/embeddednats"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() natsbus.Config {
	cfg := natsbus.DefaultConfig()
	cfg.StreamName = "TEST_EVENTS"
	cfg.Storage = nats.MemoryStorage
	return cfg
}

func TestService_NotStarted(t *testing.T) {
	svc := New()

	assert.Equal(t, "eventbus", svc.Name())
	assert.Nil(t, svc.Conn())
	assert.ErrorIs(t, svc.Publish(context.Background(), []*domain.Event{{ID: "e"}}), ErrNotStarted)

	_, err := svc.Subscribe(messaging.EventFilter{}, func(*domain.Event) error { return nil })
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, svc.HealthCheck(context.Background()), ErrNotStarted)
	assert.NoError(t, svc.Stop(context.Background()))
}

func TestService_StartRequiresURL(t *testing.T) {
	svc := New(WithURLFunc(func() string { return "" }), WithLogger(quietLogger()))
	assert.Error(t, svc.Start(context.Background()))
}

func TestService_WithEmbeddedServer(t *testing.T) {
	natsSvc := embeddednats.New(embeddednats.WithLogger(quietLogger()))
	busSvc := New(
		WithConfig(testConfig()),
		WithURLFunc(natsSvc.URL),
		WithLogger(quietLogger()),
	)

	r := runner.New([]runner.Service{natsSvc, busSvc},
		runner.WithLogger(quietLogger()), runner.WithSignalHandling(false))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return busSvc.Conn() != nil }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, r.HealthCheck(context.Background()))

	received := make(chan *domain.Event, 1)
	sub, err := busSvc.Subscribe(messaging.EventFilter{AggregateTypes: []string{"learner"}},
		func(e *domain.Event) error {
			received <- e
			return nil
		})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, busSvc.Publish(context.Background(), []*domain.Event{{
		ID:            "evt-1",
		AggregateID:   "agg-1",
		AggregateType: "learner",
		EventType:     "LearnerCreated",
		Version:       1,
	}}))

	select {
	case e := <-received:
		assert.Equal(t, "evt-1", e.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not shut down")
	}
	assert.Nil(t, busSvc.Conn())
}
