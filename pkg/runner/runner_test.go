package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func recorded(j *journal, name string, startErr error) Func {
	return Func{
		ServiceName: name,
		OnStart: func(context.Context) error {
			j.add("start " + name)
			return startErr
		},
		OnStop: func(context.Context) error {
			j.add("stop " + name)
			return nil
		},
	}
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunner_StartsInOrderAndStopsInReverse(t *testing.T) {
	j := &journal{}
	r := New([]Service{recorded(j, "a", nil), recorded(j, "b", nil), recorded(j, "c", nil)},
		quiet(), WithSignalHandling(false))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return len(j.list()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}

	assert.Equal(t, []string{"start a", "start b", "start c", "stop c", "stop b", "stop a"}, j.list())
}

func TestRunner_StartFailureStopsStartedServices(t *testing.T) {
	j := &journal{}
	boom := errors.New("boom")
	r := New([]Service{recorded(j, "a", nil), recorded(j, "b", boom), recorded(j, "c", nil)},
		quiet(), WithSignalHandling(false))

	err := r.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "start service b")
	assert.Equal(t, []string{"start a", "start b", "stop a"}, j.list())
}

func TestRunner_StopErrorsAreJoined(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	r := New([]Service{
		Func{ServiceName: "a", OnStop: func(context.Context) error { return first }},
		Func{ServiceName: "b", OnStop: func(context.Context) error { return second }},
	}, quiet(), WithSignalHandling(false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}

func TestRunner_StartupTimeoutIsApplied(t *testing.T) {
	slow := Func{
		ServiceName: "slow",
		OnStart: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	r := New([]Service{slow}, quiet(), WithSignalHandling(false), WithStartupTimeout(20*time.Millisecond))

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type healthy struct {
	Func
	err error
}

func (h healthy) HealthCheck(context.Context) error { return h.err }

func TestRunner_HealthCheck(t *testing.T) {
	sick := errors.New("sick")

	ok := New([]Service{healthy{Func: Func{ServiceName: "a"}}, Func{ServiceName: "plain"}})
	assert.NoError(t, ok.HealthCheck(context.Background()))

	bad := New([]Service{healthy{Func: Func{ServiceName: "a"}}, healthy{Func: Func{ServiceName: "b"}, err: sick}})
	err := bad.HealthCheck(context.Background())
	require.ErrorIs(t, err, sick)
	assert.Contains(t, err.Error(), "service b unhealthy")
}
