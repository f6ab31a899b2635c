package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/messaging"
	"github.com/plaenen/learnerstore/pkg/store"
)

// ErrProjectionNotFound is returned for names that were never registered.
var ErrProjectionNotFound = errors.New("projection not found")

const defaultBatchSize = 500

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithBatchSize sets how many events are read from the store per batch.
func WithBatchSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithEventBus lets Start wake projections when events are published.
func WithEventBus(bus messaging.EventBus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithEventHook is called after every event a projection handled. Used for metrics.
func WithEventHook(hook func(ctx context.Context, projection string, event *domain.Event)) Option {
	return func(m *Manager) {
		m.hook = hook
	}
}

// WithErrorHook is called when a background catch-up fails.
func WithErrorHook(hook func(ctx context.Context, projection string, err error)) Option {
	return func(m *Manager) {
		m.errorHook = hook
	}
}

type registered struct {
	projection Projection
	mu         sync.Mutex // serialises catch-up runs
}

// Manager coordinates projections over an event store.
type Manager struct {
	eventStore  store.EventStore
	checkpoints store.CheckpointStore
	bus         messaging.EventBus
	logger      *slog.Logger
	batchSize   int
	hook        func(ctx context.Context, projection string, event *domain.Event)
	errorHook   func(ctx context.Context, projection string, err error)

	mu          sync.RWMutex
	projections map[string]*registered
	running     map[string]context.CancelFunc
	wg          sync.WaitGroup
}

// NewManager creates a projection manager.
func NewManager(eventStore store.EventStore, checkpoints store.CheckpointStore, opts ...Option) *Manager {
	m := &Manager{
		eventStore:  eventStore,
		checkpoints: checkpoints,
		logger:      slog.Default(),
		batchSize:   defaultBatchSize,
		projections: make(map[string]*registered),
		running:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register registers a projection with the manager.
func (m *Manager) Register(projection Projection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.projections[projection.Name()] = &registered{projection: projection}
}

func (m *Manager) lookup(name string) (*registered, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.projections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectionNotFound, name)
	}
	return r, nil
}

// CatchUp feeds the projection every event after its checkpoint and returns the
// number of events handled. The checkpoint is saved after every batch and
// after the last handled event when a handler fails.
func (m *Manager) CatchUp(ctx context.Context, name string) (int, error) {
	r, err := m.lookup(name)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return m.catchUp(ctx, r.projection)
}

func (m *Manager) catchUp(ctx context.Context, p Projection) (int, error) {
	checkpoint, err := m.checkpoints.Load(ctx, p.Name())
	if errors.Is(err, domain.ErrCheckpointNotFound) {
		checkpoint = &store.ProjectionCheckpoint{ProjectionName: p.Name()}
	} else if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	handled := 0
	for {
		events, err := m.eventStore.LoadAllEvents(ctx, checkpoint.Position, m.batchSize)
		if err != nil {
			return handled, fmt.Errorf("failed to load events: %w", err)
		}
		if len(events) == 0 {
			return handled, nil
		}

		batchStart := handled
		for _, event := range events {
			if err := p.Handle(ctx, event); err != nil {
				handleErr := fmt.Errorf("projection %s failed on event %s: %w", p.Name(), event.ID, err)
				// Events already applied must not be applied again by the next run.
				if handled > batchStart {
					if err := m.saveCheckpoint(ctx, checkpoint); err != nil {
						return handled, errors.Join(handleErr, err)
					}
				}
				return handled, handleErr
			}
			if m.hook != nil {
				m.hook(ctx, p.Name(), event)
			}
			checkpoint.Position = event.Position
			checkpoint.LastEventID = event.ID
			handled++
		}

		if err := m.saveCheckpoint(ctx, checkpoint); err != nil {
			return handled, err
		}

		if len(events) < m.batchSize {
			return handled, nil
		}
	}
}

func (m *Manager) saveCheckpoint(ctx context.Context, checkpoint *store.ProjectionCheckpoint) error {
	checkpoint.UpdatedAt = domain.Now()
	if err := m.checkpoints.Save(ctx, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Rebuild resets the projection and replays the whole event log into it.
func (m *Manager) Rebuild(ctx context.Context, name string) error {
	r, err := m.lookup(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.projection.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset projection: %w", err)
	}
	if err := m.checkpoints.Delete(ctx, name); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	n, err := m.catchUp(ctx, r.projection)
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "projection rebuilt",
		slog.String("projection", name),
		slog.Int("events", n),
	)
	return nil
}

// Start catches the projection up and then keeps it current: every batch
// published on the event bus triggers another catch-up. Without a bus Start only
// performs the initial catch-up.
func (m *Manager) Start(ctx context.Context, name string) error {
	if _, err := m.CatchUp(ctx, name); err != nil {
		return err
	}
	if m.bus == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, running := m.running[name]; running {
		return fmt.Errorf("projection %s already running", name)
	}

	projCtx, cancel := context.WithCancel(ctx)
	wake := make(chan struct{}, 1)

	subscription, err := m.bus.Subscribe(messaging.EventFilter{}, func(*domain.Event) error {
		select {
		case wake <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	m.running[name] = cancel

	// Cover events appended between the initial catch-up and the subscription.
	// The subscription may already have queued a wake-up.
	select {
	case wake <- struct{}{}:
	default:
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if err := subscription.Unsubscribe(); err != nil {
				m.logger.Warn("failed to unsubscribe projection", slog.String("projection", name), slog.String("error", err.Error()))
			}
		}()

		for {
			select {
			case <-projCtx.Done():
				return
			case <-wake:
				if _, err := m.CatchUp(projCtx, name); err != nil && projCtx.Err() == nil {
					m.logger.ErrorContext(projCtx, "projection catch-up failed",
						slog.String("projection", name),
						slog.String("error", err.Error()),
					)
					if m.errorHook != nil {
						m.errorHook(projCtx, name, err)
					}
				}
			}
		}
	}()

	return nil
}

// Stop stops a running projection.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cancel, running := m.running[name]
	if !running {
		return fmt.Errorf("projection %s not running", name)
	}

	cancel()
	delete(m.running, name)
	return nil
}

// StopAll stops all running projections and waits for them to exit.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for name, cancel := range m.running {
		cancel()
		delete(m.running, name)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// Checkpoint returns the current checkpoint for a projection.
func (m *Manager) Checkpoint(ctx context.Context, name string) (*store.ProjectionCheckpoint, error) {
	return m.checkpoints.Load(ctx, name)
}
