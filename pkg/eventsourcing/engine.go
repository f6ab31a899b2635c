package eventsourcing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/messaging"
	"github.com/plaenen/learnerstore/pkg/store"
)

// engineConfig holds the optional collaborators of an Engine.
type engineConfig struct {
	bus        messaging.EventBus
	logger     *slog.Logger
	maxRetries int
	now        func() time.Time
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		logger:     slog.Default(),
		maxRetries: 3,
		now:        domain.Now,
	}
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

// WithEventBus publishes committed events to bus after every successful append.
func WithEventBus(bus messaging.EventBus) EngineOption {
	return func(c *engineConfig) {
		c.bus = bus
	}
}

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(c *engineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxConflictRetries sets how many times a command is re-decided after an
// optimistic concurrency conflict. Default is 3; 0 disables retries.
func WithMaxConflictRetries(n int) EngineOption {
	return func(c *engineConfig) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithClock overrides the clock used to timestamp envelopes.
func WithClock(now func() time.Time) EngineOption {
	return func(c *engineConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// Engine executes commands for one aggregate kind against an event store.
// It holds no per-aggregate state and is safe for concurrent use; appends for the
// same aggregate are serialised by the store's expected-version check.
type Engine[S any, C Command, E any, P any] struct {
	decider Decider[S, C, E, P]
	codec   Codec[E]
	store   store.EventStore
	port    P
	cfg     engineConfig
}

// NewEngine creates an engine for decider, persisting through es and handing port
// to every decision.
func NewEngine[S any, C Command, E any, P any](
	decider Decider[S, C, E, P],
	codec Codec[E],
	es store.EventStore,
	port P,
	opts ...EngineOption,
) *Engine[S, C, E, P] {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Engine[S, C, E, P]{
		decider: decider,
		codec:   codec,
		store:   es,
		port:    port,
		cfg:     cfg,
	}
}

// Load replays the stored stream of aggregateID and returns the folded state
// together with the stream version.
func (e *Engine[S, C, E, P]) Load(ctx context.Context, aggregateID string) (S, int64, error) {
	var zero S

	envelopes, err := e.store.LoadEvents(ctx, aggregateID, 0)
	if err != nil {
		return zero, 0, fmt.Errorf("failed to load events: %w", err)
	}

	events, err := DecodeEvents(e.codec, envelopes)
	if err != nil {
		return zero, 0, err
	}

	var version int64
	if n := len(envelopes); n > 0 {
		version = envelopes[n-1].Version
	}

	return e.decider.Replay(events...), version, nil
}

// Execute decides cmd against the current state of its aggregate and appends the
// resulting batch. Decision errors are returned unchanged and nothing is appended.
// On a concurrency conflict the decision is re-run against fresh history.
func (e *Engine[S, C, E, P]) Execute(ctx context.Context, cmd C, meta domain.CommandMetadata) (*domain.CommandResult, error) {
	aggregateID := cmd.AggregateID()
	if aggregateID == "" {
		return nil, fmt.Errorf("%w: aggregate id is required", domain.ErrInvalidCommand)
	}

	var result *domain.CommandResult
	err := store.RetryOnConflict(ctx, e.cfg.maxRetries, func(attempt int) error {
		if attempt > 0 {
			e.cfg.logger.WarnContext(ctx, "retrying command after concurrency conflict",
				slog.String("command_type", cmd.CommandType()),
				slog.String("aggregate_id", aggregateID),
				slog.Int("attempt", attempt),
			)
		}

		r, err := e.decideAndAppend(ctx, aggregateID, cmd, meta)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, result.Events)
	return result, nil
}

// Handle implements CommandHandler so the engine can be registered on a CommandBus.
func (e *Engine[S, C, E, P]) Handle(ctx context.Context, env *domain.CommandEnvelope) ([]*domain.Event, error) {
	cmd, ok := env.Command.(C)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected command %T for %s", domain.ErrInvalidCommand, env.Command, e.decider.AggregateType)
	}

	result, err := e.Execute(ctx, cmd, env.Metadata)
	if err != nil {
		return nil, err
	}
	return result.Events, nil
}

func (e *Engine[S, C, E, P]) decideAndAppend(ctx context.Context, aggregateID string, cmd C, meta domain.CommandMetadata) (*domain.CommandResult, error) {
	state, version, err := e.Load(ctx, aggregateID)
	if err != nil {
		return nil, err
	}

	decided, err := e.decider.Decide(ctx, state, cmd, e.port)
	if err != nil {
		return nil, err
	}

	// A cancelled decision is discarded even if the decider produced events.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := e.cfg.now()
	if len(decided) == 0 {
		return &domain.CommandResult{
			CommandID:   meta.CommandID,
			AggregateID: aggregateID,
			Version:     version,
			ProcessedAt: now,
		}, nil
	}

	envelopes, err := e.encode(aggregateID, version, decided, meta, now)
	if err != nil {
		return nil, err
	}

	newVersion, err := e.store.AppendEvents(ctx, aggregateID, version, envelopes)
	if err != nil {
		return nil, fmt.Errorf("failed to append events: %w", err)
	}

	e.cfg.logger.DebugContext(ctx, "command decided",
		slog.String("command_type", cmd.CommandType()),
		slog.String("aggregate_id", aggregateID),
		slog.Int("events_count", len(envelopes)),
		slog.Int64("version", newVersion),
	)

	return &domain.CommandResult{
		CommandID:   meta.CommandID,
		AggregateID: aggregateID,
		Events:      envelopes,
		Version:     newVersion,
		ProcessedAt: now,
	}, nil
}

func (e *Engine[S, C, E, P]) encode(aggregateID string, version int64, events []E, meta domain.CommandMetadata, now time.Time) ([]*domain.Event, error) {
	envelopes := make([]*domain.Event, len(events))
	for i, evt := range events {
		data, err := e.codec.Marshal(evt)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event: %w", err)
		}

		var eventID string
		if meta.CommandID != "" {
			eventID = domain.GenerateDeterministicEventID(meta.CommandID, aggregateID, i)
		} else {
			eventID = domain.GenerateID()
		}

		envelopes[i] = &domain.Event{
			ID:            eventID,
			AggregateID:   aggregateID,
			AggregateType: e.decider.AggregateType,
			EventType:     e.codec.EventType(evt),
			SchemaVersion: e.codec.SchemaVersion(evt),
			Version:       version + int64(i) + 1,
			Timestamp:     now,
			Data:          data,
			Metadata:      meta.EventMetadata(),
		}
	}
	return envelopes, nil
}

// publish hands committed events to the bus. The store is already the source of
// truth at this point, so failures are logged and projections catch up from the store.
func (e *Engine[S, C, E, P]) publish(ctx context.Context, events []*domain.Event) {
	if e.cfg.bus == nil || len(events) == 0 {
		return
	}
	if err := e.cfg.bus.Publish(ctx, events); err != nil {
		e.cfg.logger.WarnContext(ctx, "failed to publish committed events",
			slog.String("aggregate_id", events[0].AggregateID),
			slog.Int("events_count", len(events)),
			slog.String("error", err.Error()),
		)
	}
}
