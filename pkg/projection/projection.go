// Package projection builds read models from the event log.
//
// Projections are caught up from the event store using a persisted checkpoint,
// so they can always be rebuilt from history. The event bus is only used as a
// wake-up signal; a missed notification is repaired by the next catch-up.
package projection

import (
	"context"

	"github.com/plaenen/learnerstore/pkg/domain"
)

// Projection builds a read model from events.
type Projection interface {
	// Name returns the unique name of this projection. It keys the checkpoint.
	Name() string

	// Handle processes an event and updates the read model.
	Handle(ctx context.Context, event *domain.Event) error

	// Reset clears the read model before a rebuild.
	Reset(ctx context.Context) error
}

// HandlerFunc handles one event type.
type HandlerFunc func(ctx context.Context, event *domain.Event) error

// Builder provides a fluent API for assembling a projection from per-event-type handlers.
//
//	p := projection.NewBuilder("learner-progress").
//		On("LearnerCreated", onCreated).
//		On("LessonStarted", onStarted).
//		OnReset(reset).
//		Build()
type Builder struct {
	name      string
	handlers  map[string]HandlerFunc
	resetFunc func(context.Context) error
}

// NewBuilder creates a builder for a projection called name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:     name,
		handlers: make(map[string]HandlerFunc),
	}
}

// On registers the handler for eventType, replacing any earlier one.
func (b *Builder) On(eventType string, handler HandlerFunc) *Builder {
	b.handlers[eventType] = handler
	return b
}

// OnReset registers a function to reset the projection state.
func (b *Builder) OnReset(resetFunc func(context.Context) error) *Builder {
	b.resetFunc = resetFunc
	return b
}

// Build creates the projection.
func (b *Builder) Build() Projection {
	handlers := make(map[string]HandlerFunc, len(b.handlers))
	for k, v := range b.handlers {
		handlers[k] = v
	}
	return &builtProjection{
		name:      b.name,
		handlers:  handlers,
		resetFunc: b.resetFunc,
	}
}

type builtProjection struct {
	name      string
	handlers  map[string]HandlerFunc
	resetFunc func(context.Context) error
}

func (p *builtProjection) Name() string {
	return p.name
}

// Handle dispatches to the handler for the event type. Events without one are skipped.
func (p *builtProjection) Handle(ctx context.Context, event *domain.Event) error {
	handler, exists := p.handlers[event.EventType]
	if !exists {
		return nil
	}
	return handler(ctx, event)
}

func (p *builtProjection) Reset(ctx context.Context) error {
	if p.resetFunc == nil {
		return nil
	}
	return p.resetFunc(ctx)
}
