package eventsourcing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/plaenen/learnerstore/pkg/domain"
)

// CommandBus routes commands to the handler registered for their type.
type CommandBus struct {
	handlers   map[string]CommandHandler
	middleware []CommandMiddleware
	mu         sync.RWMutex
}

// NewCommandBus creates a new command bus instance.
func NewCommandBus() *CommandBus {
	return &CommandBus{
		handlers:   make(map[string]CommandHandler),
		middleware: make([]CommandMiddleware, 0),
	}
}

// Register registers a handler for a specific command type.
func (b *CommandBus) Register(commandType string, handler CommandHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[commandType]; exists {
		panic(fmt.Sprintf("handler already registered for command type: %s", commandType))
	}

	b.handlers[commandType] = handler
}

// Use adds middleware to the command processing pipeline.
// Middleware is executed in the order it was added (first added = outermost).
func (b *CommandBus) Use(middleware CommandMiddleware) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.middleware = append(b.middleware, middleware)
}

// Send dispatches a command to its registered handler and returns the committed events.
func (b *CommandBus) Send(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
	if cmd == nil || cmd.Command == nil {
		return nil, domain.ErrInvalidCommand
	}

	c, ok := cmd.Command.(Command)
	if !ok {
		return nil, fmt.Errorf("%w: %T does not name its type", domain.ErrInvalidCommand, cmd.Command)
	}
	commandType := c.CommandType()

	b.mu.RLock()
	handler, exists := b.handlers[commandType]
	middleware := b.middleware
	b.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrCommandNotFound, commandType)
	}

	// Build middleware chain (reverse order so first added is outermost)
	finalHandler := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		finalHandler = middleware[i](finalHandler)
	}

	return finalHandler.Handle(ctx, cmd)
}

// RegisteredTypes returns the registered command types in sorted order.
func (b *CommandBus) RegisteredTypes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	types := make([]string, 0, len(b.handlers))
	for t := range b.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
