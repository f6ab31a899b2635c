package eventsourcing

import (
	"context"

	"github.com/plaenen/learnerstore/pkg/domain"
)

// CommandHandler processes a command and returns the events it committed.
type CommandHandler interface {
	Handle(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error)
}

// CommandHandlerFunc is a function adapter for CommandHandler.
type CommandHandlerFunc func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error)

// Handle implements CommandHandler.
func (f CommandHandlerFunc) Handle(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
	return f(ctx, cmd)
}

// CommandMiddleware wraps command handlers with cross-cutting concerns.
type CommandMiddleware func(CommandHandler) CommandHandler

// CommandTypeOf returns the type name of the enveloped command, or "unknown".
func CommandTypeOf(cmd *domain.CommandEnvelope) string {
	if cmd == nil {
		return "unknown"
	}
	if c, ok := cmd.Command.(Command); ok {
		return c.CommandType()
	}
	return "unknown"
}

// AggregateIDOf returns the target aggregate of the enveloped command, if known.
func AggregateIDOf(cmd *domain.CommandEnvelope) string {
	if cmd == nil {
		return ""
	}
	if c, ok := cmd.Command.(Command); ok {
		return c.AggregateID()
	}
	return ""
}
