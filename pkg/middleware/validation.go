package middleware

import (
	"context"
	"fmt"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/eventsourcing"
)

// Validatable is implemented by commands that can check their own fields.
type Validatable interface {
	Validate() error
}

// Validation rejects commands whose Validate method fails, wrapping the
// failure in domain.ErrInvalidCommand. Commands without Validate pass through.
func Validation() eventsourcing.CommandMiddleware {
	return func(next eventsourcing.CommandHandler) eventsourcing.CommandHandler {
		return eventsourcing.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
			if cmd == nil || cmd.Command == nil {
				return nil, domain.ErrInvalidCommand
			}
			if v, ok := cmd.Command.(Validatable); ok {
				if err := v.Validate(); err != nil {
					return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidCommand, eventsourcing.CommandTypeOf(cmd), err)
				}
			}
			return next.Handle(ctx, cmd)
		})
	}
}
