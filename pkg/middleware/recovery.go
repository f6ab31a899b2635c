package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/eventsourcing"
)

// ErrHandlerPanic is wrapped by errors returned for recovered panics.
var ErrHandlerPanic = errors.New("command handler panicked")

// Recovery turns panics in command handlers into errors.
func Recovery(logger *slog.Logger) eventsourcing.CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next eventsourcing.CommandHandler) eventsourcing.CommandHandler {
		return eventsourcing.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) (events []*domain.Event, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "command handler panicked",
						slog.String("command_id", cmd.Metadata.CommandID),
						slog.String("command_type", eventsourcing.CommandTypeOf(cmd)),
						slog.Any("panic", r),
						slog.String("stack_trace", string(debug.Stack())),
					)
					events = nil
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()

			return next.Handle(ctx, cmd)
		})
	}
}
