// Package middleware provides command bus middleware for logging, panic
// recovery, validation, tracing and metrics.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/eventsourcing"
)

// Logging logs command execution with timing information using slog.
func Logging(logger *slog.Logger) eventsourcing.CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next eventsourcing.CommandHandler) eventsourcing.CommandHandler {
		return eventsourcing.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
			start := time.Now()
			commandType := eventsourcing.CommandTypeOf(cmd)

			logger.InfoContext(ctx, "executing command",
				slog.String("command_type", commandType),
				slog.String("command_id", cmd.Metadata.CommandID),
				slog.String("aggregate_id", eventsourcing.AggregateIDOf(cmd)),
				slog.String("principal_id", cmd.Metadata.PrincipalID),
				slog.String("correlation_id", cmd.Metadata.CorrelationID),
			)

			events, err := next.Handle(ctx, cmd)
			duration := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "command failed",
					slog.String("command_type", commandType),
					slog.String("command_id", cmd.Metadata.CommandID),
					slog.String("error_code", eventsourcing.ErrorCode(err)),
					slog.Int64("duration_ms", duration.Milliseconds()),
					slog.String("error", err.Error()),
				)
				return nil, err
			}

			logger.InfoContext(ctx, "command executed",
				slog.String("command_type", commandType),
				slog.String("command_id", cmd.Metadata.CommandID),
				slog.Int("events_count", len(events)),
				slog.Int64("duration_ms", duration.Milliseconds()),
			)
			return events, nil
		})
	}
}
