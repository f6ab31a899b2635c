package middleware

import (
	"context"
	"time"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/eventsourcing"
	"github.com/plaenen/learnerstore/pkg/observability"
)

// Metrics records command duration, count and failures by error code.
func Metrics(metrics *observability.Metrics) eventsourcing.CommandMiddleware {
	return func(next eventsourcing.CommandHandler) eventsourcing.CommandHandler {
		return eventsourcing.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
			start := time.Now()
			events, err := next.Handle(ctx, cmd)

			code := ""
			if err != nil {
				code = eventsourcing.ErrorCode(err)
			}
			metrics.RecordCommand(ctx, eventsourcing.CommandTypeOf(cmd), time.Since(start), code)
			return events, err
		})
	}
}
