package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/eventsourcing"
	"github.com/plaenen/learnerstore/pkg/observability"
)

// Tracing wraps each command in a span named command.<CommandType>.
func Tracing(tracer trace.Tracer) eventsourcing.CommandMiddleware {
	return func(next eventsourcing.CommandHandler) eventsourcing.CommandHandler {
		return eventsourcing.CommandHandlerFunc(func(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
			commandType := eventsourcing.CommandTypeOf(cmd)

			attrs := observability.CommandAttrs(commandType, cmd.Metadata.CommandID)
			attrs = append(attrs,
				observability.AttrAggregateID.String(eventsourcing.AggregateIDOf(cmd)),
				attribute.String("command.principal_id", cmd.Metadata.PrincipalID),
				attribute.String("command.correlation_id", cmd.Metadata.CorrelationID),
			)

			ctx, span := tracer.Start(ctx, "command."+commandType,
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			events, err := next.Handle(ctx, cmd)
			if err != nil {
				span.RecordError(err)
				span.SetAttributes(observability.ErrorAttrs(err, eventsourcing.ErrorCode(err))...)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}

			span.SetAttributes(observability.AttrEventCount.Int(len(events)))
			if len(events) > 0 {
				eventTypes := make([]string, len(events))
				for i, evt := range events {
					eventTypes[i] = evt.EventType
				}
				span.SetAttributes(
					attribute.StringSlice("events.types", eventTypes),
					observability.AttrVersion.Int64(events[len(events)-1].Version),
				)
			}
			span.SetStatus(codes.Ok, "")
			return events, nil
		})
	}
}
