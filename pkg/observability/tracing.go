package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EndSpan ends a span, optionally recording an error
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// TraceID extracts the trace ID from context as a string
func TraceID(ctx context.Context) string {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// SetSpanAttributes adds attributes to the current span in the context
func SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// SetSpanError records an error on the current span in the context
func SetSpanError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Common attribute keys
var (
	// Aggregate attributes
	AttrAggregateID   = attribute.Key("aggregate.id")
	AttrAggregateType = attribute.Key("aggregate.type")
	AttrVersion       = attribute.Key("aggregate.version")

	// Command attributes
	AttrCommandType = attribute.Key("command.type")
	AttrCommandID   = attribute.Key("command.id")

	// Event attributes
	AttrEventType  = attribute.Key("event.type")
	AttrEventCount = attribute.Key("event.count")

	// Lesson attributes
	AttrLessonID = attribute.Key("lesson.id")

	// Event store attributes
	AttrOperation = attribute.Key("eventstore.operation")

	// Error attributes
	AttrErrorType = attribute.Key("error.type")
	AttrErrorCode = attribute.Key("error.code")
)

// AggregateAttrs returns common aggregate attributes
func AggregateAttrs(id, aggregateType string, version int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAggregateID.String(id),
		AttrAggregateType.String(aggregateType),
		AttrVersion.Int64(version),
	}
}

// CommandAttrs returns common command attributes
func CommandAttrs(commandType, commandID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrCommandType.String(commandType),
	}
	if commandID != "" {
		attrs = append(attrs, AttrCommandID.String(commandID))
	}
	return attrs
}

// ErrorAttrs returns common error attributes
func ErrorAttrs(err error, code string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrErrorType.String(fmt.Sprintf("%T", err)),
	}
	if code != "" {
		attrs = append(attrs, AttrErrorCode.String(code))
	}
	return attrs
}
