package lessons

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/plaenen/learnerstore/pkg/learner"
	"github.com/plaenen/learnerstore/pkg/observability"
	"go.opentelemetry.io/otel/trace"
)

// Instrument wraps lookup with a span and a duration metric per call.
func Instrument(next learner.LessonLookup, tel *observability.Telemetry) learner.LessonLookup {
	return &instrumented{next: next, tel: tel, tracer: tel.Tracer()}
}

type instrumented struct {
	next   learner.LessonLookup
	tel    *observability.Telemetry
	tracer trace.Tracer
}

func (l *instrumented) FindLesson(ctx context.Context, id uuid.UUID) (learner.Lesson, error) {
	ctx, span := l.tracer.Start(ctx, "lessons.find",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(observability.AttrLessonID.String(id.String())),
	)

	start := time.Now()
	lesson, err := l.next.FindLesson(ctx, id)

	result := "found"
	switch {
	case errors.Is(err, learner.ErrNotFound):
		// A miss is an answer, not a failure of the lookup.
		result = "not_found"
		span.SetAttributes(observability.AttrErrorCode.String("NOT_FOUND"))
		observability.EndSpan(span, nil)
	case err != nil:
		result = "failed"
		observability.EndSpan(span, err)
	default:
		observability.EndSpan(span, nil)
	}

	l.tel.Metrics.RecordLookup(ctx, time.Since(start), result)
	return lesson, err
}
