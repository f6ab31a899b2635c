package lessons_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/plaenen/learnerstore/pkg/learner"
	"github.com/plaenen/learnerstore/pkg/lessons"
	"github.com/plaenen/learnerstore/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	exporter := tracetest.NewInMemoryExporter()
	tel, err := observability.Init(ctx, observability.Config{
		ServiceName:     "lessons-test",
		TraceExporter:   exporter,
		TraceSampleRate: 1,
		SyncExport:      true,
		MetricReader:    reader,
	})
	require.NoError(t, err)
	defer tel.Shutdown(ctx)

	boom := errors.New("boom")
	lookup := lessons.Instrument(learner.LessonLookupFunc(func(_ context.Context, id uuid.UUID) (learner.Lesson, error) {
		switch id {
		case lessonID:
			return learner.NewLesson(id, "Lesson 1"), nil
		case uuid.Nil:
			return learner.Lesson{}, boom
		default:
			return learner.Lesson{}, &learner.LessonNotFoundError{LessonID: id}
		}
	}), tel)

	_, err = lookup.FindLesson(ctx, lessonID)
	require.NoError(t, err)
	_, err = lookup.FindLesson(ctx, uuid.New())
	assert.ErrorIs(t, err, learner.ErrNotFound)
	_, err = lookup.FindLesson(ctx, uuid.Nil)
	assert.ErrorIs(t, err, boom)

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, "lessons.find", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[1].Status.Code)
	assert.Equal(t, codes.Error, spans[2].Status.Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	results := map[string]uint64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "learner.lesson_lookup.duration" {
				continue
			}
			hist := m.Data.(metricdata.Histogram[float64])
			for _, dp := range hist.DataPoints {
				v, _ := dp.Attributes.Value("result")
				results[v.AsString()] += dp.Count
			}
		}
	}
	assert.Equal(t, map[string]uint64{"found": 1, "not_found": 1, "failed": 1}, results)
}
