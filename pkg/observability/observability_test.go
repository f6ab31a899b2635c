package observability_test

import (
	"context"
	"testing"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/observability"
	"github.com/plaenen/learnerstore/pkg/store/memory"
	"github.com/plaenen/learnerstore/pkg/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTelemetry(t *testing.T) (*observability.Telemetry, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	exporter := tracetest.NewInMemoryExporter()
	tel, err := observability.Init(context.Background(), observability.Config{
		ServiceName:     "learnerd-test",
		TraceExporter:   exporter,
		TraceSampleRate: 1,
		SyncExport:      true,
		MetricReader:    reader,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	return tel, reader, exporter
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sum(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	data, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)

	var total int64
	for _, dp := range data.DataPoints {
		total += dp.Value
	}
	return total
}

func TestInstrumentEventStore(t *testing.T) {
	ctx := context.Background()
	tel, reader, exporter := newTestTelemetry(t)

	es := observability.InstrumentEventStore(memory.NewEventStore(), tel)

	_, err := es.AppendEvents(ctx, "a", 0, storetest.NewEvents("a", 0, 2))
	require.NoError(t, err)

	_, err = es.AppendEvents(ctx, "a", 0, storetest.NewEvents("a", 0, 1))
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	events, err := es.LoadEvents(ctx, "a", 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sum(t, metrics["learner.events.appended"]))
	assert.Equal(t, int64(1), sum(t, metrics["learner.eventstore.conflicts"]))
	assert.Contains(t, metrics, "learner.eventstore.latency")

	spans := exporter.GetSpans()
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"eventstore.append", "eventstore.append", "eventstore.load"}, names)
}

func TestNoopTelemetry(t *testing.T) {
	tel := observability.NewNoop()
	es := observability.InstrumentEventStore(memory.NewEventStore(), tel)

	_, err := es.AppendEvents(context.Background(), "a", 0, storetest.NewEvents("a", 0, 1))
	require.NoError(t, err)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestRecordCommand(t *testing.T) {
	tel, reader, _ := newTestTelemetry(t)
	ctx := context.Background()

	tel.Metrics.RecordCommand(ctx, "StartLesson", 0, "")
	tel.Metrics.RecordCommand(ctx, "StartLesson", 0, "NOT_FOUND")

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sum(t, metrics["learner.command.total"]))
	assert.Equal(t, int64(1), sum(t, metrics["learner.command.errors"]))
}
