// Package sqliteexport stores OpenTelemetry spans and metrics in SQLite so a
// single-binary deployment keeps its telemetry next to its event store.
package sqliteexport

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/plaenen/learnerstore/pkg/store/sqlite/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationTable tracks the telemetry schema version.
const MigrationTable = "telemetry_migrations"

// Option configures an Exporter.
type Option func(*Exporter)

// WithRetention deletes rows older than d after each export. Zero keeps everything.
func WithRetention(d time.Duration) Option {
	return func(e *Exporter) {
		e.retention = d
	}
}

// WithClock sets the time source for recorded_at. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// Exporter writes spans and metrics to a SQLite database it does not own.
type Exporter struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time
	mu        sync.Mutex
}

// New migrates the telemetry schema on db and returns an exporter.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Exporter, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	m := migrate.New(db, MigrationTable)
	if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("load telemetry migrations: %w", err)
	}
	if err := m.Up(ctx); err != nil {
		return nil, fmt.Errorf("run telemetry migrations: %w", err)
	}

	e := &Exporter{
		db:        db,
		retention: 7 * 24 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SpanExporter returns e as an sdktrace.SpanExporter.
func (e *Exporter) SpanExporter() sdktrace.SpanExporter {
	return (*spanExporter)(e)
}

// MetricExporter returns e as an sdkmetric.Exporter.
func (e *Exporter) MetricExporter() sdkmetric.Exporter {
	return (*metricExporter)(e)
}

type spanExporter Exporter

func (s *spanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if len(spans) == 0 {
		return nil
	}
	e := (*Exporter)(s)

	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO otel_spans (
			span_id, trace_id, parent_span_id, name, kind,
			start_time, end_time, status_code, status_message,
			attributes, events, resource_attributes, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare span statement: %w", err)
	}
	defer stmt.Close()

	recordedAt := e.now().UnixNano()
	for _, span := range spans {
		sc := span.SpanContext()

		var parentSpanID *string
		if span.Parent().SpanID().IsValid() {
			sid := span.Parent().SpanID().String()
			parentSpanID = &sid
		}

		if _, err := stmt.ExecContext(ctx,
			sc.SpanID().String(),
			sc.TraceID().String(),
			parentSpanID,
			span.Name(),
			int(span.SpanKind()),
			span.StartTime().UnixNano(),
			span.EndTime().UnixNano(),
			int(span.Status().Code),
			span.Status().Description,
			marshal(attributesToMap(span.Attributes())),
			marshal(eventsToSlice(span.Events())),
			marshal(attributesToMap(span.Resource().Attributes())),
			recordedAt,
		); err != nil {
			return fmt.Errorf("insert span: %w", err)
		}
	}

	if err := e.prune(ctx, tx, "otel_spans"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Shutdown is a no-op. The database is managed by the caller.
func (s *spanExporter) Shutdown(context.Context) error { return nil }

type metricExporter Exporter

func (m *metricExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	e := (*Exporter)(m)

	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO otel_metrics (
			name, description, unit, type, recorded_at,
			value, count, sum, min, max, attributes, resource_attributes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare metric statement: %w", err)
	}
	defer stmt.Close()

	resourceAttrs := marshal(attributesToMap(rm.Resource.Attributes()))
	recordedAt := e.now().UnixNano()

	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			for _, row := range rowsOf(metric.Data) {
				if _, err := stmt.ExecContext(ctx,
					metric.Name, metric.Description, metric.Unit, row.kind, recordedAt,
					row.value, row.count, row.sum, row.min, row.max,
					marshal(attributeSetToMap(row.attrs)), resourceAttrs,
				); err != nil {
					return fmt.Errorf("export metric %s: %w", metric.Name, err)
				}
			}
		}
	}

	if err := e.prune(ctx, tx, "otel_metrics"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (m *metricExporter) Temporality(kind sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(kind)
}

func (m *metricExporter) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(kind)
}

func (m *metricExporter) ForceFlush(context.Context) error { return nil }

func (m *metricExporter) Shutdown(context.Context) error { return nil }

func (e *Exporter) prune(ctx context.Context, tx *sql.Tx, table string) error {
	if e.retention <= 0 {
		return nil
	}
	cutoff := e.now().Add(-e.retention).UnixNano()
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE recorded_at < ?", cutoff); err != nil {
		return fmt.Errorf("prune %s: %w", table, err)
	}
	return nil
}

type metricRow struct {
	kind          string
	value         *float64
	count         *uint64
	sum, min, max *float64
	attrs         attribute.Set
}

func rowsOf(data metricdata.Aggregation) []metricRow {
	switch d := data.(type) {
	case metricdata.Gauge[int64]:
		return pointRows("gauge", d.DataPoints)
	case metricdata.Gauge[float64]:
		return pointRows("gauge", d.DataPoints)
	case metricdata.Sum[int64]:
		return pointRows("sum", d.DataPoints)
	case metricdata.Sum[float64]:
		return pointRows("sum", d.DataPoints)
	case metricdata.Histogram[int64]:
		return histogramRows(d.DataPoints)
	case metricdata.Histogram[float64]:
		return histogramRows(d.DataPoints)
	default:
		return nil
	}
}

func pointRows[N int64 | float64](kind string, points []metricdata.DataPoint[N]) []metricRow {
	rows := make([]metricRow, 0, len(points))
	for _, dp := range points {
		v := float64(dp.Value)
		rows = append(rows, metricRow{kind: kind, value: &v, attrs: dp.Attributes})
	}
	return rows
}

func histogramRows[N int64 | float64](points []metricdata.HistogramDataPoint[N]) []metricRow {
	rows := make([]metricRow, 0, len(points))
	for _, dp := range points {
		count := dp.Count
		sum := float64(dp.Sum)
		row := metricRow{kind: "histogram", count: &count, sum: &sum, attrs: dp.Attributes}
		if v, ok := dp.Min.Value(); ok {
			f := float64(v)
			row.min = &f
		}
		if v, ok := dp.Max.Value(); ok {
			f := float64(v)
			row.max = &f
		}
		rows = append(rows, row)
	}
	return rows
}

func marshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	m := make(map[string]any, len(attrs))
	for _, attr := range attrs {
		m[string(attr.Key)] = attr.Value.AsInterface()
	}
	return m
}

func attributeSetToMap(attrs attribute.Set) map[string]any {
	m := make(map[string]any, attrs.Len())
	iter := attrs.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func eventsToSlice(events []sdktrace.Event) []map[string]any {
	out := make([]map[string]any, len(events))
	for i, event := range events {
		out[i] = map[string]any{
			"name":       event.Name,
			"timestamp":  event.Time.UnixNano(),
			"attributes": attributesToMap(event.Attributes),
		}
	}
	return out
}
