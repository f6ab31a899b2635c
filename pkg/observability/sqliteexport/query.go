package sqliteexport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
)

// SpanQuery filters stored spans. Zero fields match everything.
type SpanQuery struct {
	TraceID string
	Name    string
	// ErrorsOnly keeps spans whose status is Error.
	ErrorsOnly bool
	Limit      int
}

// Span is a stored span.
type Span struct {
	SpanID        string
	TraceID       string
	ParentSpanID  string
	Name          string
	StartTime     time.Time
	EndTime       time.Time
	StatusCode    codes.Code
	StatusMessage string
	Attributes    map[string]any
}

// Duration is EndTime minus StartTime.
func (s Span) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// MetricPoint is one stored data point.
type MetricPoint struct {
	Name       string
	Type       string
	RecordedAt time.Time
	Value      *float64
	Count      *int64
	Sum        *float64
	Attributes map[string]any
}

// Spans returns stored spans ordered by start time.
func (e *Exporter) Spans(ctx context.Context, q SpanQuery) ([]Span, error) {
	var (
		where []string
		args  []any
	)
	if q.TraceID != "" {
		where = append(where, "trace_id = ?")
		args = append(args, q.TraceID)
	}
	if q.Name != "" {
		where = append(where, "name = ?")
		args = append(args, q.Name)
	}
	if q.ErrorsOnly {
		where = append(where, "status_code = ?")
		args = append(args, int(codes.Error))
	}

	query := `SELECT span_id, trace_id, COALESCE(parent_span_id, ''), name, start_time, end_time,
		status_code, COALESCE(status_message, ''), COALESCE(attributes, '{}') FROM otel_spans`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query spans: %w", err)
	}
	defer rows.Close()

	var spans []Span
	for rows.Next() {
		var (
			s          Span
			start, end int64
			status     int
			attrs      string
		)
		if err := rows.Scan(&s.SpanID, &s.TraceID, &s.ParentSpanID, &s.Name, &start, &end, &status, &s.StatusMessage, &attrs); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		s.StartTime = time.Unix(0, start).UTC()
		s.EndTime = time.Unix(0, end).UTC()
		s.StatusCode = codes.Code(status)
		if err := json.Unmarshal([]byte(attrs), &s.Attributes); err != nil {
			return nil, fmt.Errorf("decode span attributes: %w", err)
		}
		spans = append(spans, s)
	}
	return spans, rows.Err()
}

// Metrics returns every stored point of the named metric, oldest first.
func (e *Exporter) Metrics(ctx context.Context, name string) ([]MetricPoint, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT name, type, recorded_at, value, count, sum, COALESCE(attributes, '{}')
		FROM otel_metrics WHERE name = ? ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var points []MetricPoint
	for rows.Next() {
		var (
			p          MetricPoint
			recordedAt int64
			attrs      string
		)
		if err := rows.Scan(&p.Name, &p.Type, &recordedAt, &p.Value, &p.Count, &p.Sum, &attrs); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		p.RecordedAt = time.Unix(0, recordedAt).UTC()
		if err := json.Unmarshal([]byte(attrs), &p.Attributes); err != nil {
			return nil, fmt.Errorf("decode metric attributes: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
