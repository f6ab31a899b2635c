package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments
type Metrics struct {
	// Command metrics
	CommandDuration metric.Float64Histogram
	CommandTotal    metric.Int64Counter
	CommandErrors   metric.Int64Counter

	// Event store metrics
	EventsAppended      metric.Int64Counter
	EventStoreLatency   metric.Float64Histogram
	ConcurrencyConflict metric.Int64Counter

	// Lesson lookup metrics
	LookupDuration metric.Float64Histogram

	// Projection metrics
	ProjectionEvents metric.Int64Counter
	ProjectionErrors metric.Int64Counter
}

// NewMetrics creates all metric instruments
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.CommandDuration, err = meter.Float64Histogram(
		"learner.command.duration",
		metric.WithDescription("Command execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.duration: %w", err)
	}

	m.CommandTotal, err = meter.Int64Counter(
		"learner.command.total",
		metric.WithDescription("Total commands executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.total: %w", err)
	}

	m.CommandErrors, err = meter.Int64Counter(
		"learner.command.errors",
		metric.WithDescription("Total commands that committed nothing because of an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.errors: %w", err)
	}

	m.EventsAppended, err = meter.Int64Counter(
		"learner.events.appended",
		metric.WithDescription("Total events appended to the event store"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.appended: %w", err)
	}

	m.EventStoreLatency, err = meter.Float64Histogram(
		"learner.eventstore.latency",
		metric.WithDescription("Event store operation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating eventstore.latency: %w", err)
	}

	m.ConcurrencyConflict, err = meter.Int64Counter(
		"learner.eventstore.conflicts",
		metric.WithDescription("Appends rejected by the expected-version check"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating eventstore.conflicts: %w", err)
	}

	m.LookupDuration, err = meter.Float64Histogram(
		"learner.lesson_lookup.duration",
		metric.WithDescription("Lesson lookup duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating lesson_lookup.duration: %w", err)
	}

	m.ProjectionEvents, err = meter.Int64Counter(
		"learner.projection.events",
		metric.WithDescription("Events handled by projections"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating projection.events: %w", err)
	}

	m.ProjectionErrors, err = meter.Int64Counter(
		"learner.projection.errors",
		metric.WithDescription("Projection catch-up failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating projection.errors: %w", err)
	}

	return m, nil
}

// RecordCommand records command execution metrics. code is the wire error code, empty on success.
func (m *Metrics) RecordCommand(ctx context.Context, commandType string, duration time.Duration, code string) {
	attrs := metric.WithAttributes(attribute.String("command_type", commandType))

	m.CommandDuration.Record(ctx, duration.Seconds(), attrs)
	m.CommandTotal.Add(ctx, 1, attrs)

	if code != "" {
		m.CommandErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("command_type", commandType),
			attribute.String("error_code", code),
		))
	}
}

// RecordEventStoreOperation records event store operation metrics
func (m *Metrics) RecordEventStoreOperation(ctx context.Context, operation string, duration time.Duration, eventCount int) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	m.EventStoreLatency.Record(ctx, duration.Seconds(), attrs)
	if operation == "append" && eventCount > 0 {
		m.EventsAppended.Add(ctx, int64(eventCount), attrs)
	}
}

// RecordConflict counts a rejected append
func (m *Metrics) RecordConflict(ctx context.Context) {
	m.ConcurrencyConflict.Add(ctx, 1)
}

// RecordLookup records a lesson lookup. result is "found", "not_found" or "failed".
func (m *Metrics) RecordLookup(ctx context.Context, duration time.Duration, result string) {
	m.LookupDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("result", result)))
}

// RecordProjectionEvent counts an event handled by a projection
func (m *Metrics) RecordProjectionEvent(ctx context.Context, projectionName, eventType string) {
	m.ProjectionEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("projection", projectionName),
		attribute.String("event_type", eventType),
	))
}

// RecordProjectionError counts a failed catch-up
func (m *Metrics) RecordProjectionError(ctx context.Context, projectionName string) {
	m.ProjectionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("projection", projectionName)))
}
