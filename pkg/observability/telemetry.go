// Package observability provides OpenTelemetry-based tracing and metrics
// with backend-agnostic configuration.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName names the tracer and meter used across the module.
const InstrumentationName = "github.com/plaenen/learnerstore"

// Config configures the observability stack
type Config struct {
	// Service metadata
	ServiceName    string
	ServiceVersion string
	Environment    string // dev, staging, prod

	// Tracing
	TraceExporter   sdktrace.SpanExporter // Pluggable exporter (OTLP, stdout, tracetest, ...)
	TraceSampleRate float64               // 0.0 to 1.0 (1.0 = trace everything)

	// SyncExport exports spans as they end instead of batching. Meant for tests.
	SyncExport bool

	// Metrics
	MetricReader sdkmetric.Reader // Pluggable reader (Prometheus, OTLP, manual, ...)

	// SetGlobal installs the providers as the otel globals.
	SetGlobal bool

	// Logging
	Logger *slog.Logger
}

// Telemetry manages the observability stack
type Telemetry struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Metrics        *Metrics
	Logger         *slog.Logger

	shutdown func(context.Context) error
}

// Init initializes OpenTelemetry with graceful degradation.
// Without an exporter or reader the matching signal is disabled and calls are no-ops.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tel := &Telemetry{Logger: cfg.Logger}
	var shutdownFuncs []func(context.Context) error

	if cfg.TraceExporter != nil {
		tp := newTracerProvider(res, cfg)
		tel.TracerProvider = tp
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
		cfg.Logger.Info("tracing initialized", slog.String("service", cfg.ServiceName))
	} else {
		tel.TracerProvider = noop.NewTracerProvider()
		cfg.Logger.Info("tracing disabled (no exporter configured)")
	}

	if cfg.MetricReader != nil {
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(cfg.MetricReader),
		)
		tel.MeterProvider = mp
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
		cfg.Logger.Info("metrics initialized", slog.String("service", cfg.ServiceName))
	} else {
		// A provider without readers records nothing.
		tel.MeterProvider = sdkmetric.NewMeterProvider()
		cfg.Logger.Info("metrics disabled (no reader configured)")
	}

	tel.Metrics, err = NewMetrics(tel.MeterProvider.Meter(InstrumentationName))
	if err != nil {
		return nil, err
	}

	if cfg.SetGlobal {
		otel.SetTracerProvider(tel.TracerProvider)
		otel.SetMeterProvider(tel.MeterProvider)
		otel.SetTextMapPropagator(
			propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			),
		)
	}

	tel.shutdown = func(ctx context.Context) error {
		var errs []error
		for _, shutdown := range shutdownFuncs {
			if err := shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	return tel, nil
}

// NewNoop returns telemetry that records nothing.
func NewNoop() *Telemetry {
	mp := sdkmetric.NewMeterProvider()
	metrics, err := NewMetrics(mp.Meter(InstrumentationName))
	if err != nil {
		// Instrument creation only fails on invalid names.
		panic(err)
	}
	return &Telemetry{
		TracerProvider: noop.NewTracerProvider(),
		MeterProvider:  mp,
		Metrics:        metrics,
		Logger:         slog.Default(),
	}
}

func newTracerProvider(res *resource.Resource, cfg Config) *sdktrace.TracerProvider {
	var sampler sdktrace.Sampler
	switch {
	case cfg.TraceSampleRate <= 0:
		sampler = sdktrace.NeverSample()
	case cfg.TraceSampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.TraceSampleRate)
	}

	export := sdktrace.WithBatcher(cfg.TraceExporter)
	if cfg.SyncExport {
		export = sdktrace.WithSyncer(cfg.TraceExporter)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		export,
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
}

// Shutdown flushes and stops the telemetry stack
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.shutdown != nil {
		t.Logger.Info("shutting down observability")
		return t.shutdown(ctx)
	}
	return nil
}

// Tracer returns the module tracer
func (t *Telemetry) Tracer() trace.Tracer {
	return t.TracerProvider.Tracer(InstrumentationName)
}
