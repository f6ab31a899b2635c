// Package eventbus runs the NATS connection and JetStream event bus as a
// runner.Service.
//
// The service itself satisfies messaging.EventBus so it can be handed to
// the engine and projection manager before the connection exists:
//
//	natsSvc := embeddednats.New()
//	busSvc := eventbus.New(eventbus.WithURLFunc(natsSvc.URL))
//	engine := learner.NewEngine(es, lookup, eventsourcing.WithEventBus(busSvc))
//
//	runner.New([]runner.Service{natsSvc, busSvc, ...}).Run(ctx)
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/messaging"
	natsbus "github.com/plaenen/learnerstore/pkg/messaging/nats"
	"github.com/plaenen/learnerstore/pkg/observability"
	"github.com/plaenen/learnerstore/pkg/runner"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrNotStarted is returned when the bus is used before Start succeeds.
var ErrNotStarted = errors.New("event bus not started")

// Service owns a NATS connection and the event bus built on it.
type Service struct {
	config      natsbus.Config
	url         func() string
	connectOpts []nats.Option
	logger      *slog.Logger
	tracer      trace.Tracer

	mu  sync.RWMutex
	nc  *nats.Conn
	bus *natsbus.EventBus
}

// Option configures the service.
type Option func(*Service)

// WithConfig sets the bus configuration. Its URL is used unless a URL option is given.
func WithConfig(cfg natsbus.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

// WithURL sets a fixed server URL.
func WithURL(url string) Option {
	return func(s *Service) {
		s.url = func() string { return url }
	}
}

// WithURLFunc resolves the server URL at Start, for servers started by an
// earlier service.
func WithURLFunc(fn func() string) Option {
	return func(s *Service) {
		s.url = fn
	}
}

// WithConnectOptions adds client connection options such as credentials.
func WithConnectOptions(opts ...nats.Option) Option {
	return func(s *Service) {
		s.connectOpts = append(s.connectOpts, opts...)
	}
}

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the OpenTelemetry tracer for the service.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// New creates the service.
func New(opts ...Option) *Service {
	s := &Service{
		config: natsbus.DefaultConfig(),
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("eventbus"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements runner.Service.
func (s *Service) Name() string {
	return "eventbus"
}

// Start connects to NATS and ensures the event stream exists.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "eventbus.Start")
	defer span.End()

	url := s.config.URL
	if s.url != nil {
		url = s.url()
	}
	if url == "" {
		err := fmt.Errorf("no NATS url configured")
		observability.SetSpanError(ctx, err)
		return err
	}

	opts := append([]nats.Option{nats.Name("learnerd")}, s.config.ConnectOptions...)
	opts = append(opts, s.connectOpts...)

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		observability.SetSpanError(ctx, err)
		s.logger.Error("failed to connect to NATS", slog.String("url", url), slog.String("error", err.Error()))
		return fmt.Errorf("connect to NATS: %w", err)
	}

	cfg := s.config
	if cfg.Logger == nil {
		cfg.Logger = s.logger
	}
	bus, err := natsbus.NewEventBusWithConn(nc, cfg)
	if err != nil {
		nc.Close()
		observability.SetSpanError(ctx, err)
		return fmt.Errorf("create event bus: %w", err)
	}

	s.mu.Lock()
	s.nc, s.bus = nc, bus
	s.mu.Unlock()

	span.SetAttributes(
		attribute.String("nats.url", url),
		attribute.String("stream.name", cfg.StreamName),
	)
	s.logger.Info("eventbus service started",
		slog.String("url", url),
		slog.String("stream", cfg.StreamName),
	)
	return nil
}

// Stop closes the bus first, then drains and closes the connection.
func (s *Service) Stop(ctx context.Context) error {
	_, span := s.tracer.Start(ctx, "eventbus.Stop")
	defer span.End()

	s.mu.Lock()
	nc, bus := s.nc, s.bus
	s.nc, s.bus = nil, nil
	s.mu.Unlock()

	if bus == nil {
		return nil
	}

	var errs []error
	if err := bus.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		errs = append(errs, err)
		nc.Close()
	}

	s.logger.Info("eventbus service stopped")
	return errors.Join(errs...)
}

// HealthCheck reports whether the connection is up.
func (s *Service) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	nc := s.nc
	s.mu.RUnlock()

	if nc == nil {
		return ErrNotStarted
	}
	if !nc.IsConnected() {
		return fmt.Errorf("nats connection %s", nc.Status())
	}
	return nil
}

// Conn returns the NATS connection, or nil before Start succeeds.
func (s *Service) Conn() *nats.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nc
}

// EventBus returns the underlying bus, or nil before Start succeeds.
func (s *Service) EventBus() *natsbus.EventBus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bus
}

// Publish implements messaging.EventBus.
func (s *Service) Publish(ctx context.Context, events []*domain.Event) error {
	bus := s.EventBus()
	if bus == nil {
		return ErrNotStarted
	}
	return bus.Publish(ctx, events)
}

// Subscribe implements messaging.EventBus.
func (s *Service) Subscribe(filter messaging.EventFilter, handler messaging.EventHandler) (messaging.Subscription, error) {
	bus := s.EventBus()
	if bus == nil {
		return nil, ErrNotStarted
	}
	return bus.Subscribe(filter, handler)
}

// Close implements messaging.EventBus. The connection stays open until Stop.
func (s *Service) Close() error {
	bus := s.EventBus()
	if bus == nil {
		return nil
	}
	return bus.Close()
}

var (
	_ runner.Service       = (*Service)(nil)
	_ runner.HealthChecker = (*Service)(nil)
	_ messaging.EventBus   = (*Service)(nil)
)
