// Package embeddednats runs the embedded NATS server as a runner.Service.
package embeddednats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	natsbus "github.com/plaenen/learnerstore/pkg/messaging/nats"
	"github.com/plaenen/learnerstore/pkg/observability"
	"github.com/plaenen/learnerstore/pkg/runner"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrNotStarted is returned by HealthCheck before Start succeeds.
var ErrNotStarted = errors.New("nats server not started")

// Service wraps an embedded NATS server as a runner.Service.
type Service struct {
	mu            sync.RWMutex
	server        *natsbus.EmbeddedServer
	logger        *slog.Logger
	tracer        trace.Tracer
	serverOptions []natsbus.ServerOption
	clientOptions []nats.Option
}

// Option configures the NATS service.
type Option func(*Service)

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

// WithServerOptions passes options through to natsbus.StartEmbeddedServer.
//
//	svc := embeddednats.New(
//	    embeddednats.WithServerOptions(
//	        natsbus.WithPort(4222),
//	        natsbus.WithStoreDir("/var/lib/learnerd/nats"),
//	    ),
//	)
func WithServerOptions(opts ...natsbus.ServerOption) Option {
	return func(s *Service) {
		s.serverOptions = append(s.serverOptions, opts...)
	}
}

// WithClientOptions sets the options used by HealthCheck connections,
// typically the credentials the server was configured to require.
func WithClientOptions(opts ...nats.Option) Option {
	return func(s *Service) {
		s.clientOptions = append(s.clientOptions, opts...)
	}
}

// New creates a new embedded NATS service.
func New(opts ...Option) *Service {
	s := &Service{
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("embeddednats"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements runner.Service.
func (s *Service) Name() string {
	return "embedded-nats"
}

// Start starts the embedded NATS server.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "embeddednats.Start")
	defer span.End()

	s.logger.Info("starting embedded NATS server")

	srv, err := natsbus.StartEmbeddedServer(s.serverOptions...)
	if err != nil {
		observability.SetSpanError(ctx, err)
		s.logger.Error("failed to start embedded NATS", slog.String("error", err.Error()))
		return fmt.Errorf("start embedded NATS: %w", err)
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	span.SetAttributes(attribute.String("nats.url", srv.URL()))
	s.logger.Info("embedded NATS server started", slog.String("url", srv.URL()))
	return nil
}

// Stop shuts the embedded NATS server down.
func (s *Service) Stop(ctx context.Context) error {
	_, span := s.tracer.Start(ctx, "embeddednats.Stop")
	defer span.End()

	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}

	s.logger.Info("stopping embedded NATS server")
	if err := srv.Shutdown(); err != nil {
		return err
	}
	s.logger.Info("embedded NATS server stopped")
	return nil
}

// HealthCheck verifies the server accepts client connections.
func (s *Service) HealthCheck(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "embeddednats.HealthCheck")
	defer span.End()

	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()

	if srv == nil {
		observability.SetSpanError(ctx, ErrNotStarted)
		return ErrNotStarted
	}

	nc, err := srv.Connect(s.clientOptions...)
	if err != nil {
		observability.SetSpanError(ctx, err)
		return fmt.Errorf("nats server not responsive: %w", err)
	}
	nc.Close()

	span.SetAttributes(attribute.Bool("healthy", true))
	return nil
}

// URL returns the client URL, or "" before Start succeeds.
func (s *Service) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return ""
	}
	return s.server.URL()
}

// Server returns the underlying embedded server, or nil before Start succeeds.
func (s *Service) Server() *natsbus.EmbeddedServer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.server
}

var (
	_ runner.Service       = (*Service)(nil)
	_ runner.HealthChecker = (*Service)(nil)
)
