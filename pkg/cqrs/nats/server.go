// Package nats serves a command bus over NATS micro request/reply and
// provides the matching client.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nats-io/nats.go/micro"
	"go.opentelemetry.io/otel/propagation"

	"github.com/plaenen/learnerstore/pkg/cqrs"
	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/eventsourcing"
	"github.com/plaenen/learnerstore/pkg/idgen"
	natsbus "github.com/plaenen/learnerstore/pkg/messaging/nats"
	"github.com/plaenen/learnerstore/pkg/runner"
)

const (
	// DefaultSubjectPrefix is prepended to the command type to form an endpoint subject.
	DefaultSubjectPrefix = "learner.commands"

	// DefaultServiceName is the micro service name.
	DefaultServiceName = "learner-commands"
)

// Decoder turns a command type and JSON payload into a command.
type Decoder func(commandType string, data []byte) (eventsourcing.Command, error)

// Server exposes every command type registered on a bus as a NATS micro endpoint
// at <prefix>.<CommandType>.
type Server struct {
	conn       natsbus.ConnFunc
	bus        *eventsourcing.CommandBus
	decode     Decoder
	prefix     string
	name       string
	version    string
	queueGroup string
	timeout    time.Duration
	logger     *slog.Logger
	propagator propagation.TextMapPropagator

	mu  sync.Mutex
	svc micro.Service
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithSubjectPrefix sets the endpoint subject prefix.
func WithSubjectPrefix(prefix string) ServerOption {
	return func(s *Server) {
		s.prefix = prefix
	}
}

// WithServiceName sets the micro service name and queue group.
func WithServiceName(name string) ServerOption {
	return func(s *Server) {
		s.name = name
		s.queueGroup = name
	}
}

// WithServiceVersion sets the semantic version reported by the micro service.
func WithServiceVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// WithHandlerTimeout bounds each command. Default is 30 seconds.
func WithHandlerTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a command server. The connection is resolved at Start.
func NewServer(conn natsbus.ConnFunc, bus *eventsourcing.CommandBus, decode Decoder, opts ...ServerOption) *Server {
	s := &Server{
		conn:       conn,
		bus:        bus,
		decode:     decode,
		prefix:     DefaultSubjectPrefix,
		name:       DefaultServiceName,
		version:    "1.0.0",
		queueGroup: DefaultServiceName,
		timeout:    30 * time.Second,
		logger:     slog.Default(),
		propagator: propagation.TraceContext{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements runner.Service.
func (s *Server) Name() string { return "command-server" }

// Subject returns the endpoint subject for a command type.
func (s *Server) Subject(commandType string) string {
	return s.prefix + "." + commandType
}

// Start registers one endpoint per command type known to the bus.
func (s *Server) Start(ctx context.Context) error {
	nc := s.conn()
	if nc == nil {
		return fmt.Errorf("command server: no NATS connection")
	}

	types := s.bus.RegisteredTypes()
	if len(types) == 0 {
		return fmt.Errorf("command server: no command handlers registered")
	}

	svc, err := micro.AddService(nc, micro.Config{
		Name:        s.name,
		Version:     s.version,
		Description: fmt.Sprintf("Learner command service with %d endpoints", len(types)),
		QueueGroup:  s.queueGroup,
	})
	if err != nil {
		return fmt.Errorf("add service: %w", err)
	}

	for _, commandType := range types {
		handler := micro.HandlerFunc(func(req micro.Request) {
			s.handle(commandType, req)
		})
		if err := svc.AddEndpoint(commandType, handler, micro.WithEndpointSubject(s.Subject(commandType))); err != nil {
			_ = svc.Stop()
			return fmt.Errorf("add endpoint %s: %w", commandType, err)
		}
	}

	s.mu.Lock()
	s.svc = svc
	s.mu.Unlock()

	s.logger.Info("command server started",
		slog.String("service", s.name),
		slog.String("prefix", s.prefix),
		slog.Int("endpoints", len(types)),
	)
	return nil
}

// Stop deregisters the micro service.
func (s *Server) Stop(context.Context) error {
	s.mu.Lock()
	svc := s.svc
	s.svc = nil
	s.mu.Unlock()

	if svc == nil {
		return nil
	}
	s.logger.Info("command server stopped", slog.String("service", s.name))
	return svc.Stop()
}

func (s *Server) handle(commandType string, req micro.Request) {
	headers := http.Header(req.Headers())

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	ctx = s.propagator.Extract(ctx, propagation.HeaderCarrier(headers))

	cmd, err := s.decode(commandType, req.Data())
	if err != nil {
		s.respond(req, cqrs.ErrorResponse("", err))
		return
	}

	meta := domain.CommandMetadata{
		CommandID:     headers.Get(cqrs.HeaderCommandID),
		CorrelationID: headers.Get(cqrs.HeaderCorrelationID),
		PrincipalID:   headers.Get(cqrs.HeaderPrincipalID),
		Timestamp:     domain.Now(),
	}
	if meta.CommandID == "" {
		meta.CommandID = idgen.NewCommandID()
	}

	events, err := s.bus.Send(ctx, &domain.CommandEnvelope{Command: cmd, Metadata: meta})
	if err != nil {
		s.respond(req, cqrs.ErrorResponse(cmd.AggregateID(), err))
		return
	}
	s.respond(req, cqrs.NewResponse(cmd.AggregateID(), events))
}

func (s *Server) respond(req micro.Request, resp *cqrs.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to encode response", slog.String("error", err.Error()))
		_ = req.Error("500", "failed to encode response", nil)
		return
	}
	if err := req.Respond(data); err != nil {
		s.logger.Error("failed to send response", slog.String("error", err.Error()))
	}
}

var _ runner.Service = (*Server)(nil)
