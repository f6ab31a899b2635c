// Package natsquery serves the progress read model over NATS request/reply.
//
// learner.progress.get takes a learner id and replies with that learner's
// progress JSON, or a micro service error "404" when no events were seen.
// learner.progress.list replies with every learner.
package natsquery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/micro"

	"github.com/plaenen/learnerstore/pkg/learner/progress"
	natsbus "github.com/plaenen/learnerstore/pkg/messaging/nats"
	"github.com/plaenen/learnerstore/pkg/runner"
)

const (
	// DefaultSubjectPrefix prefixes the get and list endpoints.
	DefaultSubjectPrefix = "learner.progress"

	// ServiceName is the micro service name.
	ServiceName = "learner-progress"
)

// Service exposes a progress.Store.
type Service struct {
	conn   natsbus.ConnFunc
	store  *progress.Store
	prefix string
	logger *slog.Logger

	mu  sync.Mutex
	svc micro.Service
}

// Option configures a Service.
type Option func(*Service)

// WithSubjectPrefix overrides DefaultSubjectPrefix.
func WithSubjectPrefix(prefix string) Option {
	return func(s *Service) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates the query service. The connection is resolved at Start.
func New(conn natsbus.ConnFunc, store *progress.Store, opts ...Option) *Service {
	s := &Service{
		conn:   conn,
		store:  store,
		prefix: DefaultSubjectPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements runner.Service.
func (s *Service) Name() string { return "progress-query" }

// Start registers the micro service.
func (s *Service) Start(context.Context) error {
	nc := s.conn()
	if nc == nil {
		return fmt.Errorf("progress query: no NATS connection")
	}

	svc, err := micro.AddService(nc, micro.Config{
		Name:        ServiceName,
		Version:     "1.0.0",
		Description: "Learner progress queries",
		QueueGroup:  ServiceName,
	})
	if err != nil {
		return fmt.Errorf("add progress service: %w", err)
	}

	group := svc.AddGroup(s.prefix)
	if err := group.AddEndpoint("get", micro.HandlerFunc(s.handleGet)); err != nil {
		_ = svc.Stop()
		return fmt.Errorf("add get endpoint: %w", err)
	}
	if err := group.AddEndpoint("list", micro.HandlerFunc(s.handleList)); err != nil {
		_ = svc.Stop()
		return fmt.Errorf("add list endpoint: %w", err)
	}

	s.mu.Lock()
	s.svc = svc
	s.mu.Unlock()

	s.logger.Info("progress query service started", slog.String("prefix", s.prefix))
	return nil
}

// Stop deregisters the micro service.
func (s *Service) Stop(context.Context) error {
	s.mu.Lock()
	svc := s.svc
	s.svc = nil
	s.mu.Unlock()

	if svc == nil {
		return nil
	}
	return svc.Stop()
}

func (s *Service) handleGet(req micro.Request) {
	id, err := uuid.Parse(strings.TrimSpace(string(req.Data())))
	if err != nil {
		s.respondError(req, "400", fmt.Sprintf("invalid learner id: %v", err))
		return
	}

	l, ok := s.store.Get(id)
	if !ok {
		s.respondError(req, "404", fmt.Sprintf("learner %s not found", id))
		return
	}
	s.respondJSON(req, l)
}

func (s *Service) handleList(req micro.Request) {
	s.respondJSON(req, s.store.All())
}

func (s *Service) respondJSON(req micro.Request, v any) {
	if err := req.RespondJSON(v); err != nil {
		s.logger.Error("failed to respond", slog.String("error", err.Error()))
	}
}

func (s *Service) respondError(req micro.Request, code, description string) {
	if err := req.Error(code, description, nil); err != nil {
		s.logger.Error("failed to send error response", slog.String("error", err.Error()))
	}
}

var _ runner.Service = (*Service)(nil)
