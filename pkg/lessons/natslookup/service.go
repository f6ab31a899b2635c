// Package natslookup serves the lesson catalog over NATS request/reply and
// provides the matching learner.LessonLookup client.
//
// A request carries the lesson id as text. A hit is answered with the lesson
// JSON; a miss with a micro service error "404"; an invalid id with "400";
// any other failure with "500".
package natslookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/micro"

	"github.com/plaenen/learnerstore/pkg/learner"
	natsbus "github.com/plaenen/learnerstore/pkg/messaging/nats"
	"github.com/plaenen/learnerstore/pkg/runner"
)

const (
	// DefaultSubject is the request subject of the find endpoint.
	DefaultSubject = "lessons.find"

	// ServiceName is the micro service name.
	ServiceName = "lessons"

	serviceVersion = "1.0.0"
)

// Service answers lesson lookups from a LessonLookup, usually a catalog.
type Service struct {
	conn    natsbus.ConnFunc
	lookup  learner.LessonLookup
	subject string
	timeout time.Duration
	logger  *slog.Logger

	mu  sync.Mutex
	svc micro.Service
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceSubject overrides the endpoint subject.
func WithServiceSubject(subject string) ServiceOption {
	return func(s *Service) {
		s.subject = subject
	}
}

// WithHandlerTimeout bounds each lookup. Default is 5 seconds.
func WithHandlerTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.timeout = d
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a lookup service. The connection is resolved at Start.
func NewService(conn natsbus.ConnFunc, lookup learner.LessonLookup, opts ...ServiceOption) *Service {
	s := &Service{
		conn:    conn,
		lookup:  lookup,
		subject: DefaultSubject,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements runner.Service.
func (s *Service) Name() string { return "lesson-lookup" }

// Start registers the micro service.
func (s *Service) Start(ctx context.Context) error {
	nc := s.conn()
	if nc == nil {
		return fmt.Errorf("lesson lookup: no NATS connection")
	}

	svc, err := micro.AddService(nc, micro.Config{
		Name:        ServiceName,
		Version:     serviceVersion,
		Description: "Lesson catalog lookup",
		QueueGroup:  ServiceName,
	})
	if err != nil {
		return fmt.Errorf("add lessons service: %w", err)
	}

	if err := svc.AddEndpoint("find", micro.HandlerFunc(s.handle), micro.WithEndpointSubject(s.subject)); err != nil {
		_ = svc.Stop()
		return fmt.Errorf("add find endpoint: %w", err)
	}

	s.mu.Lock()
	s.svc = svc
	s.mu.Unlock()

	s.logger.Info("lesson lookup service started", slog.String("subject", s.subject))
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

func (s *Service) handle(req micro.Request) {
	id, err := uuid.Parse(strings.TrimSpace(string(req.Data())))
	if err != nil {
		s.respondError(req, "400", fmt.Sprintf("invalid lesson id: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	lesson, err := s.lookup.FindLesson(ctx, id)
	switch {
	case errors.Is(err, learner.ErrNotFound):
		s.respondError(req, "404", err.Error())
		return
	case err != nil:
		s.logger.Warn("lesson lookup failed",
			slog.String("lesson_id", id.String()),
			slog.String("error", err.Error()),
		)
		s.respondError(req, "500", err.Error())
		return
	}

	if err := req.RespondJSON(lesson); err != nil {
		s.logger.Error("failed to respond", slog.String("error", err.Error()))
	}
}

func (s *Service) respondError(req micro.Request, code, description string) {
	if err := req.Error(code, description, nil); err != nil {
		s.logger.Error("failed to send error response", slog.String("error", err.Error()))
	}
}

var _ runner.Service = (*Service)(nil)
