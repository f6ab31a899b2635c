// Package runner starts and stops a set of services as one process.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Runner manages the lifecycle of multiple services.
type Runner struct {
	services        []Service
	logger          *slog.Logger
	shutdownTimeout time.Duration
	startupTimeout  time.Duration
	signals         bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithShutdownTimeout sets the timeout for graceful shutdown.
// Default is 30 seconds.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		r.shutdownTimeout = timeout
	}
}

// WithStartupTimeout sets the timeout for each service start.
// Default is 1 minute.
func WithStartupTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		r.startupTimeout = timeout
	}
}

// WithSignalHandling controls whether Run stops on SIGINT/SIGTERM. Default is true.
func WithSignalHandling(enabled bool) Option {
	return func(r *Runner) {
		r.signals = enabled
	}
}

// New creates a new Runner with the given services and options.
func New(services []Service, opts ...Option) *Runner {
	r := &Runner{
		services:        services,
		logger:          slog.Default(),
		shutdownTimeout: 30 * time.Second,
		startupTimeout:  1 * time.Minute,
		signals:         true,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run starts all services and blocks until the context is cancelled or a
// shutdown signal arrives, then stops them.
//
// Services are started sequentially in the order they were registered and
// stopped in reverse order. If a service fails to start, the services already
// started are stopped and the start error is returned.
func (r *Runner) Run(ctx context.Context) error {
	if r.signals {
		var stop context.CancelFunc
		ctx, stop = SignalContext(ctx)
		defer stop()
	}

	r.logger.Info("starting services", slog.Int("count", len(r.services)))
	started := make([]Service, 0, len(r.services))

	for _, service := range r.services {
		r.logger.Info("starting service", slog.String("service", service.Name()))

		startCtx, startCancel := context.WithTimeout(ctx, r.startupTimeout)
		err := service.Start(startCtx)
		startCancel()

		if err != nil {
			r.logger.Error("failed to start service",
				slog.String("service", service.Name()),
				slog.String("error", err.Error()),
			)
			startErr := fmt.Errorf("start service %s: %w", service.Name(), err)
			return errors.Join(startErr, r.stopServices(started))
		}

		started = append(started, service)
		r.logger.Info("service started", slog.String("service", service.Name()))
	}

	r.logger.Info("all services started")

	<-ctx.Done()

	r.logger.Info("shutting down services", slog.Duration("timeout", r.shutdownTimeout))
	return r.stopServices(started)
}

// stopServices stops services in reverse order within the shutdown timeout.
// Every service is asked to stop even if an earlier one fails.
func (r *Runner) stopServices(services []Service) error {
	if len(services) == 0 {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		r.logger.Info("stopping service", slog.String("service", svc.Name()))

		if err := svc.Stop(shutdownCtx); err != nil {
			r.logger.Error("failed to stop service",
				slog.String("service", svc.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("stop %s: %w", svc.Name(), err))
			continue
		}
		r.logger.Info("service stopped", slog.String("service", svc.Name()))
	}

	if err := shutdownCtx.Err(); err != nil {
		errs = append(errs, fmt.Errorf("shutdown timeout exceeded: %w", err))
	}
	return errors.Join(errs...)
}

// HealthCheck checks the health of all services that implement HealthChecker.
func (r *Runner) HealthCheck(ctx context.Context) error {
	for _, service := range r.services {
		if hc, ok := service.(HealthChecker); ok {
			if err := hc.HealthCheck(ctx); err != nil {
				return fmt.Errorf("service %s unhealthy: %w", service.Name(), err)
			}
		}
	}
	return nil
}
