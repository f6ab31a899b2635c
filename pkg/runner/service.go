package runner

import "context"

// Service represents a service that can be started and stopped.
type Service interface {
	// Name returns a unique identifier for this service.
	Name() string

	// Start starts the service and returns once it is ready to serve.
	Start(ctx context.Context) error

	// Stop gracefully shuts the service down within the context deadline.
	Stop(ctx context.Context) error
}

// HealthChecker is implemented by services that can report their health.
type HealthChecker interface {
	Service

	// HealthCheck returns an error if the service is unhealthy.
	HealthCheck(ctx context.Context) error
}

// Func adapts a pair of functions to Service.
type Func struct {
	ServiceName string
	OnStart     func(ctx context.Context) error
	OnStop      func(ctx context.Context) error
}

// Name implements Service.
func (f Func) Name() string { return f.ServiceName }

// Start implements Service.
func (f Func) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

// Stop implements Service.
func (f Func) Stop(ctx context.Context) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}
