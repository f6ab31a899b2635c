package nats

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// EmbeddedServer wraps an in-process NATS server with JetStream enabled.
type EmbeddedServer struct {
	server       *server.Server
	url          string
	shutdownOnce sync.Once
}

// ServerOption configures the embedded server.
type ServerOption func(*server.Options)

// WithHost sets the listen host. Default is 127.0.0.1.
func WithHost(host string) ServerOption {
	return func(o *server.Options) {
		o.Host = host
	}
}

// WithPort sets the client port. Default is -1 (random free port).
func WithPort(port int) ServerOption {
	return func(o *server.Options) {
		o.Port = port
	}
}

// WithStoreDir sets the JetStream storage directory. Empty uses a temp directory.
func WithStoreDir(dir string) ServerOption {
	return func(o *server.Options) {
		o.StoreDir = dir
	}
}

// WithServerName sets the server name reported to clients.
func WithServerName(name string) ServerOption {
	return func(o *server.Options) {
		o.ServerName = name
	}
}

// StartEmbeddedServer starts an embedded NATS server with JetStream enabled
// and waits until it accepts connections.
func StartEmbeddedServer(opts ...ServerOption) (*EmbeddedServer, error) {
	options := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		NoSigs:    true,
	}
	for _, opt := range opts {
		opt(options)
	}

	s, err := server.NewServer(options)
	if err != nil {
		return nil, fmt.Errorf("create embedded server: %w", err)
	}

	go s.Start()

	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		return nil, fmt.Errorf("embedded server not ready")
	}

	return &EmbeddedServer{
		server: s,
		url:    s.ClientURL(),
	}, nil
}

// URL returns the client URL of the server.
func (e *EmbeddedServer) URL() string {
	return e.url
}

// Connect opens a client connection to the server.
func (e *EmbeddedServer) Connect(opts ...nats.Option) (*nats.Conn, error) {
	return nats.Connect(e.url, opts...)
}

// Running reports whether the server still accepts connections.
func (e *EmbeddedServer) Running() bool {
	return e.server != nil && e.server.Running()
}

// Shutdown stops the server. It waits at most five seconds and is safe to
// call more than once.
func (e *EmbeddedServer) Shutdown() error {
	var err error
	e.shutdownOnce.Do(func() {
		if e.server == nil {
			return
		}
		e.server.Shutdown()

		done := make(chan struct{})
		go func() {
			e.server.WaitForShutdown()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			err = fmt.Errorf("embedded server shutdown timed out")
		}
	})
	return err
}

// ConnFunc supplies a client connection that may not exist until a runner
// service has started. It returns nil while disconnected.
type ConnFunc func() *nats.Conn

// StaticConn returns a ConnFunc for an existing connection.
func StaticConn(nc *nats.Conn) ConnFunc {
	return func() *nats.Conn { return nc }
}
