package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"go.opentelemetry.io/otel/propagation"

	"github.com/plaenen/learnerstore/pkg/cqrs"
	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/eventsourcing"
	natsbus "github.com/plaenen/learnerstore/pkg/messaging/nats"
)

// ErrNotConnected is returned when no connection is available.
var ErrNotConnected = errors.New("not connected to NATS")

// Client submits commands to a Server.
type Client struct {
	conn       natsbus.ConnFunc
	prefix     string
	timeout    time.Duration
	propagator propagation.TextMapPropagator
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientSubjectPrefix sets the subject prefix; it must match the server's.
func WithClientSubjectPrefix(prefix string) ClientOption {
	return func(c *Client) {
		c.prefix = prefix
	}
}

// WithRequestTimeout bounds requests whose context has no deadline. Default is 30 seconds.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a command client.
func NewClient(conn natsbus.ConnFunc, opts ...ClientOption) *Client {
	c := &Client{
		conn:       conn,
		prefix:     DefaultSubjectPrefix,
		timeout:    30 * time.Second,
		propagator: propagation.TraceContext{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send submits cmd and waits for the reply. A rejected command returns the
// response together with its *cqrs.Error.
func (c *Client) Send(ctx context.Context, cmd eventsourcing.Command, meta domain.CommandMetadata) (*cqrs.Response, error) {
	nc := c.conn()
	if nc == nil {
		return nil, ErrNotConnected
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg := nats.NewMsg(c.prefix + "." + cmd.CommandType())
	msg.Data = data
	headers := http.Header(msg.Header)
	if meta.CommandID != "" {
		headers.Set(cqrs.HeaderCommandID, meta.CommandID)
	}
	if meta.CorrelationID != "" {
		headers.Set(cqrs.HeaderCorrelationID, meta.CorrelationID)
	}
	if meta.PrincipalID != "" {
		headers.Set(cqrs.HeaderPrincipalID, meta.PrincipalID)
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(headers))

	reply, err := nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", cmd.CommandType(), err)
	}

	if code := reply.Header.Get(micro.ErrorCodeHeader); code != "" {
		return nil, &cqrs.Error{Code: eventsourcing.CodeUnknown, Message: reply.Header.Get(micro.ErrorHeader)}
	}

	var resp cqrs.Response
	if err := json.Unmarshal(reply.Data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, resp.Err()
}
