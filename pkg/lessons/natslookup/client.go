package natslookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/micro"

	"github.com/plaenen/learnerstore/pkg/learner"
	natsbus "github.com/plaenen/learnerstore/pkg/messaging/nats"
)

// ErrNotConnected is wrapped in a LookupFailedError when no connection is available.
var ErrNotConnected = errors.New("not connected to NATS")

// Client implements learner.LessonLookup over NATS request/reply.
type Client struct {
	conn    natsbus.ConnFunc
	subject string
	timeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSubject overrides the request subject.
func WithSubject(subject string) ClientOption {
	return func(c *Client) {
		c.subject = subject
	}
}

// WithTimeout bounds requests whose context has no deadline. Default is 2 seconds.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a lookup client.
func NewClient(conn natsbus.ConnFunc, opts ...ClientOption) *Client {
	c := &Client{
		conn:    conn,
		subject: DefaultSubject,
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FindLesson implements learner.LessonLookup. A "404" reply becomes a
// LessonNotFoundError; every other failure becomes a LookupFailedError.
func (c *Client) FindLesson(ctx context.Context, id uuid.UUID) (learner.Lesson, error) {
	nc := c.conn()
	if nc == nil {
		return learner.Lesson{}, &learner.LookupFailedError{LessonID: id, Err: ErrNotConnected}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg, err := nc.RequestWithContext(ctx, c.subject, []byte(id.String()))
	if err != nil {
		return learner.Lesson{}, &learner.LookupFailedError{LessonID: id, Err: err}
	}

	if code := msg.Header.Get(micro.ErrorCodeHeader); code != "" {
		if code == "404" {
			return learner.Lesson{}, &learner.LessonNotFoundError{LessonID: id}
		}
		return learner.Lesson{}, &learner.LookupFailedError{
			LessonID: id,
			Err:      fmt.Errorf("lessons service error %s: %s", code, msg.Header.Get(micro.ErrorHeader)),
		}
	}

	var lesson learner.Lesson
	if err := json.Unmarshal(msg.Data, &lesson); err != nil {
		return learner.Lesson{}, &learner.LookupFailedError{LessonID: id, Err: fmt.Errorf("decode lesson: %w", err)}
	}
	if lesson.ID != id {
		return learner.Lesson{}, &learner.LookupFailedError{
			LessonID: id,
			Err:      fmt.Errorf("reply carries lesson %s", lesson.ID),
		}
	}
	return lesson, nil
}

var _ learner.LessonLookup = (*Client)(nil)
