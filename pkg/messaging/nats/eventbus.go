// Package nats implements messaging.EventBus on NATS JetStream.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/messaging"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("event bus closed")

// EventBus publishes committed envelopes to a JetStream stream.
// Delivery is at-least-once; the event id is used as the message id so
// JetStream drops duplicate publications inside its dedupe window.
type EventBus struct {
	nc         *nats.Conn
	js         nats.JetStreamContext
	ownsConn   bool
	streamName string
	prefix     string
	logger     *slog.Logger
	mu         sync.RWMutex
	subs       map[string]*nats.Subscription
	closed     bool
}

// Config holds configuration for the NATS event bus.
type Config struct {
	// URL is the NATS server URL. Ignored by NewEventBusWithConn.
	URL string

	// ConnectOptions are passed to nats.Connect.
	ConnectOptions []nats.Option

	// StreamName is the JetStream stream name for events.
	StreamName string

	// SubjectPrefix is the first subject token (default "events").
	SubjectPrefix string

	// Storage selects file or memory storage for the stream.
	Storage nats.StorageType

	// MaxAge is how long to retain events in the stream.
	MaxAge time.Duration

	// MaxBytes is the maximum bytes the stream can store.
	MaxBytes int64

	// Logger receives delivery failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns defaults for the learner event stream.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		StreamName:    "LEARNER_EVENTS",
		SubjectPrefix: "events",
		Storage:       nats.FileStorage,
		MaxAge:        7 * 24 * time.Hour,
		MaxBytes:      1024 * 1024 * 1024,
	}
}

// NewEventBus connects to cfg.URL and ensures the stream exists. The bus
// owns the connection and closes it on Close.
func NewEventBus(cfg Config) (*EventBus, error) {
	nc, err := nats.Connect(cfg.URL, cfg.ConnectOptions...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	bus, err := newEventBus(nc, cfg)
	if err != nil {
		nc.Close()
		return nil, err
	}
	bus.ownsConn = true
	return bus, nil
}

// NewEventBusWithConn builds a bus on an existing connection. Close leaves
// the connection open.
func NewEventBusWithConn(nc *nats.Conn, cfg Config) (*EventBus, error) {
	return newEventBus(nc, cfg)
}

func newEventBus(nc *nats.Conn, cfg Config) (*EventBus, error) {
	if cfg.StreamName == "" {
		cfg.StreamName = DefaultConfig().StreamName
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultConfig().SubjectPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	bus := &EventBus{
		nc:         nc,
		js:         js,
		streamName: cfg.StreamName,
		prefix:     cfg.SubjectPrefix,
		logger:     logger,
		subs:       make(map[string]*nats.Subscription),
	}

	if err := bus.ensureStream(cfg); err != nil {
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return bus, nil
}

// ensureStream creates the stream or updates its limits.
func (b *EventBus) ensureStream(cfg Config) error {
	streamConfig := &nats.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{b.prefix + ".>"},
		Retention: nats.InterestPolicy,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		Storage:   cfg.Storage,
		Replicas:  1,
	}

	stream, err := b.js.StreamInfo(cfg.StreamName)
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("stream info: %w", err)
		}
		if _, err := b.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		return nil
	}

	if stream.Config.MaxAge != cfg.MaxAge || stream.Config.MaxBytes != cfg.MaxBytes {
		if _, err := b.js.UpdateStream(streamConfig); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
	}
	return nil
}

// Subject returns the subject an envelope is published on.
func (b *EventBus) Subject(event *domain.Event) string {
	return fmt.Sprintf("%s.%s.%s", b.prefix, token(event.AggregateType), token(event.EventType))
}

// Publish publishes envelopes in order. It stops at the first failure.
func (b *EventBus) Publish(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("serialize event %s: %w", event.ID, err)
		}

		if _, err := b.js.Publish(b.Subject(event), data, nats.MsgId(event.ID), nats.Context(ctx)); err != nil {
			return fmt.Errorf("publish event %s: %w", event.ID, err)
		}
	}
	return nil
}

// Subscribe creates a durable consumer for the filter. Envelopes that the
// subject cannot narrow down are checked against the filter and acked
// without calling the handler. A handler error naks the message for redelivery.
func (b *EventBus) Subscribe(filter messaging.EventFilter, handler messaging.EventHandler) (messaging.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	subject := b.buildSubject(filter)
	consumerName := "consumer_" + domain.GenerateID()[:12]

	sub, err := b.js.QueueSubscribe(
		subject,
		consumerName,
		func(msg *nats.Msg) {
			var event domain.Event
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				b.logger.Error("dropping undecodable event",
					slog.String("subject", msg.Subject),
					slog.String("error", err.Error()),
				)
				_ = msg.Term()
				return
			}

			if !filter.Matches(&event) {
				_ = msg.Ack()
				return
			}

			if err := handler(&event); err != nil {
				b.logger.Warn("event handler failed",
					slog.String("event_id", event.ID),
					slog.String("event_type", event.EventType),
					slog.String("error", err.Error()),
				)
				_ = msg.Nak()
				return
			}
			_ = msg.Ack()
		},
		nats.Durable(consumerName),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.DeliverNew(),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	b.subs[consumerName] = sub
	return &subscription{bus: b, sub: sub, consumerName: consumerName}, nil
}

// buildSubject narrows the subscription subject when the filter allows it.
func (b *EventBus) buildSubject(filter messaging.EventFilter) string {
	switch {
	case len(filter.AggregateTypes) == 1 && len(filter.EventTypes) == 0:
		return fmt.Sprintf("%s.%s.>", b.prefix, token(filter.AggregateTypes[0]))
	case len(filter.AggregateTypes) == 1 && len(filter.EventTypes) == 1:
		return fmt.Sprintf("%s.%s.%s", b.prefix, token(filter.AggregateTypes[0]), token(filter.EventTypes[0]))
	default:
		return b.prefix + ".>"
	}
}

// Close unsubscribes every consumer and closes an owned connection.
func (b *EventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	for name, sub := range b.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, fmt.Errorf("unsubscribe %s: %w", name, err))
		}
		delete(b.subs, name)
	}

	if b.ownsConn {
		b.nc.Close()
	}
	return errors.Join(errs...)
}

type subscription struct {
	bus          *EventBus
	sub          *nats.Subscription
	consumerName string
}

func (s *subscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if _, ok := s.bus.subs[s.consumerName]; !ok {
		return nil
	}
	delete(s.bus.subs, s.consumerName)
	return s.sub.Unsubscribe()
}

// token makes a value safe for use as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, s)
}

var _ messaging.EventBus = (*EventBus)(nil)
