// Package sqlite implements the store contracts on SQLite using the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/store"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var _ store.EventStore = (*EventStore)(nil)

// EventStore is a SQLite-based implementation of store.EventStore.
// Appends from this process are serialised by a mutex; the UNIQUE
// (aggregate_id, version) constraint catches writers in other processes.
type EventStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// eventStoreConfig holds internal configuration for the SQLite event store.
type eventStoreConfig struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
	busyTimeout  time.Duration
	autoMigrate  bool
}

func defaultEventStoreConfig() eventStoreConfig {
	return eventStoreConfig{
		dsn:          "learners.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		busyTimeout:  5 * time.Second,
		autoMigrate:  true,
	}
}

// Option configures an EventStore.
type Option func(*eventStoreConfig)

// WithDSN sets the data source name (file path or ":memory:").
func WithDSN(dsn string) Option {
	return func(c *eventStoreConfig) {
		c.dsn = dsn
	}
}

// WithMemoryDatabase uses a private in-memory database.
func WithMemoryDatabase() Option {
	return func(c *eventStoreConfig) {
		c.dsn = ":memory:"
	}
}

// WithMaxOpenConns sets the maximum number of open connections to the database.
func WithMaxOpenConns(n int) Option {
	return func(c *eventStoreConfig) {
		c.maxOpenConns = n
	}
}

// WithMaxIdleConns sets the maximum number of idle connections in the pool.
func WithMaxIdleConns(n int) Option {
	return func(c *eventStoreConfig) {
		c.maxIdleConns = n
	}
}

// WithWALMode enables write-ahead logging. Ignored for in-memory databases.
func WithWALMode(enabled bool) Option {
	return func(c *eventStoreConfig) {
		c.walMode = enabled
	}
}

// WithBusyTimeout sets how long a connection waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *eventStoreConfig) {
		c.busyTimeout = d
	}
}

// WithAutoMigrate runs pending migrations when the store opens. Default is true.
func WithAutoMigrate(enabled bool) Option {
	return func(c *eventStoreConfig) {
		c.autoMigrate = enabled
	}
}

// NewEventStore opens a SQLite event store.
//
//	// Defaults: learners.db, WAL mode, auto-migrate
//	es, err := sqlite.NewEventStore(ctx)
//
//	// In-memory database for tests
//	es, err := sqlite.NewEventStore(ctx, sqlite.WithMemoryDatabase())
func NewEventStore(ctx context.Context, opts ...Option) (*EventStore, error) {
	cfg := defaultEventStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	memory := cfg.dsn == ":memory:"
	db, err := sql.Open("sqlite", buildDSN(cfg, memory))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if memory {
		// Every connection to :memory: gets its own database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.maxOpenConns)
		db.SetMaxIdleConns(cfg.maxIdleConns)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.autoMigrate {
		if err := runMigrations(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &EventStore{db: db}, nil
}

// buildDSN adds connection pragmas understood by modernc.org/sqlite.
func buildDSN(cfg eventStoreConfig, memory bool) string {
	pragmas := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", cfg.busyTimeout.Milliseconds()),
		"_pragma=foreign_keys(1)",
	}
	if cfg.walMode && !memory {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}

	sep := "?"
	if strings.Contains(cfg.dsn, "?") {
		sep = "&"
	}
	return cfg.dsn + sep + strings.Join(pragmas, "&")
}

// DB returns the underlying database, for stores sharing it.
func (s *EventStore) DB() *sql.DB {
	return s.db
}

// AppendEvents appends events to an aggregate's stream in one transaction.
func (s *EventStore) AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, events []*domain.Event) (int64, error) {
	if expectedVersion < 0 {
		return 0, domain.ErrInvalidVersion
	}
	for i, event := range events {
		if event.AggregateID != aggregateID {
			return 0, fmt.Errorf("event %s targets aggregate %s, not %s", event.ID, event.AggregateID, aggregateID)
		}
		if want := expectedVersion + int64(i) + 1; event.Version != want {
			return 0, fmt.Errorf("%w: event %s has version %d, want %d", domain.ErrInvalidVersion, event.ID, event.Version, want)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, store.ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := aggregateVersion(ctx, tx, aggregateID)
	if err != nil {
		return 0, err
	}
	if current != expectedVersion {
		return 0, fmt.Errorf("%w: expected %d, got %d", domain.ErrConcurrencyConflict, expectedVersion, current)
	}
	if len(events) == 0 {
		return current, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (event_id, aggregate_id, aggregate_type, event_type, schema_version, version, timestamp, data, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	positions := make([]int64, len(events))
	for i, event := range events {
		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return 0, fmt.Errorf("encode metadata of event %s: %w", event.ID, err)
		}
		data := event.Data
		if data == nil {
			data = []byte{}
		}

		res, err := stmt.ExecContext(ctx,
			event.ID,
			event.AggregateID,
			event.AggregateType,
			event.EventType,
			event.SchemaVersion,
			event.Version,
			event.Timestamp.UnixNano(),
			data,
			string(metadata),
		)
		if err != nil {
			return 0, classifyInsertError(event, err)
		}
		if positions[i], err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("read position of event %s: %w", event.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	for i, event := range events {
		event.Position = positions[i]
	}
	return expectedVersion + int64(len(events)), nil
}

// classifyInsertError maps unique constraint violations onto domain errors.
func classifyInsertError(event *domain.Event, err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		if strings.Contains(sqliteErr.Error(), "events.event_id") {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateEvent, event.ID)
		}
		return fmt.Errorf("%w: version %d of %s already stored", domain.ErrConcurrencyConflict, event.Version, event.AggregateID)
	}
	return fmt.Errorf("insert event %s: %w", event.ID, err)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func aggregateVersion(ctx context.Context, q queryer, aggregateID string) (int64, error) {
	var version int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?`, aggregateID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read aggregate version: %w", err)
	}
	return version, nil
}

const selectEvents = `
	SELECT position, event_id, aggregate_id, aggregate_type, event_type, schema_version, version, timestamp, data, metadata
	FROM events`

// LoadEvents loads events for an aggregate with a version greater than afterVersion.
func (s *EventStore) LoadEvents(ctx context.Context, aggregateID string, afterVersion int64) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		selectEvents+` WHERE aggregate_id = ? AND version > ? ORDER BY version`,
		aggregateID, afterVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return scanEvents(rows)
}

// LoadAllEvents loads up to limit events with a position greater than afterPosition.
// A limit of zero or less loads everything.
func (s *EventStore) LoadAllEvents(ctx context.Context, afterPosition int64, limit int) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		selectEvents+` WHERE position > ? ORDER BY position LIMIT ?`,
		afterPosition, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return scanEvents(rows)
}

// GetAggregateVersion returns the current version of an aggregate.
func (s *EventStore) GetAggregateVersion(ctx context.Context, aggregateID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, store.ErrClosed
	}
	return aggregateVersion(ctx, s.db, aggregateID)
}

// Close closes the database.
func (s *EventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func scanEvents(rows *sql.Rows) ([]*domain.Event, error) {
	defer rows.Close()

	events := []*domain.Event{}
	for rows.Next() {
		var (
			event    domain.Event
			nanos    int64
			metadata string
		)
		err := rows.Scan(
			&event.Position,
			&event.ID,
			&event.AggregateID,
			&event.AggregateType,
			&event.EventType,
			&event.SchemaVersion,
			&event.Version,
			&nanos,
			&event.Data,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.Timestamp = time.Unix(0, nanos).UTC()
		if err := json.Unmarshal([]byte(metadata), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of event %s: %w", event.ID, err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
