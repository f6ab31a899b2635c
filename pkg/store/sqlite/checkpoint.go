package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/store"
)

var _ store.CheckpointStore = (*CheckpointStore)(nil)

// CheckpointStore is a SQLite-based implementation of store.CheckpointStore.
// It can share the event store's database (pass EventStore.DB()) or use its own.
type CheckpointStore struct {
	db *sql.DB
}

// NewCheckpointStore creates a checkpoint store on db, migrating its schema.
func NewCheckpointStore(ctx context.Context, db *sql.DB) (*CheckpointStore, error) {
	if err := runMigrations(ctx, db); err != nil {
		return nil, err
	}
	return &CheckpointStore{db: db}, nil
}

// Save upserts a checkpoint.
func (s *CheckpointStore) Save(ctx context.Context, checkpoint *store.ProjectionCheckpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projection_checkpoints (projection_name, position, last_event_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (projection_name) DO UPDATE SET
			position = excluded.position,
			last_event_id = excluded.last_event_id,
			updated_at = excluded.updated_at`,
		checkpoint.ProjectionName,
		checkpoint.Position,
		checkpoint.LastEventID,
		checkpoint.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load returns the checkpoint or domain.ErrCheckpointNotFound.
func (s *CheckpointStore) Load(ctx context.Context, projectionName string) (*store.ProjectionCheckpoint, error) {
	var (
		cp    store.ProjectionCheckpoint
		nanos int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT projection_name, position, last_event_id, updated_at
		FROM projection_checkpoints WHERE projection_name = ?`,
		projectionName,
	).Scan(&cp.ProjectionName, &cp.Position, &cp.LastEventID, &nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	cp.UpdatedAt = time.Unix(0, nanos).UTC()
	return &cp, nil
}

// Delete removes a checkpoint.
func (s *CheckpointStore) Delete(ctx context.Context, projectionName string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projection_checkpoints WHERE projection_name = ?`, projectionName); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
