package store

import (
	"context"
	"time"
)

// ProjectionCheckpoint tracks the progress of a projection.
type ProjectionCheckpoint struct {
	ProjectionName string
	Position       int64
	LastEventID    string
	UpdatedAt      time.Time
}

// CheckpointStore persists projection checkpoints.
type CheckpointStore interface {
	// Save saves a checkpoint.
	Save(ctx context.Context, checkpoint *ProjectionCheckpoint) error

	// Load loads a checkpoint for a projection.
	// Returns domain.ErrCheckpointNotFound if none was saved.
	Load(ctx context.Context, projectionName string) (*ProjectionCheckpoint, error)

	// Delete deletes a checkpoint (for rebuilding).
	Delete(ctx context.Context, projectionName string) error
}
