package memory

import (
	"context"
	"sync"

	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/store"
)

var _ store.CheckpointStore = (*CheckpointStore)(nil)

// CheckpointStore keeps projection checkpoints in memory.
type CheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]store.ProjectionCheckpoint
}

// NewCheckpointStore creates an empty checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{checkpoints: make(map[string]store.ProjectionCheckpoint)}
}

// Save stores a copy of checkpoint.
func (s *CheckpointStore) Save(_ context.Context, checkpoint *store.ProjectionCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[checkpoint.ProjectionName] = *checkpoint
	return nil
}

// Load returns the checkpoint for projectionName or domain.ErrCheckpointNotFound.
func (s *CheckpointStore) Load(_ context.Context, projectionName string) (*store.ProjectionCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[projectionName]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	return &cp, nil
}

// Delete removes the checkpoint for projectionName.
func (s *CheckpointStore) Delete(_ context.Context, projectionName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, projectionName)
	return nil
}
