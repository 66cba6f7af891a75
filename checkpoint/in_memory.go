package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/supervisor/core"
)

// InMemoryStore is a volatile core.CheckpointStore keeping every thread's
// checkpoints in a process local map. It is safe for concurrent access.
// States are cloned on the way in and out so callers never share maps or
// slices with the store.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]core.Checkpoint
	now     func() time.Time
}

// NewInMemoryStore constructs an empty in-memory checkpoint store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		threads: make(map[string][]core.Checkpoint),
		now:     time.Now,
	}
}

// Save appends a snapshot and returns its sequence number.
func (s *InMemoryStore) Save(ctx context.Context, threadID string, state core.TaskState) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := int64(len(s.threads[threadID]))
	s.threads[threadID] = append(s.threads[threadID], core.Checkpoint{
		ThreadID:  threadID,
		Sequence:  seq,
		State:     state.Clone(),
		Timestamp: s.now().UTC(),
	})

	return seq, nil
}

// LoadLatest returns the newest checkpoint of threadID.
func (s *InMemoryStore) LoadLatest(ctx context.Context, threadID string) (*core.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cps := s.threads[threadID]
	if len(cps) == 0 {
		return nil, core.ErrCheckpointNotFound
	}

	cp := cloneCheckpoint(cps[len(cps)-1])

	return &cp, nil
}

// List returns all checkpoints of threadID in sequence order.
func (s *InMemoryStore) List(ctx context.Context, threadID string) ([]core.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cps := s.threads[threadID]
	out := make([]core.Checkpoint, len(cps))
	for i, cp := range cps {
		out[i] = cloneCheckpoint(cp)
	}

	return out, nil
}

// Threads returns the ids of all threads with at least one checkpoint.
func (s *InMemoryStore) Threads() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}

	return ids
}

func cloneCheckpoint(cp core.Checkpoint) core.Checkpoint {
	cp.State = cp.State.Clone()
	return cp
}
