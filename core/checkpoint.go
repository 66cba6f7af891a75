package core

import (
	"context"
	"time"
)

// Checkpoint is an immutable, sequence numbered snapshot of a session.
type Checkpoint struct {
	ThreadID  string    `json:"thread_id"`
	Sequence  int64     `json:"sequence"`
	State     TaskState `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckpointStore persists snapshots per thread. Stores are append-only: a
// saved checkpoint is never changed. The first checkpoint of a thread has
// sequence 0 and each Save returns the previous maximum plus one.
//
// Implementations must support concurrent writers on distinct threads. The
// executor guarantees at most one writer per thread.
type CheckpointStore interface {
	// Save appends a snapshot of state and returns its sequence number.
	Save(ctx context.Context, threadID string, state TaskState) (int64, error)
	// LoadLatest returns the checkpoint with the highest sequence number or
	// ErrCheckpointNotFound.
	LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error)
	// List returns all checkpoints of a thread in sequence order.
	List(ctx context.Context, threadID string) ([]Checkpoint, error)
}
