// Package sqlite provides a core.CheckpointStore backed by a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/hupe1980/supervisor/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id  TEXT    NOT NULL,
	seq        INTEGER NOT NULL,
	state      TEXT    NOT NULL,
	created_at TEXT    NOT NULL,
	PRIMARY KEY (thread_id, seq)
);`

// Store persists checkpoints in one table keyed by (thread_id, seq). Rows
// are only ever inserted.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// Open creates or opens the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Save implements core.CheckpointStore.
func (s *Store) Save(ctx context.Context, threadID string, state core.TaskState) (int64, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("failed to encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM checkpoints WHERE thread_id = ?`, threadID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read sequence: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, seq, state, created_at) VALUES (?, ?, ?, ?)`,
		threadID, seq, string(payload), s.now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return 0, fmt.Errorf("failed to insert checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit checkpoint: %w", err)
	}

	return seq, nil
}

// LoadLatest implements core.CheckpointStore.
func (s *Store) LoadLatest(ctx context.Context, threadID string) (*core.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT seq, state, created_at FROM checkpoints WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`,
		threadID,
	)

	cp, err := scanCheckpoint(threadID, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, err
	}

	return &cp, nil
}

// List implements core.CheckpointStore.
func (s *Store) List(ctx context.Context, threadID string) ([]core.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, state, created_at FROM checkpoints WHERE thread_id = ? ORDER BY seq ASC`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []core.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(threadID, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}

	return out, rows.Err()
}

// Threads returns the distinct thread ids in the store.
func (s *Store) Threads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT thread_id FROM checkpoints ORDER BY thread_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(threadID string, sc scanner) (core.Checkpoint, error) {
	var (
		seq       int64
		payload   string
		createdAt string
	)
	if err := sc.Scan(&seq, &payload, &createdAt); err != nil {
		return core.Checkpoint{}, err
	}

	var state core.TaskState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return core.Checkpoint{}, fmt.Errorf("failed to decode checkpoint %s/%d: %w", threadID, seq, err)
	}
	if state.Results == nil {
		state.Results = map[string]string{}
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return core.Checkpoint{}, fmt.Errorf("failed to parse checkpoint time: %w", err)
	}

	return core.Checkpoint{ThreadID: threadID, Sequence: seq, State: state, Timestamp: ts}, nil
}
