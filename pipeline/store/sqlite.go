package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

const (
	sqliteSchema = `
		CREATE TABLE IF NOT EXISTS analysis_steps (
			run_id     TEXT NOT NULL,
			step       INTEGER NOT NULL,
			node_id    TEXT NOT NULL,
			state      TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, step)
		)`

	sqliteUpsertStep = `
		INSERT INTO analysis_steps (run_id, step, node_id, state) VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, step) DO UPDATE SET node_id = excluded.node_id, state = excluded.state`

	sqliteLatestStep = `
		SELECT step, state FROM analysis_steps WHERE run_id = ? ORDER BY step DESC LIMIT 1`
)

// errClosed is returned by a SQLiteStore after Close.
var errClosed = errors.New("sqlite store is closed")

// SQLiteStore keeps step history in a single SQLite file for local runs
// without Postgres (RUN_STORE=sqlite). The table is created on open.
type SQLiteStore[S any] struct {
	db     *sql.DB
	closed atomic.Bool
}

// NewSQLiteStore opens the database at path, creating it if needed.
// ":memory:" gives a throwaway store.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection serialises writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite %s: %w", path, err)
		}
	}
	return &SQLiteStore[S]{db: db}, nil
}

// SaveStep implements Store.
func (s *SQLiteStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	if s.closed.Load() {
		return errClosed
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state of %s step %d: %w", runID, step, err)
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsertStep, runID, step, nodeID, string(data)); err != nil {
		return fmt.Errorf("save %s step %d: %w", runID, step, err)
	}
	return nil
}

// LoadLatest implements Store.
func (s *SQLiteStore[S]) LoadLatest(ctx context.Context, runID string) (S, int, error) {
	var (
		state S
		step  int
		data  string
	)
	if s.closed.Load() {
		return state, 0, errClosed
	}

	switch err := s.db.QueryRowContext(ctx, sqliteLatestStep, runID).Scan(&step, &data); {
	case errors.Is(err, sql.ErrNoRows):
		return state, 0, ErrNotFound
	case err != nil:
		return state, 0, fmt.Errorf("load %s: %w", runID, err)
	}

	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return state, 0, fmt.Errorf("decode state of %s step %d: %w", runID, step, err)
	}
	return state, step, nil
}

// Close releases the database. It is safe to call more than once.
func (s *SQLiteStore[S]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
