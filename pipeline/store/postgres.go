package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxDB is satisfied by *pgxpool.Pool and *pgx.Conn.
type PgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps step history in <schema>.analysis_steps, which is
// created by provision.Migrate.
type PostgresStore[S any] struct {
	db    PgxDB
	table string
}

// NewPostgresStore returns a store writing to the analysis_steps table of schema.
func NewPostgresStore[S any](db PgxDB, schema string) *PostgresStore[S] {
	return &PostgresStore[S]{db: db, table: pgx.Identifier{schema, "analysis_steps"}.Sanitize()}
}

// SaveStep implements Store.
func (p *PostgresStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO `+p.table+` (run_id, step, node_id, state)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, step) DO UPDATE SET
			node_id = EXCLUDED.node_id,
			state = EXCLUDED.state`,
		runID, step, nodeID, data)
	if err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest implements Store.
func (p *PostgresStore[S]) LoadLatest(ctx context.Context, runID string) (state S, step int, err error) {
	var (
		zero S
		data []byte
	)
	err = p.db.QueryRow(ctx, `
		SELECT step, state FROM `+p.table+`
		WHERE run_id = $1
		ORDER BY step DESC
		LIMIT 1`, runID).Scan(&step, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, 0, ErrNotFound
	}
	if err != nil {
		return zero, 0, fmt.Errorf("failed to load latest step: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, step, nil
}
