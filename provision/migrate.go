package provision

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Migrations returns the idempotent DDL for the application tables in schema.
func Migrations(schema string) ([]Statement, error) {
	if schema == "" {
		return nil, fmt.Errorf("%w: schema name is required", ErrInvalidPlan)
	}
	q := func(name string) string { return pgx.Identifier{schema, name}.Sanitize() }
	idx := func(name string) string { return pgx.Identifier{name}.Sanitize() }

	resumes := q("resumes")
	jobs := q("scraped_jobs")
	steps := q("analysis_steps")

	return []Statement{
		{
			Name: "create table resumes",
			SQL: `CREATE TABLE IF NOT EXISTS ` + resumes + ` (
				id UUID PRIMARY KEY,
				filename VARCHAR(255) NOT NULL,
				raw_text TEXT,
				parsed_data JSON,
				s3_url VARCHAR(255),
				created_at TIMESTAMP DEFAULT NOW() NOT NULL,
				updated_at TIMESTAMP DEFAULT NOW() NOT NULL,
				deleted_at TIMESTAMP
			)`,
		},
		{
			Name: "create index resumes id",
			SQL:  `CREATE INDEX IF NOT EXISTS ` + idx("ix_"+schema+"_resumes_id") + ` ON ` + resumes + ` (id)`,
		},
		{
			Name: "create table scraped_jobs",
			SQL: `CREATE TABLE IF NOT EXISTS ` + jobs + ` (
				id UUID PRIMARY KEY,
				url TEXT NOT NULL,
				url_hash CHAR(64) UNIQUE NOT NULL,
				scraped_data JSONB NOT NULL,
				scraped_at TIMESTAMP NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT true
			)`,
		},
		{
			Name: "create index scraped_jobs id",
			SQL:  `CREATE INDEX IF NOT EXISTS ` + idx("ix_"+schema+"_scraped_jobs_id") + ` ON ` + jobs + ` (id)`,
		},
		{
			Name: "create table analysis_steps",
			SQL: `CREATE TABLE IF NOT EXISTS ` + steps + ` (
				id BIGSERIAL PRIMARY KEY,
				run_id TEXT NOT NULL,
				step INTEGER NOT NULL,
				node_id TEXT NOT NULL,
				state JSONB NOT NULL,
				created_at TIMESTAMP DEFAULT NOW() NOT NULL,
				UNIQUE (run_id, step)
			)`,
		},
	}, nil
}

// Migrate creates the application tables in schema.
func Migrate(ctx context.Context, db TxBeginner, schema string) error {
	stmts, err := Migrations(schema)
	if err != nil {
		return err
	}
	return Apply(ctx, db, stmts)
}
