// Package provision creates the ria schema, grants access to the application
// role and applies table migrations.
//
// All statements of a run execute inside one transaction and the first error
// aborts the run. Nothing is retried and nothing is left half applied: a
// failed GRANT also rolls back the CREATE SCHEMA issued before it.
package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultSchema is the schema owned by the application.
const DefaultSchema = "ria"

// Statement is a single SQL statement of a provisioning plan.
type Statement struct {
	// Name is a short label used in logs and errors.
	Name string

	// SQL is the statement text with identifiers already quoted.
	SQL string
}

// TxBeginner is satisfied by *pgx.Conn and *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// StatementError reports which statement of a plan failed.
type StatementError struct {
	// Index is the zero-based position of the statement in the plan.
	Index int

	// Statement is the failing statement.
	Statement Statement

	// Cause is the error returned by the server or driver.
	Cause error
}

// Error implements the error interface.
func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %d (%s) failed: %v", e.Index+1, e.Statement.Name, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *StatementError) Unwrap() error {
	return e.Cause
}

// ErrInvalidPlan is returned when a plan cannot be built from its inputs.
var ErrInvalidPlan = errors.New("invalid provisioning plan")

// Plan returns the statements that create schema and grant user full access
// to it, in execution order.
func Plan(schema, user string) ([]Statement, error) {
	if schema == "" {
		return nil, fmt.Errorf("%w: schema name is required", ErrInvalidPlan)
	}
	if user == "" {
		return nil, fmt.Errorf("%w: user is required (set POSTGRES_USER)", ErrInvalidPlan)
	}

	s := pgx.Identifier{schema}.Sanitize()
	u := pgx.Identifier{user}.Sanitize()

	return []Statement{
		{Name: "create schema " + schema, SQL: "CREATE SCHEMA IF NOT EXISTS " + s},
		{Name: "grant schema " + schema + " to " + user, SQL: "GRANT ALL ON SCHEMA " + s + " TO " + u},
	}, nil
}

// Apply runs stmts in order inside a single transaction. It stops at the
// first failing statement, rolls back and returns a *StatementError.
func Apply(ctx context.Context, db TxBeginner, stmts []Statement) (err error) {
	if len(stmts) == 0 {
		return nil
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx) // keep the statement error
		}
	}()

	for i, st := range stmts {
		if _, execErr := tx.Exec(ctx, st.SQL); execErr != nil {
			return &StatementError{Index: i, Statement: st, Cause: execErr}
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit provisioning: %w", err)
	}
	return nil
}

// AsPgError extracts a *pgconn.PgError from err.
func AsPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// Postgres error codes that make retrying pointless.
const (
	codeInvalidAuthorization = "28000"
	codeInvalidPassword      = "28P01"
	codeInvalidCatalogName   = "3D000"
	codeUndefinedObject      = "42704"
	codeInsufficientPriv     = "42501"
)

// IsFatal reports whether err is an authentication, authorization or
// missing-object failure.
func IsFatal(err error) bool {
	pgErr, ok := AsPgError(err)
	if !ok {
		return false
	}
	switch pgErr.Code {
	case codeInvalidAuthorization, codeInvalidPassword, codeInvalidCatalogName,
		codeUndefinedObject, codeInsufficientPriv:
		return true
	}
	return false
}
