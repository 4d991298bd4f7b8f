// Package store persists pipeline state after every executed step.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a run has no persisted steps.
var ErrNotFound = errors.New("not found")

// Store persists workflow state. Implementations must be safe for
// concurrent use by several runs.
//
// Type parameter S is the state type; the SQL backed stores require it to
// be JSON serializable.
type Store[S any] interface {
	// SaveStep records the state after step (1-based) produced by nodeID.
	// Saving the same runID and step again replaces the earlier record.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest returns the state with the highest step number of runID,
	// or ErrNotFound.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)
}

// StepRecord is one persisted step.
type StepRecord[S any] struct {
	Step   int
	NodeID string
	State  S
}
