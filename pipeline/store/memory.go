package store

import (
	"context"
	"sort"
	"sync"
)

// MemStore keeps step history in memory. Data is lost when the process exits.
type MemStore[S any] struct {
	mu    sync.RWMutex
	steps map[string]map[int]StepRecord[S]
}

// NewMemStore returns an empty MemStore.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{steps: make(map[string]map[int]StepRecord[S])}
}

// SaveStep implements Store.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, step int, nodeID string, state S) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.steps[runID]
	if !ok {
		run = make(map[int]StepRecord[S])
		m.steps[runID] = run
	}
	run[step] = StepRecord[S]{Step: step, NodeID: nodeID, State: state}
	return nil
}

// LoadLatest implements Store.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (state S, step int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run := m.steps[runID]
	if len(run) == 0 {
		var zero S
		return zero, 0, ErrNotFound
	}
	latest := -1
	for s := range run {
		if s > latest {
			latest = s
		}
	}
	return run[latest].State, latest, nil
}

// History returns the steps of runID ordered by step number.
func (m *MemStore[S]) History(runID string) []StepRecord[S] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]StepRecord[S], 0, len(m.steps[runID]))
	for _, r := range m.steps[runID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out
}
