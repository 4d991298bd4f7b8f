// Package pipeline runs stateful, step-by-step workflows such as a resume
// analysis: scrape a job ad, ask a model to review the resume against it,
// report completion.
//
// A workflow is a set of named nodes connected by explicit routes or edges.
// The Engine executes one node at a time, merges each node's Delta into the
// state with a Reducer, persists every step to a store.Store and reports
// progress to an emit.Emitter.
package pipeline

import "context"

// Node is a processing unit in a workflow.
//
// Type parameter S is the state type shared across the workflow.
type Node[S any] interface {
	// Run executes the node against the current state. The context carries
	// the node timeout and the attempt number (see Attempt).
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult is the output of one node execution.
type NodeResult[S any] struct {
	// Delta is merged into the current state by the engine's Reducer.
	Delta S

	// Route selects the next node. Leave it zero to fall back to edges.
	Route Next

	// Err fails the node. It is retried when the node's RetryPolicy
	// classifies it as retryable.
	Err error
}

// Next is a routing decision.
type Next struct {
	// To names the next node.
	To string

	// Terminal ends the run successfully.
	Terminal bool
}

// Stop ends the run.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto routes to nodeID.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// NodeFunc adapts a plain function to Node.
//
//	fetch := pipeline.NodeFunc[State](func(ctx context.Context, s State) pipeline.NodeResult[State] {
//	    return pipeline.NodeResult[State]{Delta: State{Job: job}, Route: pipeline.Goto("analyze")}
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements Node.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

type attemptKey struct{}

// Attempt returns the zero-based attempt number of the node being executed,
// or 0 outside the engine.
func Attempt(ctx context.Context) int {
	if n, ok := ctx.Value(attemptKey{}).(int); ok {
		return n
	}
	return 0
}

func withAttempt(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, attemptKey{}, n)
}

// Edge connects two nodes. A nil When makes the edge unconditional.
type Edge[S any] struct {
	From string
	To   string
	When Predicate[S]
}

// Predicate decides whether an edge is taken for the given state.
// Predicates should be pure.
type Predicate[S any] func(state S) bool

// Reducer merges a node's delta into the previous state.
type Reducer[S any] func(prev, delta S) S
