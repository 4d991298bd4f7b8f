package pipeline

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/dshills/ria/pipeline/emit"
	"github.com/dshills/ria/pipeline/store"
)

// Engine executes a workflow graph one node at a time.
//
// An Engine is configured once (Add, StartAt, Connect) and may then Run any
// number of workflows concurrently; each run keeps its own state.
//
//	eng := pipeline.New(reduce, store.NewMemStore[State](), emit.NewNullEmitter(),
//	    pipeline.WithMaxSteps(10))
//	_ = eng.AddWithPolicy("scrape", scrapeNode, pipeline.NodePolicy{Timeout: 30 * time.Second})
//	_ = eng.Add("analyze", analyzeNode)
//	_ = eng.StartAt("scrape")
//	_ = eng.Connect("scrape", "analyze", nil)
//	final, err := eng.Run(ctx, jobID, State{URL: url})
type Engine[S any] struct {
	mu sync.RWMutex

	reducer   Reducer[S]
	nodes     map[string]Node[S]
	policies  map[string]NodePolicy
	edges     []Edge[S]
	startNode string

	store   store.Store[S]
	emitter emit.Emitter
	opts    Options
}

// New returns an Engine. A nil emitter discards events.
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, opts ...Option) *Engine[S] {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &Engine[S]{
		reducer:  reducer,
		nodes:    make(map[string]Node[S]),
		policies: make(map[string]NodePolicy),
		store:    st,
		emitter:  emitter,
		opts:     o,
	}
}

// Add registers node under nodeID with the default policy.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	return e.AddWithPolicy(nodeID, node, NodePolicy{})
}

// AddWithPolicy registers node under nodeID with policy.
func (e *Engine[S]) AddWithPolicy(nodeID string, node Node[S], policy NodePolicy) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}
	if policy.RetryPolicy != nil {
		if err := policy.RetryPolicy.Validate(); err != nil {
			return &EngineError{Message: "node " + nodeID + ": " + err.Error(), Code: CodeInvalidPolicy}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: CodeDuplicateNode}
	}
	e.nodes[nodeID] = node
	e.policies[nodeID] = policy
	return nil
}

// StartAt sets the entry node. It must already be registered.
func (e *Engine[S]) StartAt(nodeID string) error {
	if nodeID == "" {
		return &EngineError{Message: "start node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{Message: "start node does not exist: " + nodeID, Code: CodeNodeNotFound}
	}
	e.startNode = nodeID
	return nil
}

// Connect adds an edge from -> to. Edges are consulted in insertion order
// when a node returns no explicit route; the first matching edge wins.
// Node existence is checked at run time.
func (e *Engine[S]) Connect(from, to string, when Predicate[S]) error {
	if from == "" || to == "" {
		return &EngineError{Message: "edge endpoints cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: when})
	return nil
}

// Run executes the workflow from the start node with initial state.
//
// Every step runs the current node (with timeout and retries per its
// policy), merges the delta, saves the step and follows the route. The run
// ends when a node returns Stop, and fails on a node error, a missing route,
// a store error, MaxSteps or context cancellation.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	var zero S

	if err := e.validate(); err != nil {
		return zero, err
	}

	e.mu.RLock()
	current := e.startNode
	e.mu.RUnlock()

	rng := rand.New(rand.NewSource(time.Now().UnixNano())) // #nosec G404 -- retry jitter
	state := initial

	for step := 1; ; step++ {
		if e.opts.MaxSteps > 0 && step > e.opts.MaxSteps {
			return zero, e.fail(runID, step, &EngineError{Message: "workflow exceeded MaxSteps limit", Code: CodeMaxStepsExceeded})
		}
		if err := ctx.Err(); err != nil {
			return zero, e.fail(runID, step, err)
		}

		e.mu.RLock()
		node, exists := e.nodes[current]
		policy := e.policies[current]
		e.mu.RUnlock()
		if !exists {
			return zero, e.fail(runID, step, &EngineError{Message: "node not found during execution: " + current, Code: CodeNodeNotFound})
		}

		result, err := e.runNode(ctx, runID, step, current, node, policy, state, rng)
		if err != nil {
			return zero, e.fail(runID, step, err)
		}

		state = e.reducer(state, result.Delta)

		if err := e.store.SaveStep(ctx, runID, step, current, state); err != nil {
			return zero, e.fail(runID, step, &EngineError{Message: "failed to save step: " + err.Error(), Code: CodeStoreError})
		}

		if result.Route.Terminal {
			e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: current, Msg: emit.MsgRunComplete})
			e.opts.Metrics.RecordRun("success")
			return state, nil
		}

		next := result.Route.To
		if next == "" {
			next = e.evaluateEdges(current, state)
		}
		if next == "" {
			return zero, e.fail(runID, step, &EngineError{Message: "no valid route from node: " + current, Code: CodeNoRoute})
		}
		current = next
	}
}

func (e *Engine[S]) validate() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.reducer == nil {
		return &EngineError{Message: "reducer is required", Code: CodeMissingReducer}
	}
	if e.store == nil {
		return &EngineError{Message: "store is required", Code: CodeMissingStore}
	}
	if e.startNode == "" {
		return &EngineError{Message: "start node not set (call StartAt before Run)", Code: CodeNoStartNode}
	}
	return nil
}

// runNode executes one step of the workflow, retrying per policy.
func (e *Engine[S]) runNode(ctx context.Context, runID string, step int, nodeID string, node Node[S], policy NodePolicy, state S, rng *rand.Rand) (NodeResult[S], error) {
	timeout := nodeTimeout(policy, e.opts.DefaultNodeTimeout)
	m := e.opts.Metrics

	for attempt := 0; ; attempt++ {
		e.emitter.Emit(emit.Event{
			RunID: runID, Step: step, NodeID: nodeID, Msg: emit.MsgNodeStart,
			Meta: map[string]interface{}{"attempt": attempt},
		})

		m.nodeStarted()
		began := time.Now()
		result := executeWithTimeout(withAttempt(ctx, attempt), node, nodeID, state, timeout)
		elapsed := time.Since(began)
		m.nodeFinished()

		if result.Err == nil {
			m.RecordStepLatency(nodeID, elapsed, "success")
			e.emitter.Emit(emit.Event{
				RunID: runID, Step: step, NodeID: nodeID, Msg: emit.MsgNodeEnd,
				Meta: map[string]interface{}{"attempt": attempt, "duration_ms": elapsed.Milliseconds()},
			})
			return result, nil
		}

		status := "error"
		if IsTimeout(result.Err) {
			status = "timeout"
		}
		m.RecordStepLatency(nodeID, elapsed, status)

		if ctx.Err() == nil && policy.RetryPolicy.shouldRetry(attempt, result.Err) {
			delay := computeBackoff(attempt, policy.RetryPolicy.BaseDelay, policy.RetryPolicy.MaxDelay, rng)
			m.IncrementRetries(nodeID, status)
			e.emitter.Emit(emit.Event{
				RunID: runID, Step: step, NodeID: nodeID, Msg: emit.MsgNodeRetry,
				Meta: map[string]interface{}{
					"attempt":  attempt + 1,
					"delay_ms": delay.Milliseconds(),
					"error":    result.Err.Error(),
				},
			})
			if err := sleep(ctx, delay); err != nil {
				return NodeResult[S]{}, err
			}
			continue
		}

		e.emitter.Emit(emit.Event{
			RunID: runID, Step: step, NodeID: nodeID, Msg: emit.MsgNodeError,
			Meta: map[string]interface{}{"attempt": attempt, "error": result.Err.Error()},
		})
		code := CodeNodeFailed
		if status == "timeout" {
			code = CodeNodeTimeout
		}
		return NodeResult[S]{}, &NodeError{
			Message:  result.Err.Error(),
			Code:     code,
			NodeID:   nodeID,
			Attempts: attempt + 1,
			Cause:    result.Err,
		}
	}
}

func (e *Engine[S]) fail(runID string, step int, err error) error {
	e.emitter.Emit(emit.Event{
		RunID: runID, Step: step, Msg: emit.MsgRunFailed,
		Meta: map[string]interface{}{"error": err.Error()},
	})
	e.opts.Metrics.RecordRun("error")
	return err
}

// evaluateEdges returns the target of the first matching edge out of from.
func (e *Engine[S]) evaluateEdges(from string, state S) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, edge := range e.edges {
		if edge.From != from {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return ""
}
