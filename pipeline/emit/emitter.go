// Package emit delivers workflow progress events to logs, traces, tests and
// the analysis event stream.
package emit

// Emitter receives events from the pipeline engine.
//
// Implementations must be safe for concurrent use and must not block the
// workflow for long: a slow backend should drop or buffer events instead.
// Emit never returns an error; failures are logged by the implementation.
type Emitter interface {
	Emit(event Event)
}

// Event is a single progress notification.
type Event struct {
	// RunID identifies the workflow run.
	RunID string

	// Step is the 1-based step number; zero for run-level events.
	Step int

	// NodeID is the node that produced the event, empty for run-level events.
	NodeID string

	// Msg is the event kind, one of the Msg* constants or a node-defined name.
	Msg string

	// Meta carries event specific fields such as "duration_ms", "error",
	// "attempt" or "delay_ms".
	Meta map[string]interface{}
}

// Engine event kinds.
const (
	MsgNodeStart   = "node_start"
	MsgNodeEnd     = "node_end"
	MsgNodeError   = "node_error"
	MsgNodeRetry   = "node_retry"
	MsgRunComplete = "run_complete"
	MsgRunFailed   = "run_failed"
)

// Multi fans events out to several emitters in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}

// NullEmitter discards every event.
type NullEmitter struct{}

// NewNullEmitter returns a NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit implements Emitter.
func (n *NullEmitter) Emit(Event) {}
