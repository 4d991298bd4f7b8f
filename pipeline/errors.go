package pipeline

import (
	"errors"
)

// EngineError reports misconfiguration or a run-level failure.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// NodeError wraps the final error of a node after retries are exhausted.
type NodeError struct {
	Message string
	Code    string
	NodeID  string

	// Attempts is how many times the node ran.
	Attempts int

	Cause error
}

func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the cause.
func (e *NodeError) Unwrap() error {
	return e.Cause
}

// Engine error codes.
const (
	CodeMissingReducer   = "MISSING_REDUCER"
	CodeMissingStore     = "MISSING_STORE"
	CodeNoStartNode      = "NO_START_NODE"
	CodeNodeNotFound     = "NODE_NOT_FOUND"
	CodeDuplicateNode    = "DUPLICATE_NODE"
	CodeMaxStepsExceeded = "MAX_STEPS_EXCEEDED"
	CodeNoRoute          = "NO_ROUTE"
	CodeStoreError       = "STORE_ERROR"
	CodeNodeTimeout      = "NODE_TIMEOUT"
	CodeNodeFailed       = "NODE_FAILED"
	CodeInvalidPolicy    = "INVALID_POLICY"
)

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// IsTimeout reports whether err is a node timeout raised by the engine.
func IsTimeout(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Code == CodeNodeTimeout
}

// HasCode reports whether err is an EngineError or NodeError with code.
func HasCode(err error, code string) bool {
	var ee *EngineError
	if errors.As(err, &ee) && ee.Code == code {
		return true
	}
	var ne *NodeError
	return errors.As(err, &ne) && ne.Code == code
}
