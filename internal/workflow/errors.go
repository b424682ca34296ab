package workflow

import "fmt"

type ErrorCode string

const (
	CodeNoStartNode       ErrorCode = "no_start_node"
	CodeNodeNotFound      ErrorCode = "node_not_found"
	CodeCycleDetected     ErrorCode = "cycle_detected"
	CodeStepLimitExceeded ErrorCode = "step_limit_exceeded"
	CodeInvalidGraph      ErrorCode = "invalid_graph"
	CodeStepCallback      ErrorCode = "step_callback_failed"
)

// Sentinels for errors.Is; any *ExecutionError with the same code matches.
var (
	ErrNoStartNode       = &ExecutionError{Code: CodeNoStartNode}
	ErrNodeNotFound      = &ExecutionError{Code: CodeNodeNotFound}
	ErrCycleDetected     = &ExecutionError{Code: CodeCycleDetected}
	ErrStepLimitExceeded = &ExecutionError{Code: CodeStepLimitExceeded}
	ErrInvalidGraph      = &ExecutionError{Code: CodeInvalidGraph}
	ErrStepCallback      = &ExecutionError{Code: CodeStepCallback}
)

// ExecutionError is the structured failure of a run or of graph construction.
type ExecutionError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	NodeID  string    `json:"node_id,omitempty"`
	Step    int       `json:"step,omitempty"`
	Cause   error     `json:"-"`
}

func (e *ExecutionError) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.NodeID != "" {
		msg += fmt.Sprintf(" [node: %s]", e.NodeID)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(code ErrorCode, nodeID string, format string, args ...any) *ExecutionError {
	return &ExecutionError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		NodeID:  nodeID,
	}
}
