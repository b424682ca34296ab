// Package runstore keeps the history of workflow runs so finished traces can
// be looked up by run id.
package runstore

import (
	"context"
	"errors"
	"time"

	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
)

var ErrNotFound = errors.New("run not found")

// Record is one finished run. Trace is nil in List results of stores that
// only index summaries.
type Record struct {
	RunID        string                   `json:"run_id"`
	WorkflowHash string                   `json:"workflow_hash,omitempty"`
	Status       string                   `json:"status"`
	Terminated   string                   `json:"terminated"`
	StepCount    int                      `json:"step_count"`
	ErrorCode    string                   `json:"error_code,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	Trace        *workflow.ExecutionTrace `json:"trace,omitempty"`
}

// NewRecord summarises tr. The trace itself is kept as is.
func NewRecord(tr *workflow.ExecutionTrace, workflowHash string, at time.Time) Record {
	r := Record{
		RunID:        tr.RunID,
		WorkflowHash: workflowHash,
		Status:       tr.Status,
		Terminated:   tr.Terminated,
		StepCount:    tr.StepCount,
		CreatedAt:    at.UTC(),
		Trace:        tr,
	}
	if tr.Error != nil {
		r.ErrorCode = string(tr.Error.Code)
	}
	return r
}

type Store interface {
	Save(ctx context.Context, rec Record) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, runID string) (Record, error)
	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// DefaultListLimit applies when List is called with limit <= 0.
const DefaultListLimit = 50

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// Nop discards every record.
type Nop struct{}

func (Nop) Save(context.Context, Record) error { return nil }

func (Nop) Get(context.Context, string) (Record, error) { return Record{}, ErrNotFound }

func (Nop) List(context.Context, int) ([]Record, error) { return []Record{}, nil }

func (Nop) Close() error { return nil }
