package app

import (
	"context"

	"github.com/huy-cyno/workflow-builder-poc/internal/runstore"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/analysis"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/document"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/templates"
)

// WorkflowService is what the transports need from Service.
type WorkflowService interface {
	Execute(ctx context.Context, req ExecuteRequest) (*workflow.ExecutionTrace, *WorkflowInfo, error)
	Validate(ctx context.Context, src Source) (*analysis.Report, *WorkflowInfo, error)
	ExportDOT(ctx context.Context, src Source, name string) (string, error)
	ConvertDocument(ctx context.Context, src Source, to document.Format) ([]byte, error)
	Templates() []templates.Template
	Template(id string) (templates.Template, bool)
	ExecuteTemplate(ctx context.Context, id string, input workflow.Context, opts RunOptions) (*workflow.ExecutionTrace, *WorkflowInfo, error)
	Run(ctx context.Context, runID string) (runstore.Record, error)
	Runs(ctx context.Context, limit int) ([]runstore.Record, error)
}

// Source is a workflow document as received. An empty Format is detected
// from Name and the content.
type Source struct {
	Data   []byte
	Format document.Format
	Name   string
}

type RunOptions struct {
	MaxSteps int
	RunID    string
	OnStep   workflow.StepFunc
}

type ExecuteRequest struct {
	Workflow Source
	Input    workflow.Context
	RunOptions
}

// WorkflowInfo describes the document a run or validation was based on.
type WorkflowInfo struct {
	Hash      string          `json:"hash"`
	Format    document.Format `json:"format,omitempty"`
	Template  string          `json:"template,omitempty"`
	Nodes     int             `json:"nodes"`
	Edges     int             `json:"edges"`
	StartNode string          `json:"start_node,omitempty"`
}
