// Package execdto holds the request and response bodies shared by the HTTP
// and Lambda transports.
package execdto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/huy-cyno/workflow-builder-poc/internal/app"
	"github.com/huy-cyno/workflow-builder-poc/internal/runstore"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/document"
)

// ExecuteRequest carries the workflow either as a JSON object (json and
// drawflow documents) or as a string (any format, DOT and YAML included).
type ExecuteRequest struct {
	Workflow json.RawMessage `json:"workflow"`
	Format   string          `json:"format,omitempty"`
	Name     string          `json:"name,omitempty"`
	Context  map[string]any  `json:"context"`
	MaxSteps int             `json:"max_steps,omitempty"`
	RunID    string          `json:"run_id,omitempty"`
	Debug    bool            `json:"debug,omitempty"`
}

func (r ExecuteRequest) ToApp() (app.ExecuteRequest, error) {
	src, err := source(r.Workflow, r.Format, r.Name)
	if err != nil {
		return app.ExecuteRequest{}, err
	}
	return app.ExecuteRequest{
		Workflow:   src,
		Input:      workflow.Context(r.Context),
		RunOptions: app.RunOptions{MaxSteps: r.MaxSteps, RunID: r.RunID},
	}, nil
}

type DocumentRequest struct {
	Workflow json.RawMessage `json:"workflow"`
	Format   string          `json:"format,omitempty"`
	Name     string          `json:"name,omitempty"`
	// To is the target format of a conversion.
	To string `json:"to,omitempty"`
}

func (r DocumentRequest) Source() (app.Source, error) {
	return source(r.Workflow, r.Format, r.Name)
}

type TemplateRunRequest struct {
	Context  map[string]any `json:"context"`
	MaxSteps int            `json:"max_steps,omitempty"`
	RunID    string         `json:"run_id,omitempty"`
	Debug    bool           `json:"debug,omitempty"`
}

func source(raw json.RawMessage, format, name string) (app.Source, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return app.Source{}, fmt.Errorf("%w: workflow is required", app.ErrInvalidRequest)
	}
	src := app.Source{Format: document.Format(format), Name: name}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return app.Source{}, fmt.Errorf("%w: %v", app.ErrInvalidRequest, err)
		}
		src.Data = []byte(text)
		return src, nil
	}
	src.Data = []byte(raw)
	if src.Format == "" && src.Name == "" {
		// Objects are JSON unless they carry a drawflow export.
		src.Format = document.DetectFormat("workflow.json", src.Data)
	}
	return src, nil
}

type ExecuteResponse struct {
	Result   *workflow.ExecutionTrace `json:"result"`
	Workflow *app.WorkflowInfo        `json:"workflow,omitempty"`
}

type ValidateResponse struct {
	Report   any               `json:"report"`
	Workflow *app.WorkflowInfo `json:"workflow,omitempty"`
}

type RunsResponse struct {
	Runs []runstore.Record `json:"runs"`
}

// Result returns tr as sent to clients. Without debug the per-step list is
// dropped; status, summary and error are always kept. tr is not modified.
func Result(tr *workflow.ExecutionTrace, debug bool) *workflow.ExecutionTrace {
	if tr == nil || debug {
		return tr
	}
	out := *tr
	out.Steps = []workflow.ExecutionStep{}
	return &out
}

// StatusFor maps a service error to an HTTP status.
func StatusFor(err error) int {
	var xe *workflow.ExecutionError
	switch {
	case errors.Is(err, app.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, runstore.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &xe):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func ErrorBody(message string, err error, trace *workflow.ExecutionTrace, info *app.WorkflowInfo) map[string]any {
	body := map[string]any{
		"error":   message,
		"details": err.Error(),
	}
	var xe *workflow.ExecutionError
	if errors.As(err, &xe) {
		body["code"] = xe.Code
	}
	if trace != nil {
		body["trace"] = trace
	}
	if info != nil {
		body["workflow"] = info
	}
	return body
}
