package execdto

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huy-cyno/workflow-builder-poc/internal/app"
	"github.com/huy-cyno/workflow-builder-poc/internal/runstore"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/document"
)

func TestExecuteRequest_ToApp(t *testing.T) {
	req := ExecuteRequest{
		Workflow: []byte(`{"nodes":[],"edges":[]}`),
		Context:  map[string]any{"age": 20.0},
		MaxSteps: 4,
		RunID:    "r",
	}
	out, err := req.ToApp()
	require.NoError(t, err)
	assert.Equal(t, document.FormatJSON, out.Workflow.Format)
	assert.Equal(t, `{"nodes":[],"edges":[]}`, string(out.Workflow.Data))
	assert.Equal(t, 4, out.MaxSteps)
	assert.Equal(t, "r", out.RunID)
	assert.Equal(t, workflow.Context{"age": 20.0}, out.Input)
}

func TestExecuteRequest_StringWorkflow(t *testing.T) {
	req := ExecuteRequest{Workflow: []byte(`"digraph g { a -> b }"`), Format: "dot"}
	out, err := req.ToApp()
	require.NoError(t, err)
	assert.Equal(t, "digraph g { a -> b }", string(out.Workflow.Data))
	assert.Equal(t, document.Format("dot"), out.Workflow.Format)

	// A string without a format is detected later by the service.
	out, err = ExecuteRequest{Workflow: []byte(`"nodes: []"`)}.ToApp()
	require.NoError(t, err)
	assert.Empty(t, out.Workflow.Format)
}

func TestExecuteRequest_DrawflowObject(t *testing.T) {
	out, err := ExecuteRequest{Workflow: []byte(`{"drawflow":{"Home":{"data":{}}}}`)}.ToApp()
	require.NoError(t, err)
	assert.Equal(t, document.FormatDrawflow, out.Workflow.Format)
}

func TestExecuteRequest_MissingWorkflow(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		_, err := ExecuteRequest{Workflow: []byte(raw)}.ToApp()
		assert.ErrorIs(t, err, app.ErrInvalidRequest, "workflow %q", raw)
	}
}

func TestResult_StripsStepsUnlessDebug(t *testing.T) {
	tr := &workflow.ExecutionTrace{
		Status:  workflow.RunCompleted,
		Steps:   []workflow.ExecutionStep{{NodeID: "a"}},
		Summary: workflow.Summary{TotalSteps: 1},
	}

	out := Result(tr, false)
	assert.Empty(t, out.Steps)
	assert.Equal(t, 1, out.Summary.TotalSteps)
	assert.Len(t, tr.Steps, 1, "original trace untouched")

	assert.Same(t, tr, Result(tr, true))
	assert.Nil(t, Result(nil, false))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(fmt.Errorf("%w: x", app.ErrInvalidRequest)))
	assert.Equal(t, http.StatusNotFound, StatusFor(runstore.ErrNotFound))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(&workflow.ExecutionError{Code: workflow.CodeCycleDetected}))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}

func TestErrorBody(t *testing.T) {
	err := &workflow.ExecutionError{Code: workflow.CodeStepLimitExceeded, Message: "too many steps"}
	body := ErrorBody("execute failed", err, &workflow.ExecutionTrace{RunID: "r"}, &app.WorkflowInfo{Hash: "h"})
	assert.Equal(t, "execute failed", body["error"])
	assert.Equal(t, workflow.CodeStepLimitExceeded, body["code"])
	assert.NotNil(t, body["trace"])
	assert.NotNil(t, body["workflow"])

	body = ErrorBody("invalid json", errors.New("eof"), nil, nil)
	assert.NotContains(t, body, "trace")
	assert.NotContains(t, body, "code")
}
