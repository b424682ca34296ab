package lambdatransport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huy-cyno/workflow-builder-poc/internal/app"
	"github.com/huy-cyno/workflow-builder-poc/internal/runstore"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/analysis"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/cache"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/document"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/templates"
)

type svcStub struct {
	executeFn func(req app.ExecuteRequest) (*workflow.ExecutionTrace, *app.WorkflowInfo, error)
}

func (s *svcStub) Execute(_ context.Context, req app.ExecuteRequest) (*workflow.ExecutionTrace, *app.WorkflowInfo, error) {
	return s.executeFn(req)
}

func (s *svcStub) Validate(context.Context, app.Source) (*analysis.Report, *app.WorkflowInfo, error) {
	return &analysis.Report{Valid: true}, &app.WorkflowInfo{Hash: "h"}, nil
}

func (s *svcStub) ExportDOT(context.Context, app.Source, string) (string, error) {
	return "digraph workflow {\n}\n", nil
}

func (s *svcStub) ConvertDocument(context.Context, app.Source, document.Format) ([]byte, error) {
	return nil, nil
}

func (s *svcStub) Templates() []templates.Template { return templates.Builtin().List() }

func (s *svcStub) Template(id string) (templates.Template, bool) { return templates.Builtin().Get(id) }

func (s *svcStub) ExecuteTemplate(context.Context, string, workflow.Context, app.RunOptions) (*workflow.ExecutionTrace, *app.WorkflowInfo, error) {
	return &workflow.ExecutionTrace{Status: workflow.RunCompleted}, &app.WorkflowInfo{}, nil
}

func (s *svcStub) Run(_ context.Context, id string) (runstore.Record, error) {
	return runstore.Record{}, runstore.ErrNotFound
}

func (s *svcStub) Runs(context.Context, int) ([]runstore.Record, error) {
	return []runstore.Record{}, nil
}

func request(method, path, body string) events.APIGatewayV2HTTPRequest {
	req := events.APIGatewayV2HTTPRequest{RawPath: path, Body: body}
	req.RequestContext.HTTP.Method = method
	return req
}

func decodeBody(t *testing.T, resp events.APIGatewayV2HTTPResponse) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(resp.Body), &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestHandler_Execute_InvalidJSON(t *testing.T) {
	h := NewHandler(&svcStub{}, nil)

	resp, err := h.Route(context.Background(), request("POST", "/execute", "{"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected status 400, got %d", resp.StatusCode)
	}
}

func TestHandler_Execute_DebugResponseIncludesSteps(t *testing.T) {
	h := NewHandler(&svcStub{executeFn: func(req app.ExecuteRequest) (*workflow.ExecutionTrace, *app.WorkflowInfo, error) {
		return &workflow.ExecutionTrace{
			Status: workflow.RunCompleted,
			Steps:  []workflow.ExecutionStep{{NodeID: "start"}},
		}, &app.WorkflowInfo{Hash: "hash-1"}, nil
	}}, nil)

	body := `{"workflow":{"nodes":[]},"context":{"age":20},"debug":true}`
	resp, err := h.Route(context.Background(), request("POST", "/execute", body))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	out := decodeBody(t, resp)
	steps, ok := out["result"].(map[string]any)["steps"].([]any)
	if !ok || len(steps) != 1 {
		t.Fatalf("expected one step in debug response, got %#v", out["result"])
	}
	if out["workflow"].(map[string]any)["hash"] != "hash-1" {
		t.Fatalf("unexpected workflow info: %#v", out["workflow"])
	}
}

func TestHandler_Base64Body(t *testing.T) {
	h := NewHandler(&svcStub{executeFn: func(req app.ExecuteRequest) (*workflow.ExecutionTrace, *app.WorkflowInfo, error) {
		assert.Equal(t, "digraph { a }", string(req.Workflow.Data))
		return &workflow.ExecutionTrace{Status: workflow.RunCompleted}, &app.WorkflowInfo{}, nil
	}}, nil)

	req := request("POST", "/execute", base64.StdEncoding.EncodeToString([]byte(`{"workflow":"digraph { a }","format":"dot"}`)))
	req.IsBase64Encoded = true
	resp, err := h.Route(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestHandler_RouteKeyFallback(t *testing.T) {
	h := NewHandler(&svcStub{}, nil)
	resp, err := h.Route(context.Background(), events.APIGatewayV2HTTPRequest{RouteKey: "GET /templates"})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.NotEmpty(t, decodeBody(t, resp)["templates"])
}

func TestHandler_Routes(t *testing.T) {
	h := NewHandler(&svcStub{}, nil)
	ctx := context.Background()

	cases := []struct {
		method, path, body string
		status             int
	}{
		{"POST", "/validate", `{"workflow":{"nodes":[]}}`, 200},
		{"POST", "/export/dot", `{"workflow":{"nodes":[]}}`, 200},
		{"GET", "/templates/simple-linear", "", 200},
		{"GET", "/templates/nope", "", 404},
		{"POST", "/templates/simple-linear/execute", "", 200},
		{"GET", "/runs", "", 200},
		{"GET", "/runs/abc", "", 404},
		{"GET", "/healthz", "", 200},
		{"DELETE", "/execute", "", 404},
	}
	for _, tc := range cases {
		resp, err := h.Route(ctx, request(tc.method, tc.path, tc.body))
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, "%s %s: %s", tc.method, tc.path, resp.Body)
	}
}

func TestHandler_WithRealService(t *testing.T) {
	svc := app.NewService(workflow.NewEngine(nil), cache.NewInMemory(8), app.WithRunStore(runstore.NewMemory(8)))
	h := NewHandler(svc, nil)
	ctx := context.Background()

	resp, err := h.Route(ctx, request("POST", "/templates/country-kyc/execute", `{"context":{"age":16,"country":"Singapore"}}`))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode, resp.Body)

	result := decodeBody(t, resp)["result"].(map[string]any)
	runID := result["run_id"].(string)
	path := result["summary"].(map[string]any)["visited_path"].([]any)
	assert.Equal(t, "reject-minor", path[len(path)-1])

	resp, err = h.Route(ctx, request("GET", "/runs/"+runID, ""))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
