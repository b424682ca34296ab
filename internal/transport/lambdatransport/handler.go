package lambdatransport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/huy-cyno/workflow-builder-poc/internal/app"
	"github.com/huy-cyno/workflow-builder-poc/internal/transport/execdto"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/document"
)

type Handler struct {
	svc    app.WorkflowService
	logger *zap.Logger
}

func NewHandler(svc app.WorkflowService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger.With(zap.String("component", "lambda"))}
}

// Route dispatches an API Gateway v2 request on method and path, mirroring
// the HTTP transport's endpoints.
func (h *Handler) Route(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	start := time.Now()
	method, path := requestTarget(req)

	resp := h.dispatch(ctx, method, path, req)
	h.logger.Info("request processed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int("body_bytes", len(req.Body)),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

func (h *Handler) dispatch(ctx context.Context, method, path string, req events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case method == http.MethodPost && path == "/execute":
		return h.Execute(ctx, req)
	case method == http.MethodPost && path == "/validate":
		return h.Validate(ctx, req)
	case method == http.MethodPost && path == "/export/dot":
		return h.ExportDOT(ctx, req)
	case method == http.MethodGet && path == "/templates":
		return jsonResp(http.StatusOK, map[string]any{"templates": h.svc.Templates()})
	case method == http.MethodGet && len(parts) == 2 && parts[0] == "templates":
		return h.Template(parts[1])
	case method == http.MethodPost && len(parts) == 3 && parts[0] == "templates" && parts[2] == "execute":
		return h.ExecuteTemplate(ctx, parts[1], req)
	case method == http.MethodGet && path == "/runs":
		limit, _ := strconv.Atoi(req.QueryStringParameters["limit"])
		runs, err := h.svc.Runs(ctx, limit)
		if err != nil {
			return jsonResp(execdto.StatusFor(err), execdto.ErrorBody("list runs failed", err, nil, nil))
		}
		return jsonResp(http.StatusOK, execdto.RunsResponse{Runs: runs})
	case method == http.MethodGet && len(parts) == 2 && parts[0] == "runs":
		rec, err := h.svc.Run(ctx, parts[1])
		if err != nil {
			return jsonResp(execdto.StatusFor(err), execdto.ErrorBody("run lookup failed", err, nil, nil))
		}
		return jsonResp(http.StatusOK, rec)
	case path == "/healthz":
		return jsonResp(http.StatusOK, map[string]string{"status": "ok"})
	}
	return jsonResp(http.StatusNotFound, map[string]any{"error": "route not found", "details": method + " " + path})
}

func (h *Handler) Execute(ctx context.Context, req events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	var in execdto.ExecuteRequest
	if resp, ok := decode(req, &in); !ok {
		return resp
	}
	appReq, err := in.ToApp()
	if err != nil {
		return jsonResp(http.StatusBadRequest, execdto.ErrorBody("invalid request", err, nil, nil))
	}

	tr, info, err := h.svc.Execute(ctx, appReq)
	if err != nil {
		return jsonResp(execdto.StatusFor(err), execdto.ErrorBody("execute failed", err, execdto.Result(tr, in.Debug), info))
	}
	return jsonResp(http.StatusOK, execdto.ExecuteResponse{Result: execdto.Result(tr, in.Debug), Workflow: info})
}

func (h *Handler) Validate(ctx context.Context, req events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	var in execdto.DocumentRequest
	if resp, ok := decode(req, &in); !ok {
		return resp
	}
	src, err := in.Source()
	if err != nil {
		return jsonResp(http.StatusBadRequest, execdto.ErrorBody("invalid request", err, nil, nil))
	}
	report, info, err := h.svc.Validate(ctx, src)
	if err != nil {
		return jsonResp(execdto.StatusFor(err), execdto.ErrorBody("validate failed", err, nil, info))
	}
	return jsonResp(http.StatusOK, execdto.ValidateResponse{Report: report, Workflow: info})
}

func (h *Handler) ExportDOT(ctx context.Context, req events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	var in execdto.DocumentRequest
	if resp, ok := decode(req, &in); !ok {
		return resp
	}
	src, err := in.Source()
	if err != nil {
		return jsonResp(http.StatusBadRequest, execdto.ErrorBody("invalid request", err, nil, nil))
	}
	dot, err := h.svc.ExportDOT(ctx, src, in.Name)
	if err != nil {
		return jsonResp(execdto.StatusFor(err), execdto.ErrorBody("export failed", err, nil, nil))
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"content-type": "text/vnd.graphviz"},
		Body:       dot,
	}
}

func (h *Handler) Template(id string) events.APIGatewayV2HTTPResponse {
	tpl, ok := h.svc.Template(id)
	if !ok {
		return jsonResp(http.StatusNotFound, map[string]any{"error": "template not found", "details": id})
	}
	doc, err := document.Marshal(tpl.Graph, document.FormatJSON, time.Time{})
	if err != nil {
		return jsonResp(http.StatusInternalServerError, execdto.ErrorBody("template encode failed", err, nil, nil))
	}
	return jsonResp(http.StatusOK, map[string]any{"template": tpl, "workflow": json.RawMessage(doc)})
}

func (h *Handler) ExecuteTemplate(ctx context.Context, id string, req events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	var in execdto.TemplateRunRequest
	if req.Body != "" {
		if resp, ok := decode(req, &in); !ok {
			return resp
		}
	}
	tr, info, err := h.svc.ExecuteTemplate(ctx, id, in.Context, app.RunOptions{MaxSteps: in.MaxSteps, RunID: in.RunID})
	if err != nil {
		return jsonResp(execdto.StatusFor(err), execdto.ErrorBody("execute failed", err, execdto.Result(tr, in.Debug), info))
	}
	return jsonResp(http.StatusOK, execdto.ExecuteResponse{Result: execdto.Result(tr, in.Debug), Workflow: info})
}

func requestTarget(req events.APIGatewayV2HTTPRequest) (method, path string) {
	method = req.RequestContext.HTTP.Method
	path = req.RawPath
	if path == "" {
		path = req.RequestContext.HTTP.Path
	}
	// Route keys look like "POST /execute"; used when the event lacks the rest.
	if rk := strings.Fields(req.RouteKey); len(rk) == 2 {
		if method == "" {
			method = rk[0]
		}
		if path == "" && !strings.Contains(rk[1], "{") {
			path = rk[1]
		}
	}
	if method == "" {
		method = http.MethodPost
	}
	if path == "" {
		path = "/execute"
	}
	return strings.ToUpper(method), path
}

func decode(req events.APIGatewayV2HTTPRequest, v any) (events.APIGatewayV2HTTPResponse, bool) {
	body, err := readBody(req)
	if err != nil {
		return jsonResp(http.StatusBadRequest, map[string]any{"error": "invalid body", "details": err.Error()}), false
	}
	if err := json.Unmarshal(body, v); err != nil {
		return jsonResp(http.StatusBadRequest, map[string]any{"error": "invalid json", "details": err.Error()}), false
	}
	return events.APIGatewayV2HTTPResponse{}, true
}

func readBody(req events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if req.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(req.Body)
	}
	return []byte(req.Body), nil
}

func jsonResp(status int, body any) events.APIGatewayV2HTTPResponse {
	b, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    map[string]string{"content-type": "application/json"},
			Body:       `{"error":"failed to encode response"}`,
		}
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"content-type": "application/json"},
		Body:       string(b),
	}
}
