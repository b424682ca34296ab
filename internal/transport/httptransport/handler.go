package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/huy-cyno/workflow-builder-poc/internal/app"
	"github.com/huy-cyno/workflow-builder-poc/internal/transport/execdto"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/document"
)

const maxBodyBytes = 4 << 20

type Handler struct {
	svc     app.WorkflowService
	metrics http.Handler
	logger  *zap.Logger
}

type Option func(*Handler)

// WithMetrics serves h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(handler *Handler) { handler.metrics = h }
}

func WithLogger(logger *zap.Logger) Option {
	return func(handler *Handler) {
		if logger != nil {
			handler.logger = logger
		}
	}
}

func NewHandler(svc app.WorkflowService, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(zap.String("component", "http"))
	return h
}

// Routes returns a mux with every endpoint registered.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/execute", h.Execute)
	mux.HandleFunc("/validate", h.Validate)
	mux.HandleFunc("/export/dot", h.ExportDOT)
	mux.HandleFunc("/convert", h.Convert)
	mux.HandleFunc("/templates", h.Templates)
	mux.HandleFunc("/templates/{id}", h.Template)
	mux.HandleFunc("/templates/{id}/execute", h.ExecuteTemplate)
	mux.HandleFunc("/runs", h.Runs)
	mux.HandleFunc("/runs/{id}", h.Run)
	mux.HandleFunc("/healthz", h.Healthz)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics)
	}
	return mux
}

// Logged wraps next with one access log line per request.
func (h *Handler) Logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Info("request processed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var in execdto.ExecuteRequest
	if !decode(w, r, &in) {
		return
	}
	req, err := in.ToApp()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, execdto.ErrorBody("invalid request", err, nil, nil))
		return
	}

	tr, info, err := h.svc.Execute(r.Context(), req)
	if err != nil {
		writeJSON(w, execdto.StatusFor(err), execdto.ErrorBody("execute failed", err, execdto.Result(tr, in.Debug), info))
		return
	}
	writeJSON(w, http.StatusOK, execdto.ExecuteResponse{Result: execdto.Result(tr, in.Debug), Workflow: info})
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	src, ok := documentSource(w, r)
	if !ok {
		return
	}
	report, info, err := h.svc.Validate(r.Context(), src.Source)
	if err != nil {
		writeJSON(w, execdto.StatusFor(err), execdto.ErrorBody("validate failed", err, nil, info))
		return
	}
	writeJSON(w, http.StatusOK, execdto.ValidateResponse{Report: report, Workflow: info})
}

func (h *Handler) ExportDOT(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	src, ok := documentSource(w, r)
	if !ok {
		return
	}
	dot, err := h.svc.ExportDOT(r.Context(), src.Source, src.name)
	if err != nil {
		writeJSON(w, execdto.StatusFor(err), execdto.ErrorBody("export failed", err, nil, nil))
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(dot))
}

func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	src, ok := documentSource(w, r)
	if !ok {
		return
	}
	to, err := document.ParseFormat(src.to)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, execdto.ErrorBody("invalid target format", err, nil, nil))
		return
	}
	out, err := h.svc.ConvertDocument(r.Context(), src.Source, to)
	if err != nil {
		writeJSON(w, execdto.StatusFor(err), execdto.ErrorBody("convert failed", err, nil, nil))
		return
	}
	w.Header().Set("Content-Type", contentType(to))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *Handler) Templates(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": h.svc.Templates()})
}

func (h *Handler) Template(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id := r.PathValue("id")
	tpl, ok := h.svc.Template(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "template not found", "details": id})
		return
	}
	doc, err := document.Marshal(tpl.Graph, document.FormatJSON, time.Time{})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, execdto.ErrorBody("template encode failed", err, nil, nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"template": tpl, "workflow": json.RawMessage(doc)})
}

func (h *Handler) ExecuteTemplate(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var in execdto.TemplateRunRequest
	if r.ContentLength != 0 && !decode(w, r, &in) {
		return
	}
	tr, info, err := h.svc.ExecuteTemplate(r.Context(), r.PathValue("id"), in.Context, app.RunOptions{
		MaxSteps: in.MaxSteps,
		RunID:    in.RunID,
	})
	if err != nil {
		writeJSON(w, execdto.StatusFor(err), execdto.ErrorBody("execute failed", err, execdto.Result(tr, in.Debug), info))
		return
	}
	writeJSON(w, http.StatusOK, execdto.ExecuteResponse{Result: execdto.Result(tr, in.Debug), Workflow: info})
}

func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.svc.Runs(r.Context(), limit)
	if err != nil {
		writeJSON(w, execdto.StatusFor(err), execdto.ErrorBody("list runs failed", err, nil, nil))
		return
	}
	writeJSON(w, http.StatusOK, execdto.RunsResponse{Runs: runs})
}

func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	rec, err := h.svc.Run(r.Context(), r.PathValue("id"))
	if err != nil {
		writeJSON(w, execdto.StatusFor(err), execdto.ErrorBody("run lookup failed", err, nil, nil))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type docSource struct {
	app.Source
	name string
	to   string
}

func documentSource(w http.ResponseWriter, r *http.Request) (docSource, bool) {
	var in execdto.DocumentRequest
	if !decode(w, r, &in) {
		return docSource{}, false
	}
	src, err := in.Source()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, execdto.ErrorBody("invalid request", err, nil, nil))
		return docSource{}, false
	}
	return docSource{Source: src, name: in.Name, to: in.To}, true
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, map[string]any{"error": "invalid json", "details": err.Error()})
		return false
	}
	return true
}

func contentType(f document.Format) string {
	switch f {
	case document.FormatYAML:
		return "application/yaml"
	case document.FormatDOT:
		return "text/vnd.graphviz"
	}
	return "application/json"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
