package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/huy-cyno/workflow-builder-poc/internal/runstore"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/analysis"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/cache"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/document"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/templates"
)

// ErrInvalidRequest marks failures caused by the request itself (missing or
// undecodable workflow, unknown template) rather than by a run.
var ErrInvalidRequest = errors.New("invalid request")

type Engine interface {
	Execute(ctx context.Context, g *workflow.Graph, input workflow.Context, opts workflow.RunOptions) (*workflow.ExecutionTrace, error)
	ExecuteIndex(ctx context.Context, ix *workflow.Index, input workflow.Context, opts workflow.RunOptions) (*workflow.ExecutionTrace, error)
}

type Cache interface {
	GetOrCompute(key string, fn func() (*workflow.Index, error)) (*workflow.Index, error)
}

type Service struct {
	engine    Engine
	cache     Cache
	runs      runstore.Store
	templates *templates.Registry
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithRunStore(s runstore.Store) Option {
	return func(svc *Service) {
		if s != nil {
			svc.runs = s
		}
	}
}

func WithTemplates(r *templates.Registry) Option {
	return func(svc *Service) {
		if r != nil {
			svc.templates = r
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(svc *Service) {
		if logger != nil {
			svc.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		if now != nil {
			svc.now = now
		}
	}
}

// NewService wires the engine and the compiled-graph cache. Runs are not
// recorded unless a run store is given; templates default to the builtin set.
func NewService(engine Engine, c Cache, opts ...Option) *Service {
	s := &Service{
		engine: engine,
		cache:  c,
		runs:   runstore.Nop{},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.templates == nil {
		s.templates = templates.Builtin()
	}
	s.logger = s.logger.With(zap.String("component", "workflow_service"))
	return s
}

// Execute decodes (cached by content hash) and runs the workflow. The input
// is never mutated. On a failed run the trace is returned along with the
// *workflow.ExecutionError.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*workflow.ExecutionTrace, *WorkflowInfo, error) {
	ix, rejected, info, err := s.compile(req.Workflow)
	if rejected != nil {
		// The engine turns the structural error into a failed run so it is
		// observed and recorded like any other.
		tr, err := s.engine.Execute(ctx, rejected, inputOrEmpty(req.Input), engineOptions(req.RunOptions))
		s.record(ctx, tr, info)
		return tr, info, err
	}
	if err != nil {
		return nil, info, err
	}
	tr, err := s.run(ctx, ix, info, req.Input, req.RunOptions)
	return tr, info, err
}

func (s *Service) ExecuteTemplate(ctx context.Context, id string, input workflow.Context, opts RunOptions) (*workflow.ExecutionTrace, *WorkflowInfo, error) {
	tpl, ok := s.templates.Get(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown template %q", ErrInvalidRequest, id)
	}
	key := "template:" + tpl.ID
	ix, err := s.cache.GetOrCompute(key, func() (*workflow.Index, error) {
		return workflow.NewIndex(tpl.Graph)
	})
	if err != nil {
		return nil, nil, err
	}
	info := describe(key, ix.Graph())
	info.Template = tpl.ID
	if start, err := ix.StartNode(); err == nil {
		info.StartNode = start
	}
	if input == nil {
		input = tpl.Sample
	}
	tr, err := s.run(ctx, ix, info, input, opts)
	return tr, info, err
}

func (s *Service) run(ctx context.Context, ix *workflow.Index, info *WorkflowInfo, input workflow.Context, opts RunOptions) (*workflow.ExecutionTrace, error) {
	tr, err := s.engine.ExecuteIndex(ctx, ix, inputOrEmpty(input), engineOptions(opts))
	s.record(ctx, tr, info)
	return tr, err
}

func (s *Service) record(ctx context.Context, tr *workflow.ExecutionTrace, info *WorkflowInfo) {
	if tr == nil {
		return
	}
	if err := s.runs.Save(ctx, runstore.NewRecord(tr, info.Hash, s.now())); err != nil {
		s.logger.Warn("failed to record run", zap.String("run_id", tr.RunID), zap.Error(err))
	}
}

func inputOrEmpty(input workflow.Context) workflow.Context {
	if input == nil {
		return workflow.Context{}
	}
	return input
}

func engineOptions(opts RunOptions) workflow.RunOptions {
	return workflow.RunOptions{MaxSteps: opts.MaxSteps, OnStep: opts.OnStep, RunID: opts.RunID}
}

// Validate reports structural problems; an undecodable document is an
// error, a decodable but broken graph is a report with Valid=false.
func (s *Service) Validate(_ context.Context, src Source) (*analysis.Report, *WorkflowInfo, error) {
	g, info, err := s.decode(src)
	if err != nil {
		return nil, info, err
	}
	report := analysis.Validate(g)
	info.StartNode = report.StartNode
	return report, info, nil
}

func (s *Service) ExportDOT(_ context.Context, src Source, name string) (string, error) {
	ix, _, info, err := s.compile(src)
	if err != nil {
		return "", err
	}
	if name == "" {
		name = "workflow"
	}
	s.logger.Debug("exporting workflow", zap.String("hash", info.Hash), zap.String("name", name))
	return document.ExportDOT(ix.Graph(), name)
}

// ConvertDocument re-encodes src as to. The graph only needs to decode, not
// to be runnable.
func (s *Service) ConvertDocument(_ context.Context, src Source, to document.Format) ([]byte, error) {
	g, _, err := s.decode(src)
	if err != nil {
		return nil, err
	}
	out, err := document.Marshal(g, to, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return out, nil
}

func (s *Service) Templates() []templates.Template {
	return s.templates.List()
}

func (s *Service) Template(id string) (templates.Template, bool) {
	return s.templates.Get(id)
}

func (s *Service) Run(ctx context.Context, runID string) (runstore.Record, error) {
	return s.runs.Get(ctx, runID)
}

func (s *Service) Runs(ctx context.Context, limit int) ([]runstore.Record, error) {
	return s.runs.List(ctx, limit)
}

// compile returns the cached index of src. When the document decodes but
// the graph is structurally broken, the decoded graph is returned as
// rejected along with the *workflow.ExecutionError.
func (s *Service) compile(src Source) (ix *workflow.Index, rejected *workflow.Graph, info *WorkflowInfo, err error) {
	format, err := resolveFormat(src)
	if err != nil {
		return nil, nil, nil, err
	}
	key := cache.Key(string(format), src.Data)

	var parsed *workflow.Graph
	ix, err = s.cache.GetOrCompute(key, func() (*workflow.Index, error) {
		g, err := document.Parse(src.Data, format)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		parsed = g
		return workflow.NewIndex(g)
	})
	if err != nil {
		info = &WorkflowInfo{Hash: key, Format: format}
		var xe *workflow.ExecutionError
		if !errors.As(err, &xe) {
			return nil, nil, info, err
		}
		if parsed == nil {
			// Another caller computed the failure; decode our own copy.
			if parsed, err = document.Parse(src.Data, format); err != nil {
				return nil, nil, info, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
			}
		}
		info.Nodes, info.Edges = len(parsed.Nodes), len(parsed.Edges)
		return nil, parsed, info, xe
	}

	info = describe(key, ix.Graph())
	info.Format = format
	if start, err := ix.StartNode(); err == nil {
		info.StartNode = start
	}
	return ix, nil, info, nil
}

func (s *Service) decode(src Source) (*workflow.Graph, *WorkflowInfo, error) {
	format, err := resolveFormat(src)
	if err != nil {
		return nil, nil, err
	}
	key := cache.Key(string(format), src.Data)
	g, err := document.Parse(src.Data, format)
	if err != nil {
		return nil, &WorkflowInfo{Hash: key, Format: format}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	info := describe(key, g)
	info.Format = format
	return g, info, nil
}

func resolveFormat(src Source) (document.Format, error) {
	if len(src.Data) == 0 {
		return "", fmt.Errorf("%w: workflow is required", ErrInvalidRequest)
	}
	if src.Format != "" {
		f, err := document.ParseFormat(string(src.Format))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return f, nil
	}
	return document.DetectFormat(src.Name, src.Data), nil
}

func describe(hash string, g *workflow.Graph) *WorkflowInfo {
	return &WorkflowInfo{Hash: hash, Nodes: len(g.Nodes), Edges: len(g.Edges)}
}
