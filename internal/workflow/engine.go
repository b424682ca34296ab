package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/condition"
)

const DefaultMaxSteps = 100

type Evaluator interface {
	Eval(cond string, vars map[string]any) (bool, error)
}

// StepFunc observes each recorded step before the engine moves on. A
// non-nil error aborts the run.
type StepFunc func(ctx context.Context, step ExecutionStep) error

type RunOptions struct {
	// MaxSteps caps the number of executed steps; <= 0 uses the engine default.
	MaxSteps int
	OnStep   StepFunc
	// RunID identifies the trace; a random UUID is used when empty.
	RunID string
}

type Engine struct {
	eval            Evaluator
	logger          *zap.Logger
	latencyObserver NodeLatencyObserver
	runObservers    []RunObserver
	tracer          trace.Tracer
	now             func() time.Time
	maxSteps        int
}

type EngineOption func(*Engine)

func WithNodeLatencyObserver(observer NodeLatencyObserver) EngineOption {
	return func(e *Engine) {
		e.latencyObserver = observer
	}
}

func WithRunObserver(observer RunObserver) EngineOption {
	return func(e *Engine) {
		e.runObservers = append(e.runObservers, observer)
	}
}

func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithClock replaces time.Now for step timestamps and durations.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMaxSteps sets the step ceiling used when a run does not set its own.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewEngine builds an engine. A nil eval uses the built-in condition grammar.
func NewEngine(eval Evaluator, opts ...EngineOption) *Engine {
	e := &Engine{
		eval:     eval,
		logger:   zap.NewNop(),
		tracer:   noop.NewTracerProvider().Tracer(""),
		now:      time.Now,
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.eval == nil {
		e.eval = condition.NewInterpreter(e.logger)
	}
	e.logger = e.logger.With(zap.String("component", "workflow_engine"))
	return e
}

// Execute indexes g and runs it against input. The returned trace is never
// nil; when the run fails the error is the *ExecutionError also stored on
// the trace.
func (e *Engine) Execute(ctx context.Context, g *Graph, input Context, opts RunOptions) (*ExecutionTrace, error) {
	ix, err := NewIndex(g)
	if err != nil {
		tr := e.newTrace(input, opts)
		var xe *ExecutionError
		if !errors.As(err, &xe) {
			xe = &ExecutionError{Code: CodeInvalidGraph, Message: err.Error(), Cause: err}
		}
		tr.finish(xe, TerminatedError)
		e.logger.Warn("workflow rejected", zap.String("run_id", tr.RunID), zap.Error(xe))
		e.observeRun(tr)
		return tr, xe
	}
	return e.ExecuteIndex(ctx, ix, input, opts)
}

// ExecuteIndex runs a pre-built index. The index is only read, so one index
// may serve concurrent runs.
func (e *Engine) ExecuteIndex(ctx context.Context, ix *Index, input Context, opts RunOptions) (*ExecutionTrace, error) {
	tr := e.newTrace(input, opts)

	ctx, span := e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("workflow.run_id", tr.RunID),
	))
	defer span.End()

	xe, terminated := e.run(ctx, ix, tr, opts)
	tr.finish(xe, terminated)

	span.SetAttributes(
		attribute.String("workflow.start_node", tr.StartNode),
		attribute.String("workflow.status", tr.Status),
		attribute.String("workflow.terminated", tr.Terminated),
		attribute.Int("workflow.step_count", tr.StepCount),
	)

	e.observeRun(tr)

	if xe != nil {
		span.SetStatus(codes.Error, xe.Error())
		e.logger.Warn("workflow failed",
			zap.String("run_id", tr.RunID),
			zap.Int("steps", tr.StepCount),
			zap.Error(xe),
		)
		return tr, xe
	}

	e.logger.Info("workflow completed",
		zap.String("run_id", tr.RunID),
		zap.Int("steps", tr.StepCount),
		zap.String("terminated", tr.Terminated),
	)
	return tr, nil
}

func (e *Engine) newTrace(input Context, opts RunOptions) *ExecutionTrace {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &ExecutionTrace{
		RunID:   runID,
		Steps:   []ExecutionStep{},
		Context: input.clone(),
	}
}

func (e *Engine) run(ctx context.Context, ix *Index, tr *ExecutionTrace, opts RunOptions) (*ExecutionError, string) {
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = e.maxSteps
	}

	start, err := ix.StartNode()
	if err != nil {
		return err.(*ExecutionError), TerminatedError
	}
	if candidates := ix.StartCandidates(); len(candidates) > 1 {
		e.logger.Warn("multiple start candidates, using the first",
			zap.String("run_id", tr.RunID),
			zap.Strings("candidates", candidates),
		)
	}
	tr.StartNode = start

	e.logger.Debug("workflow started",
		zap.String("run_id", tr.RunID),
		zap.String("start_node", start),
		zap.Int("max_steps", maxSteps),
	)

	// The engine reads from its own copy so callbacks cannot change conditions mid-run.
	vars := tr.Context.clone()
	visited := make(map[string]struct{})
	current := start

	for {
		if len(tr.Steps) >= maxSteps {
			xe := newError(CodeStepLimitExceeded, current, "workflow exceeded maximum steps (%d), possible infinite loop", maxSteps)
			xe.Step = len(tr.Steps) + 1
			return xe, TerminatedError
		}

		if _, seen := visited[current]; seen {
			xe := newError(CodeCycleDetected, current, "cycle detected at node %q", current)
			xe.Step = len(tr.Steps) + 1
			return xe, TerminatedError
		}
		visited[current] = struct{}{}

		node, ok := ix.Node(current)
		if !ok {
			xe := newError(CodeNodeNotFound, current, "node %q not found", current)
			xe.Step = len(tr.Steps) + 1
			return xe, TerminatedError
		}

		step, res := e.step(ctx, ix, node, vars, len(tr.Steps)+1)
		tr.Steps = append(tr.Steps, step)

		if opts.OnStep != nil {
			if err := opts.OnStep(ctx, step); err != nil {
				return &ExecutionError{
					Code:    CodeStepCallback,
					Message: "step callback failed",
					NodeID:  node.ID,
					Step:    step.StepIndex,
					Cause:   err,
				}, TerminatedError
			}
		}

		if !res.Found {
			// A run that uses up its step budget fails even when it ends here.
			if len(tr.Steps) >= maxSteps {
				xe := newError(CodeStepLimitExceeded, node.ID, "workflow exceeded maximum steps (%d), possible infinite loop", maxSteps)
				xe.Step = step.StepIndex
				return xe, TerminatedError
			}
			if res.NoMatchingBranch {
				e.logger.Warn("no matching branch and no else branch defined",
					zap.String("run_id", tr.RunID),
					zap.String("node_id", node.ID),
				)
				return nil, TerminatedNoMatchingBranch
			}
			return nil, TerminatedLeaf
		}

		if n := len(ix.Outgoing(node.ID)); n > 1 && node.Kind() != KindCondition {
			e.logger.Warn("multiple outgoing edges, taking the first",
				zap.String("run_id", tr.RunID),
				zap.String("node_id", node.ID),
				zap.Int("edges", n),
			)
		}
		current = res.Target
	}
}

func (e *Engine) step(ctx context.Context, ix *Index, node *Node, vars Context, index int) (ExecutionStep, Resolution) {
	_, span := e.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("workflow.node_id", node.ID),
		attribute.String("workflow.node_kind", string(node.Kind())),
		attribute.Int("workflow.step_index", index),
	))
	defer span.End()

	started := e.now()

	outcome := simulate(node, e.now)
	res := ResolveNext(ix, node, vars, e.eval)
	if node.Kind() == KindCondition {
		outcome.Evaluations = res.Evaluations
	}

	duration := e.now().Sub(started)
	e.observeNodeLatency(node, duration)

	step := ExecutionStep{
		StepIndex:      index,
		NodeID:         node.ID,
		NodeKind:       node.Kind(),
		Label:          node.Label(),
		Outcome:        outcome,
		TakenBranch:    res.Branch,
		NextNodeID:     res.Target,
		DurationMicros: duration.Microseconds(),
		Timestamp:      started,
	}

	if step.TakenBranch != "" {
		span.SetAttributes(attribute.String("workflow.taken_branch", step.TakenBranch))
	}
	e.logger.Debug("workflow step",
		zap.Int("step", index),
		zap.String("node_id", node.ID),
		zap.String("kind", string(node.Kind())),
		zap.String("taken_branch", step.TakenBranch),
		zap.String("next", step.NextNodeID),
	)

	return step, res
}

func (e *Engine) observeNodeLatency(node *Node, duration time.Duration) {
	if e.latencyObserver == nil {
		return
	}
	e.latencyObserver.ObserveNodeLatency(node.ID, node.Kind(), duration)
}

func (e *Engine) observeRun(tr *ExecutionTrace) {
	for _, o := range e.runObservers {
		o.ObserveRun(tr)
	}
}
