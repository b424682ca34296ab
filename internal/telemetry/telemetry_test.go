package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
)

func sampleGraph() *workflow.Graph {
	return &workflow.Graph{
		Nodes: []workflow.Node{
			{ID: "start", Data: workflow.LevelData{Label: "Start"}},
			{ID: "check", Data: workflow.ConditionData{Label: "Check", Branches: []workflow.Branch{{Name: "Adult", Condition: "age >= 18"}}}},
			{ID: "ok", Data: workflow.ActionData{Label: "OK"}},
			{ID: "no", Data: workflow.ActionData{Label: "No"}},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "start", Target: "check"},
			{ID: "e2", Source: "check", Target: "ok", BranchTag: workflow.BranchTag(0)},
			{ID: "e3", Source: "check", Target: "no", BranchTag: workflow.ElseTag},
		},
	}
}

func TestMetrics_ObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRun(&workflow.ExecutionTrace{Status: workflow.RunCompleted, Terminated: workflow.TerminatedLeaf, StepCount: 3})
	m.ObserveRun(&workflow.ExecutionTrace{Status: workflow.RunCompleted, Terminated: workflow.TerminatedLeaf, StepCount: 2})
	m.ObserveRun(&workflow.ExecutionTrace{
		Status:     workflow.RunFailed,
		Terminated: workflow.TerminatedError,
		StepCount:  4,
		Error:      &workflow.ExecutionError{Code: workflow.CodeCycleDetected},
	})
	m.ObserveRun(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("completed", "leaf")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("failed", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal.WithLabelValues("cycle_detected")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.runSteps))
}

func TestMetrics_NodeLatencyByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveNodeLatency("a", workflow.KindLevel, time.Millisecond)
	m.ObserveNodeLatency("b", workflow.KindAction, 2*time.Millisecond)
	m.ObserveNodeLatency("c", workflow.KindAction, 3*time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.nodeLatency))
}

func TestMetrics_FromEngine(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e := workflow.NewEngine(nil, workflow.WithNodeLatencyObserver(m), workflow.WithRunObserver(m))

	_, err := e.Execute(context.Background(), sampleGraph(), workflow.Context{"age": 20}, workflow.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("completed", "leaf")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.nodeLatency))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "workflow_runs_total")
	assert.Contains(t, names, "workflow_run_steps")
	assert.Contains(t, names, "workflow_node_latency_ms")
}

func TestMetrics_WatchCacheAndDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	size, hits, misses := 2, uint64(5), uint64(3)
	m.WatchCache(func() (int, uint64, uint64) { return size, hits, misses })
	m.WatchDropped(func() uint64 { return 7 })

	count, err := testutil.GatherAndCount(reg, "workflow_cache_items", "workflow_cache_hits_total", "workflow_cache_misses_total", "workflow_observations_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	size = 9
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "workflow_cache_items" {
			assert.Equal(t, 9.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
}

func TestTracing_Disabled(t *testing.T) {
	tr := NewTracing(false, "svc", nil)
	assert.False(t, tr.Enabled())
	assert.NotNil(t, tr.Tracer())
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestTracing_EngineSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tr := NewTracing(true, "workflow-test", zap.NewNop(), rec)
	defer func() { _ = tr.Shutdown(context.Background()) }()

	e := workflow.NewEngine(nil, workflow.WithTracer(tr.Tracer()))
	trace, err := e.Execute(context.Background(), sampleGraph(), workflow.Context{"age": 12}, workflow.RunOptions{})
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 4)

	var root sdktrace.ReadOnlySpan
	steps := 0
	for _, s := range spans {
		switch s.Name() {
		case "workflow.execute":
			root = s
		case "workflow.step":
			steps++
		}
	}
	require.NotNil(t, root)
	assert.Equal(t, 3, steps)
	assert.Contains(t, root.Attributes(), attribute.String("workflow.run_id", trace.RunID))
	assert.Contains(t, root.Attributes(), attribute.String("workflow.status", "completed"))

	for _, s := range spans {
		if s.Name() == "workflow.step" {
			assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID())
		}
	}
}

func TestLogExporter_WritesSpans(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tr := NewTracing(true, "workflow-test", zap.New(core))

	e := workflow.NewEngine(nil, workflow.WithTracer(tr.Tracer()))
	_, err := e.Execute(context.Background(), sampleGraph(), workflow.Context{"age": 30}, workflow.RunOptions{})
	require.NoError(t, err)
	require.NoError(t, tr.Shutdown(context.Background()))

	entries := logs.FilterMessage("span").All()
	require.Len(t, entries, 4)
	assert.Equal(t, "tracing", entries[0].ContextMap()["component"])
}
