// Package telemetry exposes workflow runs to Prometheus and OpenTelemetry.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
)

const namespace = "workflow"

// Metrics records run and node observations. It implements
// workflow.NodeLatencyObserver and workflow.RunObserver and is safe for
// concurrent use.
type Metrics struct {
	factory promauto.Factory

	runsTotal   *prometheus.CounterVec
	runSteps    prometheus.Histogram
	nodeLatency *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. Passing nil registers them on
// the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		factory: f,
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Finished workflow runs by status and termination reason",
			},
			[]string{"status", "terminated"},
		),
		runSteps: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_steps",
				Help:      "Steps taken per workflow run",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
			},
		),
		nodeLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_latency_ms",
				Help:      "Time spent simulating and resolving one node, in milliseconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50},
			},
			[]string{"kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "run_errors_total",
				Help:      "Failed workflow runs by error code",
			},
			[]string{"code"},
		),
	}
}

func (m *Metrics) ObserveNodeLatency(_ string, kind workflow.Kind, duration time.Duration) {
	m.nodeLatency.WithLabelValues(string(kind)).Observe(float64(duration.Microseconds()) / 1000.0)
}

func (m *Metrics) ObserveRun(tr *workflow.ExecutionTrace) {
	if tr == nil {
		return
	}
	m.runsTotal.WithLabelValues(tr.Status, tr.Terminated).Inc()
	m.runSteps.Observe(float64(tr.StepCount))
	if tr.Error != nil {
		m.errorsTotal.WithLabelValues(string(tr.Error.Code)).Inc()
	}
}

// WatchCache exports the size and hit counters of the compiled-graph cache.
// stats is called on every scrape.
func (m *Metrics) WatchCache(stats func() (size int, hits, misses uint64)) {
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_items",
		Help:      "Compiled workflows held in the cache",
	}, func() float64 {
		size, _, _ := stats()
		return float64(size)
	})
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Cache lookups served without compiling",
	}, func() float64 {
		_, hits, _ := stats()
		return float64(hits)
	})
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Cache lookups that compiled the workflow",
	}, func() float64 {
		_, _, misses := stats()
		return float64(misses)
	})
}

// WatchDropped exports the number of latency observations dropped by an
// asynchronous observer.
func (m *Metrics) WatchDropped(dropped func() uint64) {
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observations_dropped_total",
		Help:      "Node latency observations dropped because the buffer was full",
	}, func() float64 {
		return float64(dropped())
	})
}
