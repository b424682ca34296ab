// Package bootstrap assembles the service graph shared by the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/huy-cyno/workflow-builder-poc/internal/app"
	"github.com/huy-cyno/workflow-builder-poc/internal/config"
	"github.com/huy-cyno/workflow-builder-poc/internal/runstore"
	"github.com/huy-cyno/workflow-builder-poc/internal/telemetry"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/cache"
)

type Stack struct {
	Service  *app.Service
	Registry *prometheus.Registry
	Metrics  *telemetry.Metrics
	Tracing  *telemetry.Tracing

	runs    runstore.Store
	latency *workflow.AsyncNodeLatencyObserver
	logger  *zap.Logger
}

// New builds the engine, cache, run store and telemetry described by cfg.
func New(ctx context.Context, cfg config.Runtime, logger *zap.Logger) (*Stack, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	runs, err := openRunStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)
	tracing := telemetry.NewTracing(cfg.Tracing, cfg.ServiceName, logger)

	latency := workflow.NewAsyncNodeLatencyObserver(workflow.NodeLatencyObservers{
		metrics,
		workflow.NewNodeLatencyLogger(logger.Named("latency")),
	}, cfg.ObsBuffer)
	metrics.WatchDropped(latency.Dropped)

	engine := workflow.NewEngine(nil,
		workflow.WithLogger(logger),
		workflow.WithNodeLatencyObserver(latency),
		workflow.WithRunObserver(metrics),
		workflow.WithTracer(tracing.Tracer()),
		workflow.WithMaxSteps(cfg.MaxSteps),
	)
	c := cache.NewInMemory(cfg.CacheMaxItems)
	metrics.WatchCache(func() (int, uint64, uint64) {
		st := c.Stats()
		return st.Size, st.Hits, st.Misses
	})

	svc := app.NewService(engine, c, app.WithRunStore(runs), app.WithLogger(logger))

	logger.Info("workflow stack ready",
		zap.String("run_store", cfg.RunStore),
		zap.Int("cache_max_items", cfg.CacheMaxItems),
		zap.Int("max_steps", cfg.MaxSteps),
		zap.Bool("tracing", tracing.Enabled()),
	)

	return &Stack{
		Service:  svc,
		Registry: reg,
		Metrics:  metrics,
		Tracing:  tracing,
		runs:     runs,
		latency:  latency,
		logger:   logger,
	}, nil
}

func openRunStore(ctx context.Context, cfg config.Runtime) (runstore.Store, error) {
	kind, path, err := cfg.RunStoreTarget()
	if err != nil {
		return nil, err
	}
	switch kind {
	case config.RunStoreNone:
		return runstore.Nop{}, nil
	case config.RunStoreSQLite:
		s, err := runstore.NewSQLite(ctx, path, cfg.RunStoreMax)
		if err != nil {
			return nil, fmt.Errorf("open run store: %w", err)
		}
		return s, nil
	}
	return runstore.NewMemory(cfg.RunStoreMax), nil
}

// Close drains the latency observer, flushes spans and closes the run store.
func (s *Stack) Close(ctx context.Context) error {
	s.latency.Close()
	var errs []error
	if err := s.Tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
	}
	if err := s.runs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close run store: %w", err))
	}
	if d := s.latency.Dropped(); d > 0 {
		s.logger.Warn("latency observations dropped", zap.Uint64("dropped", d))
	}
	return errors.Join(errs...)
}
