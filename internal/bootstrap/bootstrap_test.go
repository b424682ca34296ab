package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huy-cyno/workflow-builder-poc/internal/app"
	"github.com/huy-cyno/workflow-builder-poc/internal/config"
	"github.com/huy-cyno/workflow-builder-poc/internal/runstore"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
)

func TestNew_MemoryStore(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, config.Defaults(), nil)
	require.NoError(t, err)

	tr, _, err := s.Service.ExecuteTemplate(ctx, "risk-assessment", nil, appOptions())
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	_, err = s.Service.Run(ctx, tr.RunID)
	assert.NoError(t, err)

	count, err := testutil.GatherAndCount(s.Registry, "workflow_runs_total", "workflow_cache_items")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNew_SQLiteStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults()
	cfg.RunStore = "sqlite:" + filepath.Join(t.TempDir(), "runs.db")
	cfg.Tracing = true

	s, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close(ctx) }()
	assert.True(t, s.Tracing.Enabled())

	tr, _, err := s.Service.ExecuteTemplate(ctx, "simple-linear", nil, appOptions())
	require.NoError(t, err)

	rec, err := s.Service.Run(ctx, tr.RunID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunCompleted, rec.Status)
}

func TestNew_NoStoreAndBadStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults()
	cfg.RunStore = "none"

	s, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	tr, _, err := s.Service.ExecuteTemplate(ctx, "simple-linear", nil, appOptions())
	require.NoError(t, err)
	_, err = s.Service.Run(ctx, tr.RunID)
	assert.ErrorIs(t, err, runstore.ErrNotFound)
	require.NoError(t, s.Close(ctx))

	cfg.RunStore = "bogus"
	_, err = New(ctx, cfg, nil)
	assert.Error(t, err)
}

func appOptions() app.RunOptions { return app.RunOptions{} }
