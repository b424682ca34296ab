package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
)

// SQLite persists runs in a single-file database.
//
// Schema:
//   - workflow_runs: one row per run, the full trace stored as JSON
//
// The connection pool is limited to one connection; WAL mode keeps readers
// from blocking on the writer. When max > 0 only the newest max runs are
// kept.
type SQLite struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
	max    int
}

// NewSQLite opens (creating if needed) the database at path. Use ":memory:"
// for a throwaway store.
func NewSQLite(ctx context.Context, path string, max int) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLite{db: db, path: path, max: max}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLite) createTables(ctx context.Context) error {
	const runsTable = `
		CREATE TABLE IF NOT EXISTS workflow_runs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL UNIQUE,
			workflow_hash TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			terminated TEXT NOT NULL DEFAULT '',
			step_count INTEGER NOT NULL,
			error_code TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			trace TEXT NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, runsTable); err != nil {
		return fmt.Errorf("failed to create workflow_runs table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_workflow_runs_hash ON workflow_runs(workflow_hash)"); err != nil {
		return fmt.Errorf("failed to create workflow_hash index: %w", err)
	}
	return nil
}

func (s *SQLite) Save(ctx context.Context, rec Record) error {
	if rec.RunID == "" {
		return fmt.Errorf("runstore: record without run id")
	}
	traceJSON, err := json.Marshal(rec.Trace)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("runstore: store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `
		INSERT INTO workflow_runs (run_id, workflow_hash, status, terminated, step_count, error_code, created_at, trace)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			workflow_hash = excluded.workflow_hash,
			status = excluded.status,
			terminated = excluded.terminated,
			step_count = excluded.step_count,
			error_code = excluded.error_code,
			created_at = excluded.created_at,
			trace = excluded.trace
	`
	if _, err := tx.ExecContext(ctx, upsert,
		rec.RunID, rec.WorkflowHash, rec.Status, rec.Terminated, rec.StepCount, rec.ErrorCode,
		rec.CreatedAt.UnixNano(), string(traceJSON),
	); err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.RunID, err)
	}

	if s.max > 0 {
		const prune = `
			DELETE FROM workflow_runs
			WHERE seq NOT IN (SELECT seq FROM workflow_runs ORDER BY seq DESC LIMIT ?)
		`
		if _, err := tx.ExecContext(ctx, prune, s.max); err != nil {
			return fmt.Errorf("failed to prune runs: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLite) Get(ctx context.Context, runID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Record{}, errors.New("runstore: store is closed")
	}

	const query = `
		SELECT run_id, workflow_hash, status, terminated, step_count, error_code, created_at, trace
		FROM workflow_runs
		WHERE run_id = ?
	`
	var (
		rec       Record
		createdAt int64
		traceJSON string
	)
	err := s.db.QueryRowContext(ctx, query, runID).Scan(
		&rec.RunID, &rec.WorkflowHash, &rec.Status, &rec.Terminated, &rec.StepCount, &rec.ErrorCode,
		&createdAt, &traceJSON,
	)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()

	var tr workflow.ExecutionTrace
	if err := json.Unmarshal([]byte(traceJSON), &tr); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal trace of run %s: %w", runID, err)
	}
	rec.Trace = &tr
	return rec, nil
}

// List returns summaries only; Trace is nil on every record.
func (s *SQLite) List(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.New("runstore: store is closed")
	}

	const query = `
		SELECT run_id, workflow_hash, status, terminated, step_count, error_code, created_at
		FROM workflow_runs
		ORDER BY seq DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Record{}
	for rows.Next() {
		var (
			rec       Record
			createdAt int64
		)
		if err := rows.Scan(&rec.RunID, &rec.WorkflowHash, &rec.Status, &rec.Terminated, &rec.StepCount,
			&rec.ErrorCode, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
