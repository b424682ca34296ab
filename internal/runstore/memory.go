package runstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory is a bounded in-process store. Once max records are held the
// oldest one is evicted on every Save. It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	max   int
	order []string
	byID  map[string]Record
}

func NewMemory(max int) *Memory {
	if max <= 0 {
		max = 1000
	}
	return &Memory{max: max, byID: make(map[string]Record)}
}

func (m *Memory) Save(_ context.Context, rec Record) error {
	if rec.RunID == "" {
		return fmt.Errorf("runstore: record without run id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[rec.RunID]; exists {
		m.byID[rec.RunID] = rec
		return nil
	}
	for len(m.order) >= m.max {
		delete(m.byID, m.order[0])
		m.order = m.order[1:]
	}
	m.order = append(m.order, rec.RunID)
	m.byID[rec.RunID] = rec
	return nil
}

func (m *Memory) Get(_ context.Context, runID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byID[runID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) List(_ context.Context, limit int) ([]Record, error) {
	limit = listLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, min(limit, len(m.order)))
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.byID[m.order[i]])
	}
	return out, nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

func (m *Memory) Close() error { return nil }
