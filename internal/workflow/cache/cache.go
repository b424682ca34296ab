// Package cache keeps indexed workflow graphs keyed by the hash of their
// source document, so repeated executions of the same document skip
// decoding and indexing.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
)

type InMemory struct {
	mu    sync.RWMutex
	max   int
	items map[string]*workflow.Index
	group singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
}

type Stats struct {
	Size   int    `json:"size"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// NewInMemory returns a cache holding at most max entries. Once full, new
// documents are still computed but not stored.
func NewInMemory(max int) *InMemory {
	if max < 0 {
		max = 0
	}
	return &InMemory{
		max:   max,
		items: make(map[string]*workflow.Index, max),
	}
}

// GetOrCompute returns the index cached under key or runs fn to build it.
// Concurrent callers with the same key share one fn call. Errors and panics
// from fn are returned to every waiter and never cached.
func (c *InMemory) GetOrCompute(key string, fn func() (*workflow.Index, error)) (*workflow.Index, error) {
	c.mu.RLock()
	if v, ok := c.items[key]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return v, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		if v, ok := c.items[key]; ok {
			c.mu.RUnlock()
			c.hits.Add(1)
			return v, nil
		}
		c.mu.RUnlock()

		c.misses.Add(1)
		ix, err := safeCompute(fn)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if len(c.items) < c.max {
			c.items[key] = ix
		}
		c.mu.Unlock()
		return ix, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*workflow.Index), nil
}

func safeCompute(fn func() (*workflow.Index, error)) (ix *workflow.Index, err error) {
	defer func() {
		if r := recover(); r != nil {
			ix = nil
			err = fmt.Errorf("workflow compile panicked: %v", r)
		}
	}()
	return fn()
}

func (c *InMemory) Stats() Stats {
	c.mu.RLock()
	size := len(c.items)
	c.mu.RUnlock()
	return Stats{Size: size, Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Key derives the cache key of a document in a given format.
func Key(format string, doc []byte) string {
	h := sha256.New()
	h.Write([]byte(format))
	h.Write([]byte{0})
	h.Write(doc)
	return hex.EncodeToString(h.Sum(nil))
}
