package workflow

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type NodeLatencyObserver interface {
	ObserveNodeLatency(nodeID string, kind Kind, duration time.Duration)
}

// RunObserver is notified once per finished run, successful or not.
type RunObserver interface {
	ObserveRun(trace *ExecutionTrace)
}

type NodeLatencyLogger struct {
	logger *zap.Logger
}

func NewNodeLatencyLogger(logger *zap.Logger) *NodeLatencyLogger {
	return &NodeLatencyLogger{logger: logger}
}

func (l *NodeLatencyLogger) ObserveNodeLatency(nodeID string, kind Kind, duration time.Duration) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Info("workflow_node_latency",
		zap.String("node_id", nodeID),
		zap.String("kind", string(kind)),
		zap.Float64("duration_ms", float64(duration.Microseconds())/1000.0),
	)
}

// AsyncNodeLatencyObserver hands observations to next on a background
// goroutine. Observations are dropped, never blocked on, when the buffer is
// full or the observer is closed.
type AsyncNodeLatencyObserver struct {
	next    NodeLatencyObserver
	events  chan nodeLatencyEvent
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

type nodeLatencyEvent struct {
	nodeID   string
	kind     Kind
	duration time.Duration
}

func NewAsyncNodeLatencyObserver(next NodeLatencyObserver, buffer int) *AsyncNodeLatencyObserver {
	if buffer <= 0 {
		buffer = 1
	}

	o := &AsyncNodeLatencyObserver{
		next:   next,
		events: make(chan nodeLatencyEvent, buffer),
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for ev := range o.events {
			if o.next == nil {
				continue
			}
			o.next.ObserveNodeLatency(ev.nodeID, ev.kind, ev.duration)
		}
	}()

	return o
}

func (o *AsyncNodeLatencyObserver) ObserveNodeLatency(nodeID string, kind Kind, duration time.Duration) {
	if o == nil {
		return
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		o.dropped.Add(1)
		return
	}
	select {
	case o.events <- nodeLatencyEvent{nodeID: nodeID, kind: kind, duration: duration}:
	default:
		o.dropped.Add(1)
	}
}

func (o *AsyncNodeLatencyObserver) Dropped() uint64 {
	if o == nil {
		return 0
	}
	return o.dropped.Load()
}

// Close drains buffered observations and stops the worker.
func (o *AsyncNodeLatencyObserver) Close() {
	if o == nil {
		return
	}
	o.once.Do(func() {
		o.mu.Lock()
		o.closed = true
		close(o.events)
		o.mu.Unlock()
		o.wg.Wait()
	})
}

// NodeLatencyObservers fans one observation out to several observers.
type NodeLatencyObservers []NodeLatencyObserver

func (obs NodeLatencyObservers) ObserveNodeLatency(nodeID string, kind Kind, duration time.Duration) {
	for _, o := range obs {
		if o != nil {
			o.ObserveNodeLatency(nodeID, kind, duration)
		}
	}
}
