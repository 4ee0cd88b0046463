package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/hako/durafmt"
)

// reapBatchSize bounds how many completed handlers one wakeup reaps. Anything
// left over is picked up by the next Get without blocking.
const reapBatchSize = 64

// reaper tracks in-flight handlers and releases them once they finish.
// Handlers post themselves to a completion queue; a single goroutine drains
// every completion that is ready each time it wakes, independent of the
// accept loop.
type reaper struct {
	s        *Server
	queue    *queue.Queue
	mu       sync.Mutex
	inFlight map[*handler]struct{}
	reaped   uint64
}

func newReaper(s *Server) *reaper {
	return &reaper{
		s:        s,
		queue:    queue.New(reapBatchSize),
		inFlight: make(map[*handler]struct{}),
	}
}

// track registers a handler before its goroutine starts.
func (r *reaper) track(h *handler) {
	r.mu.Lock()
	r.inFlight[h] = struct{}{}
	r.mu.Unlock()
	r.s.metrics.inFlight.Inc()
}

// done posts a finished handler for reaping. Once the reaper has stopped the
// handler is reaped inline.
func (r *reaper) done(h *handler) {
	if err := r.queue.Put(h); err != nil {
		r.reap(h)
	}
}

// run drains the completion queue until it is disposed.
func (r *reaper) run() {
	for {
		items, err := r.queue.Get(reapBatchSize)
		if err != nil {
			// Disposed.
			return
		}
		for _, item := range items {
			r.reap(item.(*handler))
		}
	}
}

// stop disposes the completion queue and reaps anything still in it.
func (r *reaper) stop() {
	for _, item := range r.queue.Dispose() {
		r.reap(item.(*handler))
	}
}

func (r *reaper) reap(h *handler) {
	r.mu.Lock()
	_, ok := r.inFlight[h]
	delete(r.inFlight, h)
	r.mu.Unlock()
	if !ok {
		return
	}

	atomic.AddUint64(&r.reaped, 1)
	r.s.metrics.inFlight.Dec()
	r.s.metrics.handled.WithLabelValues(h.result).Inc()
	r.s.logger.Debugf("[%s] Connection closed after %s [result=%s]",
		h.conn.ID(), durafmt.Parse(time.Since(h.started)), h.result)
}

func (r *reaper) inFlightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inFlight)
}

func (r *reaper) reapedCount() uint64 {
	return atomic.LoadUint64(&r.reaped)
}
