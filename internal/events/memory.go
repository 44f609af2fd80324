package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the MemoryQueue channel capacity
const DefaultBufferSize = 1024

// MemoryQueue is an in-process queue backed by a buffered channel. Events
// still buffered when the process exits are lost; a bulk regenerate repairs
// any embeddings they would have refreshed.
type MemoryQueue struct {
	mu      sync.RWMutex
	ch      chan Event
	closed  bool
	pending atomic.Int64
}

// NewMemoryQueue creates a queue holding up to size undelivered events
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &MemoryQueue{ch: make(chan Event, size)}
}

// Publish blocks while the buffer is full
func (q *MemoryQueue) Publish(ctx context.Context, ev Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- ev:
		q.pending.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Events() <-chan Event {
	return q.ch
}

func (q *MemoryQueue) Ack(ctx context.Context, ev Event) error {
	if q.pending.Add(-1) < 0 {
		q.pending.Store(0)
	}
	return nil
}

func (q *MemoryQueue) Pending() (int, error) {
	return int(q.pending.Load()), nil
}

// Close stops publishing and closes the delivery channel. Buffered events
// remain readable until drained.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ch)
	return nil
}
