package taskqueue

import (
	"context"
	"sync"
	"time"
)

// InMemoryQueue is a Queue backed by a map keyed on workflow id, so
// coalescing is structural. It is safe for concurrent use.
type InMemoryQueue struct {
	mu      sync.Mutex
	pending map[string]*RenderRequest
	order   []string

	// notify wakes one blocked Dequeue after an Enqueue.
	notify chan struct{}
}

// NewInMemoryQueue creates an empty queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		pending: make(map[string]*RenderRequest),
		notify:  make(chan struct{}, 1),
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, req RenderRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	if existing, ok := q.pending[req.WorkflowID]; ok {
		// Coalesce: keep the queue position, advance the delta.
		if req.DeltaID > existing.DeltaID {
			existing.DeltaID = req.DeltaID
		}
	} else {
		r := req
		q.pending[req.WorkflowID] = &r
		q.order = append(q.order, req.WorkflowID)
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*RenderRequest, error) {
	for {
		q.mu.Lock()
		if len(q.order) > 0 {
			id := q.order[0]
			q.order = q.order[1:]
			req := q.pending[id]
			delete(q.pending, id)
			q.mu.Unlock()
			return req, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
