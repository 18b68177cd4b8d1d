// Package taskqueue queues render requests for workers. A workflow
// holds at most one pending request: enqueueing a newer delta for the
// same workflow coalesces with the pending one, since rendering the
// newest delta freshens everything older requests asked for.
package taskqueue

import (
	"context"
	"time"
)

// RenderRequest asks a worker to bring one workflow fresh under one
// delta.
type RenderRequest struct {
	WorkflowID string
	DeltaID    int64

	EnqueuedAt time.Time
}

// Queue is the render-request queue interface.
type Queue interface {
	// Enqueue adds a request. If a request for the same workflow is
	// already pending, the two coalesce and the higher delta id wins.
	Enqueue(ctx context.Context, req RenderRequest) error

	// Dequeue removes and returns the oldest pending request, blocking
	// until one is available or the context is cancelled.
	Dequeue(ctx context.Context) (*RenderRequest, error)

	// Len returns the number of pending requests.
	Len() int
}
