package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/petrijr/deltaflow/internal/taskqueue"
	"github.com/petrijr/deltaflow/pkg/api"
)

// Worker pulls render requests from a Queue and executes them using an
// Engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
	logger *slog.Logger
}

// New creates a new Worker. A nil logger falls back to slog.Default().
func New(engine api.Engine, queue taskqueue.Queue, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		engine: engine,
		queue:  queue,
		logger: logger,
	}
}

// EnqueueRender queues a render of workflowID under deltaID. It does
// NOT render itself; that is done by ProcessOne.
func (w *Worker) EnqueueRender(ctx context.Context, workflowID string, deltaID int64) error {
	return w.queue.Enqueue(ctx, taskqueue.RenderRequest{
		WorkflowID: workflowID,
		DeltaID:    deltaID,
		EnqueuedAt: time.Now(),
	})
}

// ProcessOne pulls a single request from the queue and renders it.
// Returns (processed, error):
//   - processed == false: no request was obtained (context cancelled).
//   - processed == true: a request was handled; err reports an
//     infrastructure failure. A superseded render attempt counts as
//     handled and returns nil: the newer change requeued the workflow.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	req, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if req == nil {
		return false, nil
	}

	err = w.engine.Render(ctx, req.WorkflowID, req.DeltaID)
	if errors.Is(err, api.ErrUnneededExecution) {
		w.logger.Info("render superseded; dropping request",
			slog.String("workflow_id", req.WorkflowID),
			slog.Int64("delta_id", req.DeltaID))
		return true, nil
	}
	return true, err
}

// Run processes requests until ctx is cancelled. Render failures are
// logged and do not stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if !processed {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err != nil {
			w.logger.Error("render failed", slog.Any("error", err))
		}
	}
}
