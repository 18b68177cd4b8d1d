package deltaflow

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/petrijr/deltaflow/internal/taskqueue"
	"github.com/petrijr/deltaflow/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory render queue,
// and a Worker into a simple "local runner" for development and
// debugging.
//
// Typical usage:
//
//	runner := deltaflow.NewLocalRunner()
//	wf, _ := deltaflow.NewWorkflow("Report").
//	    Tab("data", "Data").
//	    Step("load", "static", "1.0", nil).
//	    Create(ctx, runner.Engine)
//
//	_ = runner.StartWorkers(ctx, 2)
//	_, _ = runner.ApplyDelta(ctx, wf.ID, deltaflow.SetStepParams{...})
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory engine used by this runner.
	Engine Engine

	// Queue is the in-memory render queue used by the Worker.
	Queue taskqueue.Queue

	// Worker renders requests from Queue using Engine.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory
// engine and queue.
//
// This is intended for local development, tests, and simple
// single-process deployments.
func NewLocalRunner() *LocalRunner {
	eng := NewInMemoryEngine()
	q := taskqueue.NewInMemoryQueue()
	w := worker.New(eng, q, nil)

	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: w,
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously
// call Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an
// error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("deltaflow: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// Log and keep going so a single bad request doesn't
					// kill the worker loop.
					log.Printf("deltaflow: local runner worker error: %v", err)
					continue
				}
				if !processed {
					continue
				}
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// ApplyDelta applies a delta request and, when it produced a delta,
// enqueues a render of the new state. Returns the delta, or nil for a
// no-op.
func (r *LocalRunner) ApplyDelta(ctx context.Context, workflowID string, req DeltaRequest) (*Delta, error) {
	d, err := r.Engine.ApplyDelta(ctx, workflowID, req)
	if err != nil || d == nil {
		return d, err
	}
	if err := r.Worker.EnqueueRender(ctx, workflowID, d.ID); err != nil {
		return d, err
	}
	return d, nil
}

// RenderAsync enqueues a render of workflowID under deltaID.
func (r *LocalRunner) RenderAsync(ctx context.Context, workflowID string, deltaID int64) error {
	return r.Worker.EnqueueRender(ctx, workflowID, deltaID)
}
