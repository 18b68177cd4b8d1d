// Package worker provides the background render worker.
//
// Workers consume render requests from a queue and drive the engine's
// Render entry point. The queue coalesces pending requests per
// workflow, so a burst of edits collapses into one render of the
// newest delta.
//
// A lost render race (the workflow changed while rendering) is not a
// worker failure: the superseding change enqueued its own request, so
// the worker drops the stale one and moves on.
//
// Workers are long-lived components that typically run in dedicated
// goroutines or processes. Multiple workers can safely operate on the
// same queue to scale processing, since the engine serializes access
// to each step's cache entry.
//
// Most applications construct workers via helper functions in the
// deltaflow package, which wire engines and queues together with
// sensible defaults.
package worker
