package api

import "context"

// Engine is the high-level API: delta log operations plus the render
// entry point.
type Engine interface {
	// RegisterModule registers a module implementation by (ID, Version).
	RegisterModule(spec ModuleSpec, runner ModuleRunner) error

	// CreateWorkflow persists a new workflow aggregate with its initial
	// delta. If wf.ID is empty a fresh ID is assigned. The workflow must
	// contain at least one tab.
	CreateWorkflow(ctx context.Context, wf *Workflow) (*Workflow, error)

	// GetWorkflow returns a point-in-time snapshot of a workflow.
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)

	// ApplyDelta validates req against current state and, if it is not
	// a no-op, applies the structural change and appends a delta to the
	// log atomically. Returns (nil, nil) for a no-op. A delta created
	// after undos truncates the orphaned redo branch.
	ApplyDelta(ctx context.Context, workflowID string, req DeltaRequest) (*Delta, error)

	// Undo reverts the most recently applied delta. Returns (nil, nil)
	// if only the initial delta remains.
	Undo(ctx context.Context, workflowID string) (*Delta, error)

	// Redo re-applies the next previously-undone delta. Returns
	// (nil, nil) if there is nothing to redo.
	Redo(ctx context.Context, workflowID string) (*Delta, error)

	// Render brings every step of the workflow to a fresh cached
	// result. expectedDeltaID must equal the workflow's LastDeltaID;
	// any mismatch, before or during the render, aborts with
	// ErrUnneededExecution.
	Render(ctx context.Context, workflowID string, expectedDeltaID int64) error
}
