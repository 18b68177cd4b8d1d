package persistence

import (
	"context"
	"errors"

	"github.com/petrijr/deltaflow/pkg/api"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowExists is returned when creating a workflow whose ID is
	// already taken.
	ErrWorkflowExists = errors.New("workflow already exists")

	// ErrStepNotFound is returned by UpdateStep when the addressed step
	// does not exist or has been deleted.
	ErrStepNotFound = errors.New("step not found")
)

// WorkflowStore persists workflow aggregates and their delta logs.
//
// The store provides the transaction boundary the delta log requires:
// within Mutate, "mutate structure" + "append delta" + "bump
// LastDeltaID" happen together or not at all.
type WorkflowStore interface {
	// CreateWorkflow persists a new aggregate.
	CreateWorkflow(ctx context.Context, wf *api.Workflow) error

	// GetWorkflow returns a deep-copied, point-in-time snapshot.
	GetWorkflow(ctx context.Context, id string) (*api.Workflow, error)

	// Mutate loads the aggregate, runs fn on a working copy, and
	// commits the copy atomically if fn succeeds. fn may mutate
	// structure, append to wf.Deltas, and move wf.LastDeltaID /
	// wf.AppliedDeltas; an error from fn rolls everything back.
	Mutate(ctx context.Context, id string, fn func(wf *api.Workflow) error) error

	// UpdateStep atomically updates a single live step. It is the short
	// critical section renders use for check-freshness-then-write; fn
	// runs with the current stored step and may modify it in place.
	UpdateStep(ctx context.Context, workflowID string, ref api.StepRef, fn func(step *api.Step) error) error
}
