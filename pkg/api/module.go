package api

import "context"

// ModuleSpec describes a module implementation: a stable identity plus
// the parameter schema its steps are configured with.
type ModuleSpec struct {
	ID      string
	Version string
	Schema  ParamSchema
}

// TabOutput is the finished output of an upstream tab, handed to a step
// whose params reference that tab.
type TabOutput struct {
	TabSlug string
	TabName string
	Status  Status
	Table   Table
}

// RenderRequest carries everything a module needs for one render call.
type RenderRequest struct {
	WorkflowID string
	TabSlug    string
	StepSlug   string

	Params Params

	// Input is the previous step's output (or an empty table for the
	// first step of a tab).
	Input Table

	// TabInputs maps each tab slug referenced by the step's tab/multitab
	// params to that tab's finished output. A referenced slug that names
	// no tab in the workflow has no entry; modules report that as a
	// render error.
	TabInputs map[string]TabOutput
}

// ModuleRunner executes one module kind. Implementations are arbitrary
// user code of arbitrary duration; the engine holds no locks across a
// Render call and never retries a failure.
//
// A module-level failure is reported inside the RenderResult (Errors
// set, empty table). The error return is reserved for infrastructure
// failures and context cancellation.
type ModuleRunner interface {
	Render(ctx context.Context, req RenderRequest) (RenderResult, error)
}

// RunnerFunc adapts a function to the ModuleRunner interface.
type RunnerFunc func(ctx context.Context, req RenderRequest) (RenderResult, error)

// Render implements ModuleRunner.
func (f RunnerFunc) Render(ctx context.Context, req RenderRequest) (RenderResult, error) {
	return f(ctx, req)
}

// ErrorResult is a convenience for modules reporting a failure.
func ErrorResult(msg string) RenderResult {
	return RenderResult{Errors: []RenderError{{Message: msg}}}
}
