package deltaflow

import (
	"context"
	"fmt"

	"github.com/petrijr/deltaflow/pkg/api"
)

// WorkflowBuilder provides a fluent API for assembling the initial
// shape of a workflow:
//
//	wf := deltaflow.NewWorkflow("Report").
//	    Tab("data", "Data").
//	    Step("load", "static", "1.0", nil).
//	    Tab("clean", "Clean").
//	    Step("pull", "loadtab", "1.0", deltaflow.Params{"tab": "data"}).
//	    Build()
//
//	wf, err := engine.CreateWorkflow(ctx, wf)
//
// Steps attach to the most recently added tab. Later edits go through
// Engine.ApplyDelta so they land in the delta log; the builder only
// shapes the pre-history state that CreateWorkflow snapshots.
type WorkflowBuilder struct {
	wf *api.Workflow
}

// NewWorkflow creates a builder for a workflow with the given display
// name. The workflow ID is assigned by CreateWorkflow unless set with
// ID.
func NewWorkflow(name string) *WorkflowBuilder {
	return &WorkflowBuilder{wf: &api.Workflow{Name: name}}
}

// ID sets an explicit workflow ID.
func (b *WorkflowBuilder) ID(id string) *WorkflowBuilder {
	b.wf.ID = id
	return b
}

// Tab appends a tab. Subsequent Step calls attach to it.
func (b *WorkflowBuilder) Tab(slug, name string) *WorkflowBuilder {
	if slug == "" {
		panic("deltaflow: tab slug must not be empty")
	}
	for _, t := range b.wf.Tabs {
		if t.Slug == slug {
			panic(fmt.Sprintf("deltaflow: duplicate tab slug %q", slug))
		}
	}
	b.wf.Tabs = append(b.wf.Tabs, &api.Tab{
		Slug:     slug,
		Name:     name,
		Position: len(b.wf.Tabs),
	})
	return b
}

// Step appends a step to the most recently added tab.
func (b *WorkflowBuilder) Step(slug, moduleID, moduleVersion string, params Params) *WorkflowBuilder {
	if len(b.wf.Tabs) == 0 {
		panic("deltaflow: Step called before any Tab")
	}
	if slug == "" {
		panic("deltaflow: step slug must not be empty")
	}
	for _, t := range b.wf.Tabs {
		if t.StepBySlug(slug) != nil {
			panic(fmt.Sprintf("deltaflow: duplicate step slug %q", slug))
		}
	}
	tab := b.wf.Tabs[len(b.wf.Tabs)-1]
	tab.Steps = append(tab.Steps, &api.Step{
		Slug:          slug,
		Order:         len(tab.Steps),
		ModuleID:      moduleID,
		ModuleVersion: moduleVersion,
		Params:        params.Clone(),
	})
	return b
}

// Notes sets the notes of the most recently added step.
func (b *WorkflowBuilder) Notes(notes string) *WorkflowBuilder {
	s := b.lastStep()
	s.Notes = notes
	return b
}

// Notify marks the most recently added step for output-delta
// notifications.
func (b *WorkflowBuilder) Notify() *WorkflowBuilder {
	s := b.lastStep()
	s.Notifications = true
	return b
}

// SelectTab marks the tab with the given slug as selected.
func (b *WorkflowBuilder) SelectTab(slug string) *WorkflowBuilder {
	for i, t := range b.wf.Tabs {
		if t.Slug == slug {
			b.wf.SelectedTabPosition = i
			return b
		}
	}
	panic(fmt.Sprintf("deltaflow: SelectTab: no tab %q", slug))
}

// Build returns the assembled workflow. The builder must not be reused
// after Build.
func (b *WorkflowBuilder) Build() *Workflow {
	if len(b.wf.Tabs) == 0 {
		panic("deltaflow: workflow needs at least one tab")
	}
	return b.wf
}

// Create builds the workflow and persists it on eng.
func (b *WorkflowBuilder) Create(ctx context.Context, eng Engine) (*Workflow, error) {
	return eng.CreateWorkflow(ctx, b.Build())
}

func (b *WorkflowBuilder) lastStep() *api.Step {
	if len(b.wf.Tabs) == 0 {
		panic("deltaflow: no step added yet")
	}
	tab := b.wf.Tabs[len(b.wf.Tabs)-1]
	if len(tab.Steps) == 0 {
		panic("deltaflow: no step added yet")
	}
	return tab.Steps[len(tab.Steps)-1]
}
