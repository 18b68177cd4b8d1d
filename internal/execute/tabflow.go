package execute

import (
	"github.com/petrijr/deltaflow/internal/depgraph"
	"github.com/petrijr/deltaflow/internal/rendercache"
	"github.com/petrijr/deltaflow/pkg/api"
)

// ExecuteStep is one step's snapshot inside a TabFlow: the step state,
// its resolved schema, and the params captured at planning time.
type ExecuteStep struct {
	Step   *api.Step
	Schema api.ParamSchema
	Params api.Params
}

// TabFlow is the render plan for one tab: its live steps in order,
// snapshotted at planning time. Staleness answers reflect the moment of
// construction, not the live store; concurrent mutations surface later
// as an UnneededExecution abort.
type TabFlow struct {
	TabSlug string
	TabName string
	Steps   []ExecuteStep
}

// Plan snapshots a tab's live steps.
func Plan(tab *api.Tab, resolve depgraph.SchemaResolver) TabFlow {
	flow := TabFlow{TabSlug: tab.Slug, TabName: tab.Name}
	for _, step := range tab.LiveSteps() {
		schema, _ := resolve(step.ModuleID, step.ModuleVersion)
		flow.Steps = append(flow.Steps, ExecuteStep{
			Step:   step.Clone(),
			Schema: schema,
			Params: step.Params.Clone(),
		})
	}
	return flow
}

// FirstStaleIndex is the position of the first step without a fresh
// cached result, or -1 if the whole flow is fresh. Staleness is
// monotonic left to right: everything after the first stale step is
// treated as stale too, because its input changed.
func (f TabFlow) FirstStaleIndex() int {
	for i, es := range f.Steps {
		if rendercache.Fresh(es.Step) == nil {
			return i
		}
	}
	return -1
}

// StaleSteps is the suffix starting at FirstStaleIndex; empty if the
// flow is fresh.
func (f TabFlow) StaleSteps() []ExecuteStep {
	i := f.FirstStaleIndex()
	if i < 0 {
		return nil
	}
	return f.Steps[i:]
}

// LastFreshStep is the step just before the stale suffix; nil when the
// whole flow is stale. Its cached output seeds re-execution.
func (f TabFlow) LastFreshStep() *ExecuteStep {
	i := f.FirstStaleIndex()
	if i < 0 {
		i = len(f.Steps)
	}
	if i == 0 {
		return nil
	}
	return &f.Steps[i-1]
}

// InputTabSlugs is the set of tab slugs any step in this flow reads
// through tab or multitab params.
func (f TabFlow) InputTabSlugs() map[string]bool {
	slugs := make(map[string]bool)
	for _, es := range f.Steps {
		if es.Schema == nil {
			continue
		}
		for _, slug := range es.Schema.TabSlugRefs(es.Params) {
			slugs[slug] = true
		}
	}
	return slugs
}
