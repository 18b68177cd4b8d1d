// Package depgraph computes tab-level dependencies inside a workflow.
//
// A tab depends on another tab when one of its live steps references it
// through a tab or multitab parameter. The graph drives two things:
// invalidation (a change to a tab's output makes referencing steps in
// other tabs stale) and scheduling (a tab can only render once every
// tab it reads from is finished).
package depgraph

import (
	"sort"

	"github.com/petrijr/deltaflow/pkg/api"
)

// SchemaResolver looks up the parameter schema for a module version.
// Steps whose module cannot be resolved contribute no edges; they will
// fail at render time instead.
type SchemaResolver func(moduleID, moduleVersion string) (api.ParamSchema, bool)

// StepInputs returns the tab slugs the step's params reference, with
// duplicates removed. Deleted steps never reach here.
func StepInputs(step *api.Step, resolve SchemaResolver) []string {
	schema, ok := resolve(step.ModuleID, step.ModuleVersion)
	if !ok {
		return nil
	}
	return schema.TabSlugRefs(step.Params)
}

// Graph holds the tab dependency edges of one workflow snapshot.
type Graph struct {
	inputs     map[string]map[string]bool
	dependents map[string]map[string]bool
}

// Build scans every live step of every live tab and records which tabs
// it references. Self references and references to tabs that do not
// exist are kept: the scheduler treats both as never-ready.
func Build(wf *api.Workflow, resolve SchemaResolver) *Graph {
	g := &Graph{
		inputs:     make(map[string]map[string]bool),
		dependents: make(map[string]map[string]bool),
	}
	for _, tab := range wf.LiveTabs() {
		g.inputs[tab.Slug] = make(map[string]bool)
		for _, step := range tab.LiveSteps() {
			for _, ref := range StepInputs(step, resolve) {
				g.inputs[tab.Slug][ref] = true
				if g.dependents[ref] == nil {
					g.dependents[ref] = make(map[string]bool)
				}
				g.dependents[ref][tab.Slug] = true
			}
		}
	}
	return g
}

// Inputs returns the tab slugs the given tab reads from, sorted.
func (g *Graph) Inputs(tabSlug string) []string {
	return sortedKeys(g.inputs[tabSlug])
}

// DependsOnAny reports whether the tab reads from any tab in the set.
func (g *Graph) DependsOnAny(tabSlug string, set map[string]bool) bool {
	for ref := range g.inputs[tabSlug] {
		if set[ref] {
			return true
		}
	}
	return false
}

// AffectedSteps returns a ref for every live step whose params
// reference a tab in the changed set. When a step in tab T is affected,
// T's own output may change too, so T joins the changed set and the
// scan repeats until no new step is found. The changed set is extended
// in place.
func AffectedSteps(wf *api.Workflow, resolve SchemaResolver, changed map[string]bool) []api.StepRef {
	var affected []api.StepRef
	collected := make(map[api.StepRef]bool)
	for {
		grew := false
		for _, tab := range wf.LiveTabs() {
			for _, step := range tab.LiveSteps() {
				ref := api.StepRef{TabSlug: tab.Slug, StepSlug: step.Slug}
				if collected[ref] {
					continue
				}
				if !refsAny(step, resolve, changed) {
					continue
				}
				collected[ref] = true
				affected = append(affected, ref)
				if !changed[tab.Slug] {
					changed[tab.Slug] = true
					grew = true
				}
			}
		}
		if !grew {
			return affected
		}
	}
}

func refsAny(step *api.Step, resolve SchemaResolver, set map[string]bool) bool {
	for _, ref := range StepInputs(step, resolve) {
		if set[ref] {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
