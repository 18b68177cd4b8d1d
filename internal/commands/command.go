// Package commands implements the closed set of reversible workflow
// mutations. Each command validates a request against the current
// workflow, captures forward and backward payloads, and computes the
// set of steps whose render output the change invalidates. The engine
// appends the resulting delta to the workflow's log and replays
// Forward/Backward to move along it.
package commands

import (
	"fmt"

	"github.com/petrijr/deltaflow/internal/depgraph"
	"github.com/petrijr/deltaflow/internal/persistence"
	"github.com/petrijr/deltaflow/pkg/api"
)

// CreateArgs is what a command computes at creation time: the opaque
// payloads for both transitions, plus the prior LastRelevantDeltaID of
// every step the change invalidates. A nil CreateArgs from AmendCreate
// means the request is a no-op and no delta is written.
type CreateArgs struct {
	Forward      []byte
	Backward     []byte
	StepDeltaIDs []api.StepDeltaID
}

// Command is one reversible mutation kind. Forward and Backward must be
// exact inverses given the payloads AmendCreate produced against the
// same workflow state.
type Command interface {
	Kind() api.DeltaKind
	AmendCreate(wf *api.Workflow, req api.DeltaRequest, resolve depgraph.SchemaResolver) (*CreateArgs, error)
	Forward(wf *api.Workflow, d *api.Delta) error
	Backward(wf *api.Workflow, d *api.Delta) error
}

var registry = map[api.DeltaKind]Command{}

func register(c Command) {
	registry[c.Kind()] = c
}

func init() {
	register(reorderTabs{})
	register(addTab{})
	register(deleteTab{})
	register(setTabName{})
	register(addStep{})
	register(deleteStep{})
	register(reorderSteps{})
	register(setStepParams{})
	register(setStepNotes{})
}

// Lookup returns the command implementing the given kind.
func Lookup(kind api.DeltaKind) (Command, error) {
	c, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown delta kind %q", kind)
	}
	return c, nil
}

// forwardAffected stamps every affected step with the delta's own id,
// marking its cached result stale until a render under the new id.
func forwardAffected(wf *api.Workflow, d *api.Delta) {
	for _, sd := range d.StepDeltaIDs {
		if step := stepAny(wf, sd.Ref); step != nil {
			step.LastRelevantDeltaID = d.ID
		}
	}
}

// backwardAffected restores each affected step's pre-delta id.
func backwardAffected(wf *api.Workflow, d *api.Delta) {
	for _, sd := range d.StepDeltaIDs {
		if step := stepAny(wf, sd.Ref); step != nil {
			step.LastRelevantDeltaID = sd.DeltaID
		}
	}
}

// stepAny finds a step whether or not it (or its tab) is soft-deleted.
// Affected-id bookkeeping must reach steps a sibling transition has
// already hidden.
func stepAny(wf *api.Workflow, ref api.StepRef) *api.Step {
	tab := wf.TabBySlug(ref.TabSlug)
	if tab == nil {
		return nil
	}
	return tab.StepBySlug(ref.StepSlug)
}

// stepDeltaIDs records the current LastRelevantDeltaID of each ref so
// Backward can restore them. Duplicates collapse to one entry.
func stepDeltaIDs(wf *api.Workflow, refs []api.StepRef) []api.StepDeltaID {
	seen := make(map[api.StepRef]bool, len(refs))
	out := make([]api.StepDeltaID, 0, len(refs))
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		step := stepAny(wf, ref)
		if step == nil {
			continue
		}
		out = append(out, api.StepDeltaID{Ref: ref, DeltaID: step.LastRelevantDeltaID})
	}
	return out
}

// stepSuffixRefs returns refs for the tab's live steps at order >= from.
func stepSuffixRefs(tab *api.Tab, from int) []api.StepRef {
	var refs []api.StepRef
	for _, step := range tab.LiveSteps() {
		if step.Order >= from {
			refs = append(refs, api.StepRef{TabSlug: tab.Slug, StepSlug: step.Slug})
		}
	}
	return refs
}

// writeTabOrder assigns positions so the named tabs appear in the given
// order. Slugs not present are skipped.
func writeTabOrder(wf *api.Workflow, slugs []string) {
	for position, slug := range slugs {
		if tab := wf.TabBySlug(slug); tab != nil {
			tab.Position = position
		}
	}
}

// writeStepOrder assigns orders so the named steps appear in the given
// order within the tab.
func writeStepOrder(tab *api.Tab, slugs []string) {
	for order, slug := range slugs {
		if step := tab.StepBySlug(slug); step != nil {
			step.Order = order
		}
	}
}

// liveTabSlugs returns the live tabs' slugs in position order.
func liveTabSlugs(wf *api.Workflow) []string {
	tabs := wf.LiveTabs()
	slugs := make([]string, len(tabs))
	for i, t := range tabs {
		slugs[i] = t.Slug
	}
	return slugs
}

// liveStepSlugs returns the tab's live steps' slugs in order.
func liveStepSlugs(tab *api.Tab) []string {
	steps := tab.LiveSteps()
	slugs := make([]string, len(steps))
	for i, s := range steps {
		slugs[i] = s.Slug
	}
	return slugs
}

func encode(v any) ([]byte, error) {
	return persistence.EncodeValue(v)
}

func decode[T any](data []byte) (T, error) {
	return persistence.DecodeValue[T](data)
}
