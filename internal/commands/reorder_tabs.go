package commands

import (
	"sort"

	"github.com/petrijr/deltaflow/internal/depgraph"
	"github.com/petrijr/deltaflow/pkg/api"
)

type tabOrderValues struct {
	TabSlugs []string
}

// reorderTabs overwrites every live tab's position.
type reorderTabs struct{}

func (reorderTabs) Kind() api.DeltaKind { return api.KindReorderTabs }

func (reorderTabs) AmendCreate(wf *api.Workflow, req api.DeltaRequest, resolve depgraph.SchemaResolver) (*CreateArgs, error) {
	r := req.(api.ReorderTabs)

	oldOrder := liveTabSlugs(wf)
	if !samePermutation(oldOrder, r.TabSlugs) {
		return nil, api.NewValidationError("wrong tab slugs")
	}
	if equalSlices(oldOrder, r.TabSlugs) {
		return nil, nil
	}

	// Only slugs inside the minimal contiguous changed region can have
	// moved; steps reading solely from unmoved tabs keep their output.
	moved := movedSlugs(oldOrder, r.TabSlugs)
	refs := depgraph.AffectedSteps(wf, resolve, moved)

	forward, err := encode(tabOrderValues{TabSlugs: r.TabSlugs})
	if err != nil {
		return nil, err
	}
	backward, err := encode(tabOrderValues{TabSlugs: oldOrder})
	if err != nil {
		return nil, err
	}
	return &CreateArgs{
		Forward:      forward,
		Backward:     backward,
		StepDeltaIDs: stepDeltaIDs(wf, refs),
	}, nil
}

func (reorderTabs) Forward(wf *api.Workflow, d *api.Delta) error {
	newOrder, err := decode[tabOrderValues](d.ValuesForForward)
	if err != nil {
		return err
	}
	oldOrder, err := decode[tabOrderValues](d.ValuesForBackward)
	if err != nil {
		return err
	}
	writeTabOrder(wf, newOrder.TabSlugs)
	updateSelectedPosition(wf, oldOrder.TabSlugs, newOrder.TabSlugs)
	forwardAffected(wf, d)
	return nil
}

func (reorderTabs) Backward(wf *api.Workflow, d *api.Delta) error {
	newOrder, err := decode[tabOrderValues](d.ValuesForForward)
	if err != nil {
		return err
	}
	oldOrder, err := decode[tabOrderValues](d.ValuesForBackward)
	if err != nil {
		return err
	}
	backwardAffected(wf, d)
	writeTabOrder(wf, oldOrder.TabSlugs)
	updateSelectedPosition(wf, newOrder.TabSlugs, oldOrder.TabSlugs)
	return nil
}

// updateSelectedPosition keeps the selected tab pointing at the same
// tab across a reorder. If position 1 was selected and [A,B,C] became
// [B,C,A], the new selected position is 0: B stayed selected.
func updateSelectedPosition(wf *api.Workflow, fromOrder, toOrder []string) {
	old := wf.SelectedTabPosition
	if old < 0 || old >= len(fromOrder) {
		return
	}
	slug := fromOrder[old]
	for i, s := range toOrder {
		if s == slug {
			if i != old {
				wf.SelectedTabPosition = i
			}
			return
		}
	}
}

// movedSlugs returns the slugs inside the minimal contiguous index
// range where the two orderings differ.
func movedSlugs(oldOrder, newOrder []string) map[string]bool {
	first, last := -1, -1
	for i := range oldOrder {
		if oldOrder[i] != newOrder[i] {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	moved := make(map[string]bool)
	if first < 0 {
		return moved
	}
	for _, slug := range oldOrder[first : last+1] {
		moved[slug] = true
	}
	return moved
}

func samePermutation(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	return equalSlices(as, bs)
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
