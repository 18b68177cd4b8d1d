package commands

import (
	"github.com/petrijr/deltaflow/internal/depgraph"
	"github.com/petrijr/deltaflow/pkg/api"
)

type addTabValues struct {
	Slug string
	Name string
}

type addTabUndoValues struct {
	Slug                string
	SelectedTabPosition int
}

// addTab appends a new empty tab after the last live tab and selects
// it. Undo soft-deletes the tab; its slug stays reserved so redo can
// resurrect it.
type addTab struct{}

func (addTab) Kind() api.DeltaKind { return api.KindAddTab }

func (addTab) AmendCreate(wf *api.Workflow, req api.DeltaRequest, resolve depgraph.SchemaResolver) (*CreateArgs, error) {
	r := req.(api.AddTab)
	if r.Slug == "" {
		return nil, api.NewValidationError("tab slug must not be empty")
	}
	if wf.TabBySlug(r.Slug) != nil {
		return nil, api.NewValidationError("tab slug already used")
	}

	// A step elsewhere may already reference this slug; until now that
	// reference resolved to nothing, so its output changes.
	refs := depgraph.AffectedSteps(wf, resolve, map[string]bool{r.Slug: true})

	forward, err := encode(addTabValues{Slug: r.Slug, Name: r.Name})
	if err != nil {
		return nil, err
	}
	backward, err := encode(addTabUndoValues{
		Slug:                r.Slug,
		SelectedTabPosition: wf.SelectedTabPosition,
	})
	if err != nil {
		return nil, err
	}
	return &CreateArgs{
		Forward:      forward,
		Backward:     backward,
		StepDeltaIDs: stepDeltaIDs(wf, refs),
	}, nil
}

func (addTab) Forward(wf *api.Workflow, d *api.Delta) error {
	v, err := decode[addTabValues](d.ValuesForForward)
	if err != nil {
		return err
	}
	position := len(wf.LiveTabs())
	if tab := wf.TabBySlug(v.Slug); tab != nil {
		tab.IsDeleted = false
		tab.Position = position
	} else {
		wf.Tabs = append(wf.Tabs, &api.Tab{
			Slug:     v.Slug,
			Name:     v.Name,
			Position: position,
		})
	}
	wf.SelectedTabPosition = position
	forwardAffected(wf, d)
	return nil
}

func (addTab) Backward(wf *api.Workflow, d *api.Delta) error {
	v, err := decode[addTabUndoValues](d.ValuesForBackward)
	if err != nil {
		return err
	}
	backwardAffected(wf, d)
	if tab := wf.TabBySlug(v.Slug); tab != nil {
		tab.IsDeleted = true
	}
	wf.SelectedTabPosition = v.SelectedTabPosition
	return nil
}

type deleteTabValues struct {
	Slug string
}

type deleteTabUndoValues struct {
	Slug                string
	TabOrder            []string
	SelectedTabPosition int
}

// deleteTab soft-removes a tab and compacts the remaining positions.
// Deleting the only live tab is a no-op rather than an error: the
// client's delete button has nothing sensible to do there.
type deleteTab struct{}

func (deleteTab) Kind() api.DeltaKind { return api.KindDeleteTab }

func (deleteTab) AmendCreate(wf *api.Workflow, req api.DeltaRequest, resolve depgraph.SchemaResolver) (*CreateArgs, error) {
	r := req.(api.DeleteTab)
	tab := wf.TabBySlug(r.Slug)
	if tab == nil || tab.IsDeleted {
		return nil, api.ErrTabNotFound
	}
	oldOrder := liveTabSlugs(wf)
	if len(oldOrder) <= 1 {
		return nil, nil
	}

	refs := depgraph.AffectedSteps(wf, resolve, map[string]bool{r.Slug: true})

	forward, err := encode(deleteTabValues{Slug: r.Slug})
	if err != nil {
		return nil, err
	}
	backward, err := encode(deleteTabUndoValues{
		Slug:                r.Slug,
		TabOrder:            oldOrder,
		SelectedTabPosition: wf.SelectedTabPosition,
	})
	if err != nil {
		return nil, err
	}
	return &CreateArgs{
		Forward:      forward,
		Backward:     backward,
		StepDeltaIDs: stepDeltaIDs(wf, refs),
	}, nil
}

func (deleteTab) Forward(wf *api.Workflow, d *api.Delta) error {
	v, err := decode[deleteTabValues](d.ValuesForForward)
	if err != nil {
		return err
	}
	tab := wf.TabBySlug(v.Slug)
	if tab == nil {
		return api.ErrTabNotFound
	}

	oldOrder := liveTabSlugs(wf)
	var selectedSlug string
	if wf.SelectedTabPosition >= 0 && wf.SelectedTabPosition < len(oldOrder) {
		selectedSlug = oldOrder[wf.SelectedTabPosition]
	}

	tab.IsDeleted = true
	newOrder := liveTabSlugs(wf)
	writeTabOrder(wf, newOrder)
	wf.SelectedTabPosition = positionAfterDelete(newOrder, selectedSlug, wf.SelectedTabPosition)
	forwardAffected(wf, d)
	return nil
}

func (deleteTab) Backward(wf *api.Workflow, d *api.Delta) error {
	v, err := decode[deleteTabUndoValues](d.ValuesForBackward)
	if err != nil {
		return err
	}
	tab := wf.TabBySlug(v.Slug)
	if tab == nil {
		return api.ErrTabNotFound
	}
	tab.IsDeleted = false
	writeTabOrder(wf, v.TabOrder)
	wf.SelectedTabPosition = v.SelectedTabPosition
	backwardAffected(wf, d)
	return nil
}

// positionAfterDelete keeps the same tab selected when it survived, or
// clamps to the nearest live position when the selected tab was the one
// deleted.
func positionAfterDelete(newOrder []string, selectedSlug string, oldPosition int) int {
	for i, slug := range newOrder {
		if slug == selectedSlug {
			return i
		}
	}
	if oldPosition >= len(newOrder) {
		return len(newOrder) - 1
	}
	if oldPosition < 0 {
		return 0
	}
	return oldPosition
}

type setTabNameValues struct {
	Slug string
	Name string
}

// setTabName renames a tab. Slugs are the stable identity, so the
// workflow structure is untouched, but referencing steps see the tab
// name in their inputs and must re-render.
type setTabName struct{}

func (setTabName) Kind() api.DeltaKind { return api.KindSetTabName }

func (setTabName) AmendCreate(wf *api.Workflow, req api.DeltaRequest, resolve depgraph.SchemaResolver) (*CreateArgs, error) {
	r := req.(api.SetTabName)
	tab := wf.TabBySlug(r.Slug)
	if tab == nil || tab.IsDeleted {
		return nil, api.ErrTabNotFound
	}
	if tab.Name == r.Name {
		return nil, nil
	}

	refs := depgraph.AffectedSteps(wf, resolve, map[string]bool{r.Slug: true})

	forward, err := encode(setTabNameValues{Slug: r.Slug, Name: r.Name})
	if err != nil {
		return nil, err
	}
	backward, err := encode(setTabNameValues{Slug: r.Slug, Name: tab.Name})
	if err != nil {
		return nil, err
	}
	return &CreateArgs{Forward: forward, Backward: backward, StepDeltaIDs: stepDeltaIDs(wf, refs)}, nil
}

func (setTabName) Forward(wf *api.Workflow, d *api.Delta) error {
	if err := applyTabName(wf, d.ValuesForForward); err != nil {
		return err
	}
	forwardAffected(wf, d)
	return nil
}

func (setTabName) Backward(wf *api.Workflow, d *api.Delta) error {
	backwardAffected(wf, d)
	return applyTabName(wf, d.ValuesForBackward)
}

func applyTabName(wf *api.Workflow, payload []byte) error {
	v, err := decode[setTabNameValues](payload)
	if err != nil {
		return err
	}
	tab := wf.TabBySlug(v.Slug)
	if tab == nil {
		return api.ErrTabNotFound
	}
	tab.Name = v.Name
	return nil
}
