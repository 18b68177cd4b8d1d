package commands

import (
	"reflect"

	"github.com/petrijr/deltaflow/internal/depgraph"
	"github.com/petrijr/deltaflow/pkg/api"
)

type addStepValues struct {
	TabSlug       string
	StepSlug      string
	Index         int
	ModuleID      string
	ModuleVersion string
	Params        api.Params
}

type stepRefValues struct {
	TabSlug  string
	StepSlug string
}

// addStep inserts a new step into a tab. Everything after the insertion
// point shifts down and goes stale: each of those steps now reads a
// different input.
type addStep struct{}

func (addStep) Kind() api.DeltaKind { return api.KindAddStep }

func (addStep) AmendCreate(wf *api.Workflow, req api.DeltaRequest, resolve depgraph.SchemaResolver) (*CreateArgs, error) {
	r := req.(api.AddStep)
	tab := wf.TabBySlug(r.TabSlug)
	if tab == nil || tab.IsDeleted {
		return nil, api.ErrTabNotFound
	}
	if r.StepSlug == "" {
		return nil, api.NewValidationError("step slug must not be empty")
	}
	for _, t := range wf.Tabs {
		if t.StepBySlug(r.StepSlug) != nil {
			return nil, api.NewValidationError("step slug already used")
		}
	}

	index := r.Index
	if n := len(tab.LiveSteps()); index < 0 || index > n {
		index = n
	}

	refs := stepSuffixRefs(tab, index)
	refs = append(refs, depgraph.AffectedSteps(wf, resolve, map[string]bool{r.TabSlug: true})...)

	forward, err := encode(addStepValues{
		TabSlug:       r.TabSlug,
		StepSlug:      r.StepSlug,
		Index:         index,
		ModuleID:      r.ModuleID,
		ModuleVersion: r.ModuleVersion,
		Params:        r.Params.Clone(),
	})
	if err != nil {
		return nil, err
	}
	backward, err := encode(stepRefValues{TabSlug: r.TabSlug, StepSlug: r.StepSlug})
	if err != nil {
		return nil, err
	}
	return &CreateArgs{
		Forward:      forward,
		Backward:     backward,
		StepDeltaIDs: stepDeltaIDs(wf, refs),
	}, nil
}

func (addStep) Forward(wf *api.Workflow, d *api.Delta) error {
	v, err := decode[addStepValues](d.ValuesForForward)
	if err != nil {
		return err
	}
	tab := wf.TabBySlug(v.TabSlug)
	if tab == nil {
		return api.ErrTabNotFound
	}

	step := tab.StepBySlug(v.StepSlug)
	if step == nil {
		step = &api.Step{
			Slug:          v.StepSlug,
			ModuleID:      v.ModuleID,
			ModuleVersion: v.ModuleVersion,
			Params:        v.Params.Clone(),
		}
		tab.Steps = append(tab.Steps, step)
	} else {
		step.IsDeleted = false
	}
	step.LastRelevantDeltaID = d.ID

	order := make([]string, 0, len(tab.Steps))
	for _, s := range tab.LiveSteps() {
		if s.Slug != v.StepSlug {
			order = append(order, s.Slug)
		}
	}
	index := v.Index
	if index > len(order) {
		index = len(order)
	}
	order = append(order[:index], append([]string{v.StepSlug}, order[index:]...)...)
	writeStepOrder(tab, order)

	forwardAffected(wf, d)
	return nil
}

func (addStep) Backward(wf *api.Workflow, d *api.Delta) error {
	v, err := decode[stepRefValues](d.ValuesForBackward)
	if err != nil {
		return err
	}
	tab := wf.TabBySlug(v.TabSlug)
	if tab == nil {
		return api.ErrTabNotFound
	}
	if step := tab.StepBySlug(v.StepSlug); step != nil {
		step.IsDeleted = true
	}
	writeStepOrder(tab, liveStepSlugs(tab))
	backwardAffected(wf, d)
	return nil
}

type deleteStepUndoValues struct {
	TabSlug   string
	StepOrder []string
}

// deleteStep soft-removes a step. Later steps in the tab now read a
// different input, so they go stale along with every step in other tabs
// that reads this tab.
type deleteStep struct{}

func (deleteStep) Kind() api.DeltaKind { return api.KindDeleteStep }

func (deleteStep) AmendCreate(wf *api.Workflow, req api.DeltaRequest, resolve depgraph.SchemaResolver) (*CreateArgs, error) {
	r := req.(api.DeleteStep)
	step := wf.FindStep(r.TabSlug, r.StepSlug)
	if step == nil {
		return nil, api.ErrStepNotFound
	}
	tab := wf.TabBySlug(r.TabSlug)

	refs := stepSuffixRefs(tab, step.Order)
	refs = append(refs, depgraph.AffectedSteps(wf, resolve, map[string]bool{r.TabSlug: true})...)

	forward, err := encode(stepRefValues{TabSlug: r.TabSlug, StepSlug: r.StepSlug})
	if err != nil {
		return nil, err
	}
	backward, err := encode(deleteStepUndoValues{
		TabSlug:   r.TabSlug,
		StepOrder: liveStepSlugs(tab),
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

func (deleteStep) Forward(wf *api.Workflow, d *api.Delta) error {
	v, err := decode[stepRefValues](d.ValuesForForward)
	if err != nil {
		return err
	}
	tab := wf.TabBySlug(v.TabSlug)
	if tab == nil {
		return api.ErrTabNotFound
	}
	step := tab.StepBySlug(v.StepSlug)
	if step == nil {
		return api.ErrStepNotFound
	}
	step.IsDeleted = true
	writeStepOrder(tab, liveStepSlugs(tab))
	forwardAffected(wf, d)
	return nil
}

func (deleteStep) Backward(wf *api.Workflow, d *api.Delta) error {
	v, err := decode[deleteStepUndoValues](d.ValuesForBackward)
	if err != nil {
		return err
	}
	tab := wf.TabBySlug(v.TabSlug)
	if tab == nil {
		return api.ErrTabNotFound
	}
	for _, slug := range v.StepOrder {
		if step := tab.StepBySlug(slug); step != nil {
			step.IsDeleted = false
		}
	}
	writeStepOrder(tab, v.StepOrder)
	backwardAffected(wf, d)
	return nil
}

type stepOrderValues struct {
	TabSlug   string
	StepSlugs []string
}

// reorderSteps overwrites step order within one tab. Steps before the
// first changed position keep their exact inputs, so only the suffix
// from that position goes stale.
type reorderSteps struct{}

func (reorderSteps) Kind() api.DeltaKind { return api.KindReorderSteps }

func (reorderSteps) AmendCreate(wf *api.Workflow, req api.DeltaRequest, resolve depgraph.SchemaResolver) (*CreateArgs, error) {
	r := req.(api.ReorderSteps)
	tab := wf.TabBySlug(r.TabSlug)
	if tab == nil || tab.IsDeleted {
		return nil, api.ErrTabNotFound
	}
	oldOrder := liveStepSlugs(tab)
	if !samePermutation(oldOrder, r.StepSlugs) {
		return nil, api.NewValidationError("wrong step slugs")
	}
	if equalSlices(oldOrder, r.StepSlugs) {
		return nil, nil
	}

	firstDiff := 0
	for oldOrder[firstDiff] == r.StepSlugs[firstDiff] {
		firstDiff++
	}
	refs := stepSuffixRefs(tab, firstDiff)
	refs = append(refs, depgraph.AffectedSteps(wf, resolve, map[string]bool{r.TabSlug: true})...)

	forward, err := encode(stepOrderValues{TabSlug: r.TabSlug, StepSlugs: r.StepSlugs})
	if err != nil {
		return nil, err
	}
	backward, err := encode(stepOrderValues{TabSlug: r.TabSlug, StepSlugs: oldOrder})
	if err != nil {
		return nil, err
	}
	return &CreateArgs{
		Forward:      forward,
		Backward:     backward,
		StepDeltaIDs: stepDeltaIDs(wf, refs),
	}, nil
}

func (reorderSteps) Forward(wf *api.Workflow, d *api.Delta) error {
	if err := applyStepOrder(wf, d.ValuesForForward); err != nil {
		return err
	}
	forwardAffected(wf, d)
	return nil
}

func (reorderSteps) Backward(wf *api.Workflow, d *api.Delta) error {
	backwardAffected(wf, d)
	return applyStepOrder(wf, d.ValuesForBackward)
}

func applyStepOrder(wf *api.Workflow, payload []byte) error {
	v, err := decode[stepOrderValues](payload)
	if err != nil {
		return err
	}
	tab := wf.TabBySlug(v.TabSlug)
	if tab == nil {
		return api.ErrTabNotFound
	}
	writeStepOrder(tab, v.StepSlugs)
	return nil
}

type setStepParamsValues struct {
	TabSlug  string
	StepSlug string
	Params   api.Params
}

// setStepParams replaces a step's parameter set after validating it
// against the module's schema.
type setStepParams struct{}

func (setStepParams) Kind() api.DeltaKind { return api.KindSetStepParams }

func (setStepParams) AmendCreate(wf *api.Workflow, req api.DeltaRequest, resolve depgraph.SchemaResolver) (*CreateArgs, error) {
	r := req.(api.SetStepParams)
	step := wf.FindStep(r.TabSlug, r.StepSlug)
	if step == nil {
		return nil, api.ErrStepNotFound
	}
	if schema, ok := resolve(step.ModuleID, step.ModuleVersion); ok {
		if err := schema.Validate(r.Params); err != nil {
			return nil, api.NewValidationError(err.Error())
		}
	}
	if reflect.DeepEqual(step.Params, r.Params) {
		return nil, nil
	}

	tab := wf.TabBySlug(r.TabSlug)
	refs := stepSuffixRefs(tab, step.Order)
	refs = append(refs, depgraph.AffectedSteps(wf, resolve, map[string]bool{r.TabSlug: true})...)

	forward, err := encode(setStepParamsValues{
		TabSlug:  r.TabSlug,
		StepSlug: r.StepSlug,
		Params:   r.Params.Clone(),
	})
	if err != nil {
		return nil, err
	}
	backward, err := encode(setStepParamsValues{
		TabSlug:  r.TabSlug,
		StepSlug: r.StepSlug,
		Params:   step.Params.Clone(),
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

func (setStepParams) Forward(wf *api.Workflow, d *api.Delta) error {
	if err := applyStepParams(wf, d.ValuesForForward); err != nil {
		return err
	}
	forwardAffected(wf, d)
	return nil
}

func (setStepParams) Backward(wf *api.Workflow, d *api.Delta) error {
	backwardAffected(wf, d)
	return applyStepParams(wf, d.ValuesForBackward)
}

func applyStepParams(wf *api.Workflow, payload []byte) error {
	v, err := decode[setStepParamsValues](payload)
	if err != nil {
		return err
	}
	step := stepAny(wf, api.StepRef{TabSlug: v.TabSlug, StepSlug: v.StepSlug})
	if step == nil {
		return api.ErrStepNotFound
	}
	step.Params = v.Params.Clone()
	return nil
}

type setStepNotesValues struct {
	TabSlug  string
	StepSlug string
	Notes    string
}

// setStepNotes edits a step's free-text notes. Notes never feed into
// rendering, so nothing is invalidated.
type setStepNotes struct{}

func (setStepNotes) Kind() api.DeltaKind { return api.KindSetStepNotes }

func (setStepNotes) AmendCreate(wf *api.Workflow, req api.DeltaRequest, resolve depgraph.SchemaResolver) (*CreateArgs, error) {
	r := req.(api.SetStepNotes)
	step := wf.FindStep(r.TabSlug, r.StepSlug)
	if step == nil {
		return nil, api.ErrStepNotFound
	}
	if step.Notes == r.Notes {
		return nil, nil
	}
	forward, err := encode(setStepNotesValues{TabSlug: r.TabSlug, StepSlug: r.StepSlug, Notes: r.Notes})
	if err != nil {
		return nil, err
	}
	backward, err := encode(setStepNotesValues{TabSlug: r.TabSlug, StepSlug: r.StepSlug, Notes: step.Notes})
	if err != nil {
		return nil, err
	}
	return &CreateArgs{Forward: forward, Backward: backward}, nil
}

func (setStepNotes) Forward(wf *api.Workflow, d *api.Delta) error {
	return applyStepNotes(wf, d.ValuesForForward)
}

func (setStepNotes) Backward(wf *api.Workflow, d *api.Delta) error {
	return applyStepNotes(wf, d.ValuesForBackward)
}

func applyStepNotes(wf *api.Workflow, payload []byte) error {
	v, err := decode[setStepNotesValues](payload)
	if err != nil {
		return err
	}
	step := stepAny(wf, api.StepRef{TabSlug: v.TabSlug, StepSlug: v.StepSlug})
	if step == nil {
		return api.ErrStepNotFound
	}
	step.Notes = v.Notes
	return nil
}
