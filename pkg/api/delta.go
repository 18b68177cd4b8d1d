package api

import "time"

// DeltaKind tags the closed set of command variants. Dispatch happens
// on the tag, not on subtyping.
type DeltaKind string

const (
	// KindInit marks the bootstrap delta every workflow starts with.
	// It carries no payload and cannot be undone.
	KindInit DeltaKind = "init"

	KindReorderTabs   DeltaKind = "reorder-tabs"
	KindAddTab        DeltaKind = "add-tab"
	KindDeleteTab     DeltaKind = "delete-tab"
	KindSetTabName    DeltaKind = "set-tab-name"
	KindAddStep       DeltaKind = "add-step"
	KindDeleteStep    DeltaKind = "delete-step"
	KindReorderSteps  DeltaKind = "reorder-steps"
	KindSetStepParams DeltaKind = "set-step-params"
	KindSetStepNotes  DeltaKind = "set-step-notes"
)

// StepRef identifies a step within a workflow by stable slugs.
type StepRef struct {
	TabSlug  string
	StepSlug string
}

// StepDeltaID pairs an affected step with the LastRelevantDeltaID it
// had before the delta applied, so backward() can restore it exactly.
type StepDeltaID struct {
	Ref     StepRef
	DeltaID int64
}

// Delta is one immutable, reversible entry of a workflow's command log.
//
// ValuesForForward and ValuesForBackward are opaque gob payloads owned
// by the command variant named in Kind: enough to replay the structural
// change, and enough to invert it. A delta is created with the change
// already applied (apply-then-log); backward() reverts it on undo and
// forward() re-applies it on redo. A delta never mutates another delta.
type Delta struct {
	ID         int64
	WorkflowID string
	Kind       DeltaKind

	ValuesForForward  []byte
	ValuesForBackward []byte

	// StepDeltaIDs lists every step whose render output may change as a
	// consequence of this delta, with its prior delta id.
	StepDeltaIDs []StepDeltaID

	CreatedAt time.Time
}

// Clone deep-copies the delta.
func (d *Delta) Clone() *Delta {
	out := *d
	out.ValuesForForward = append([]byte(nil), d.ValuesForForward...)
	out.ValuesForBackward = append([]byte(nil), d.ValuesForBackward...)
	out.StepDeltaIDs = append([]StepDeltaID(nil), d.StepDeltaIDs...)
	return &out
}

// DeltaRequest is a request to mutate a workflow. The concrete types
// below form the closed request set; Engine.ApplyDelta validates the
// request against current state and either logs a delta or reports a
// no-op.
type DeltaRequest interface {
	Kind() DeltaKind
}

// ReorderTabs rearranges the live tabs. TabSlugs must be a permutation
// of the current live tab slugs; reordering to the current order is a
// no-op and logs nothing.
type ReorderTabs struct {
	TabSlugs []string
}

func (ReorderTabs) Kind() DeltaKind { return KindReorderTabs }

// AddTab appends a tab with the given slug and display name.
type AddTab struct {
	Slug string
	Name string
}

func (AddTab) Kind() DeltaKind { return KindAddTab }

// DeleteTab soft-removes a tab. The slug is retained so an undo can
// resurrect the same identity. Deleting the last live tab is invalid.
type DeleteTab struct {
	Slug string
}

func (DeleteTab) Kind() DeltaKind { return KindDeleteTab }

// SetTabName renames a tab. Steps whose params reference the tab are
// invalidated: rendered output may embed the tab name.
type SetTabName struct {
	Slug string
	Name string
}

func (SetTabName) Kind() DeltaKind { return KindSetTabName }

// AddStep inserts a step into a tab at Index (clamped to the live step
// count).
type AddStep struct {
	TabSlug       string
	StepSlug      string
	Index         int
	ModuleID      string
	ModuleVersion string
	Params        Params
}

func (AddStep) Kind() DeltaKind { return KindAddStep }

// DeleteStep soft-removes a step from its tab.
type DeleteStep struct {
	TabSlug  string
	StepSlug string
}

func (DeleteStep) Kind() DeltaKind { return KindDeleteStep }

// ReorderSteps rearranges the live steps of one tab. StepSlugs must be
// a permutation of the tab's current live step slugs.
type ReorderSteps struct {
	TabSlug   string
	StepSlugs []string
}

func (ReorderSteps) Kind() DeltaKind { return KindReorderSteps }

// SetStepParams replaces a step's parameter values. The values are
// validated against the module's schema when the module is registered;
// params for an unknown module are accepted as-is and fail at render
// time instead.
type SetStepParams struct {
	TabSlug  string
	StepSlug string
	Params   Params
}

func (SetStepParams) Kind() DeltaKind { return KindSetStepParams }

// SetStepNotes updates a step's free-form notes. Notes never affect
// render output, so this delta invalidates nothing.
type SetStepNotes struct {
	TabSlug  string
	StepSlug string
	Notes    string
}

func (SetStepNotes) Kind() DeltaKind { return KindSetStepNotes }
