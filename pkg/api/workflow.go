package api

import (
	"encoding/gob"
	"sort"
	"time"
)

func init() {
	gob.Register(Table{})
	gob.Register(RenderResult{})
	gob.Register(Params{})
	gob.Register([]any{})
	gob.Register(map[string]any{})
}

// Status is the outcome recorded for a rendered step.
type Status string

const (
	// StatusOK means the step produced a table.
	StatusOK Status = "ok"

	// StatusError means the step's module reported an error. The step's
	// output table is empty.
	StatusError Status = "error"

	// StatusUnreachable means the step was skipped because a step earlier
	// in its dependency chain failed. The step's output table is empty.
	StatusUnreachable Status = "unreachable"
)

// Workflow is an ordered sequence of tabs plus the delta log that
// produced it. It is the aggregate root: a Workflow owns its Tabs and,
// transitively, all Steps.
//
// LastDeltaID always equals the ID of the most recently forward-applied
// delta. AppliedDeltas is the undo/redo cursor: Deltas[:AppliedDeltas]
// are applied, the rest are available for Redo.
type Workflow struct {
	ID   string
	Name string

	// SelectedTabPosition indexes into live tabs. Commands that change
	// tab ordering preserve the identity of the selected tab, not its
	// index.
	SelectedTabPosition int

	LastDeltaID int64

	Tabs []*Tab

	Deltas        []*Delta
	AppliedDeltas int

	UpdatedAt time.Time
}

// Tab holds an ordered chain of steps. The slug is stable and opaque:
// it survives renames and reorders, and a soft-deleted tab keeps it so
// an undone delete can resurrect the same identity.
type Tab struct {
	Slug      string
	Name      string
	Position  int
	IsDeleted bool

	Steps []*Step
}

// Step is one transformation stage: a module reference, its parameter
// values, and (maybe) a cached render result.
//
// A step's cached result is fresh if and only if
// CachedResult.DeltaID == LastRelevantDeltaID and every upstream
// dependency is itself fresh.
type Step struct {
	Slug  string
	Order int

	ModuleID      string
	ModuleVersion string
	Params        Params

	Notes string

	// Notifications requests an output-delta notification whenever a
	// re-render actually changes this step's output content.
	Notifications bool

	// LastRelevantDeltaID is the ID of the delta that most recently
	// changed this step's effective inputs or parameters.
	LastRelevantDeltaID int64

	CachedResult *CachedResult

	IsDeleted bool
}

// CachedResult is the stored summary of a step's most recent render.
// It is superseded, never mutated: a re-render writes a new value.
type CachedResult struct {
	DeltaID int64
	Status  Status
	Errors  []RenderError
	Columns []Column
	NRows   int

	// BlobKey locates the full table payload in blob storage. Empty for
	// zero-column results, which are never written to the blob store.
	BlobKey string
	Size    int64

	// Hash is the content hash of the encoded table, used to suppress
	// output notifications when a recompute produced identical output.
	Hash uint64

	CreatedAt time.Time
}

// Column describes one column of a table.
type Column struct {
	Name string
	Type string
}

// Table is the tabular payload passed between steps. Cell values are
// kept as strings; typing lives in Columns.
type Table struct {
	Columns []Column
	Rows    [][]string
}

// NRows returns the number of rows.
func (t Table) NRows() int { return len(t.Rows) }

// RenderError is a module-reported failure message.
type RenderError struct {
	Message string
}

// RenderResult is what executing one step produces: a table, or errors
// and an empty table.
type RenderResult struct {
	Table  Table
	Errors []RenderError
}

// Status derives the step status recorded for this result: a result
// with no columns is an error (if errors were reported) or unreachable
// (if it was skipped); anything else is ok.
func (r RenderResult) Status() Status {
	if len(r.Table.Columns) == 0 {
		if len(r.Errors) > 0 {
			return StatusError
		}
		return StatusUnreachable
	}
	return StatusOK
}

// LiveTabs returns the non-deleted tabs ordered by position.
func (w *Workflow) LiveTabs() []*Tab {
	live := make([]*Tab, 0, len(w.Tabs))
	for _, t := range w.Tabs {
		if !t.IsDeleted {
			live = append(live, t)
		}
	}
	sortTabs(live)
	return live
}

// TabBySlug returns the tab with the given slug, deleted or not.
func (w *Workflow) TabBySlug(slug string) *Tab {
	for _, t := range w.Tabs {
		if t.Slug == slug {
			return t
		}
	}
	return nil
}

// LiveSteps returns the non-deleted steps ordered by Order.
func (t *Tab) LiveSteps() []*Step {
	live := make([]*Step, 0, len(t.Steps))
	for _, s := range t.Steps {
		if !s.IsDeleted {
			live = append(live, s)
		}
	}
	sortSteps(live)
	return live
}

// StepBySlug returns the step with the given slug, deleted or not.
func (t *Tab) StepBySlug(slug string) *Step {
	for _, s := range t.Steps {
		if s.Slug == slug {
			return s
		}
	}
	return nil
}

// FindStep locates a live step anywhere in the workflow.
func (w *Workflow) FindStep(tabSlug, stepSlug string) *Step {
	tab := w.TabBySlug(tabSlug)
	if tab == nil || tab.IsDeleted {
		return nil
	}
	s := tab.StepBySlug(stepSlug)
	if s == nil || s.IsDeleted {
		return nil
	}
	return s
}

// Clone deep-copies the workflow. Stores hand out clones so a caller's
// snapshot is never aliased to live state.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	out := *w
	out.Tabs = make([]*Tab, len(w.Tabs))
	for i, t := range w.Tabs {
		out.Tabs[i] = t.Clone()
	}
	out.Deltas = make([]*Delta, len(w.Deltas))
	for i, d := range w.Deltas {
		out.Deltas[i] = d.Clone()
	}
	return &out
}

// Clone deep-copies the tab and its steps.
func (t *Tab) Clone() *Tab {
	out := *t
	out.Steps = make([]*Step, len(t.Steps))
	for i, s := range t.Steps {
		out.Steps[i] = s.Clone()
	}
	return &out
}

// Clone deep-copies the step.
func (s *Step) Clone() *Step {
	out := *s
	out.Params = s.Params.Clone()
	if s.CachedResult != nil {
		cr := *s.CachedResult
		cr.Errors = append([]RenderError(nil), s.CachedResult.Errors...)
		cr.Columns = append([]Column(nil), s.CachedResult.Columns...)
		out.CachedResult = &cr
	}
	return &out
}

func sortTabs(tabs []*Tab) {
	sort.SliceStable(tabs, func(i, j int) bool { return tabs[i].Position < tabs[j].Position })
}

func sortSteps(steps []*Step) {
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
}
