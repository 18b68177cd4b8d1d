package engine

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/deltaflow/internal/blob"
	"github.com/petrijr/deltaflow/internal/persistence"
	"github.com/petrijr/deltaflow/internal/rendercache"
	"github.com/petrijr/deltaflow/pkg/api"
)

type countingRunner struct {
	calls atomic.Int64
}

func (r *countingRunner) Render(_ context.Context, req api.RenderRequest) (api.RenderResult, error) {
	r.calls.Add(1)
	name, _ := req.Params["column"].(string)
	if name == "" {
		return api.ErrorResult("no column configured"), nil
	}
	return api.RenderResult{Table: api.Table{
		Columns: []api.Column{{Name: name, Type: "text"}},
		Rows:    [][]string{{name + "-row"}},
	}}, nil
}

type testEngine struct {
	engine api.Engine
	store  persistence.WorkflowStore
	bucket *blob.MemoryBucket
	runner *countingRunner
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	store := persistence.NewInMemoryStore()
	bucket := blob.NewMemoryBucket()
	cache := rendercache.New(rendercache.Config{Bucket: bucket, Store: store})

	eng, err := New(Config{
		Store:   store,
		Cache:   cache,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		TempDir: t.TempDir(),
	})
	require.NoError(t, err)

	runner := &countingRunner{}
	require.NoError(t, eng.RegisterModule(api.ModuleSpec{
		ID:      "produce",
		Version: "1.0",
		Schema:  api.ParamSchema{"column": {Type: api.ParamString}},
	}, runner))
	require.NoError(t, eng.RegisterModule(api.ModuleSpec{
		ID:      "fail",
		Version: "1.0",
		Schema:  api.ParamSchema{},
	}, api.RunnerFunc(func(context.Context, api.RenderRequest) (api.RenderResult, error) {
		return api.ErrorResult("boom"), nil
	})))

	return &testEngine{engine: eng, store: store, bucket: bucket, runner: runner}
}

func baseWorkflow() *api.Workflow {
	return &api.Workflow{
		ID:   "wf-1",
		Name: "Report",
		Tabs: []*api.Tab{
			{Slug: "tab-1", Name: "Tab 1", Position: 0, Steps: []*api.Step{
				{Slug: "s1", Order: 0, ModuleID: "produce", ModuleVersion: "1.0", Params: api.Params{"column": "a"}},
			}},
		},
	}
}

func createBase(t *testing.T, te *testEngine) *api.Workflow {
	t.Helper()
	wf, err := te.engine.CreateWorkflow(context.Background(), baseWorkflow())
	require.NoError(t, err)
	return wf
}

func reload(t *testing.T, te *testEngine, id string) *api.Workflow {
	t.Helper()
	wf, err := te.engine.GetWorkflow(context.Background(), id)
	require.NoError(t, err)
	return wf
}

func TestNewRequiresStoreAndCache(t *testing.T) {
	store := persistence.NewInMemoryStore()
	cache := rendercache.New(rendercache.Config{Bucket: blob.NewMemoryBucket(), Store: store})

	_, err := New(Config{Cache: cache})
	assert.Error(t, err)
	_, err = New(Config{Store: store})
	assert.Error(t, err)
	_, err = New(Config{Store: store, Cache: cache})
	assert.NoError(t, err)
}

func TestCreateWorkflowBootstrap(t *testing.T) {
	te := newTestEngine(t)
	wf := createBase(t, te)

	assert.Equal(t, "wf-1", wf.ID)
	require.Len(t, wf.Deltas, 1)
	assert.Equal(t, api.KindInit, wf.Deltas[0].Kind)
	assert.Equal(t, int64(1), wf.LastDeltaID)
	assert.Equal(t, 1, wf.AppliedDeltas)

	step := wf.FindStep("tab-1", "s1")
	require.NotNil(t, step)
	assert.Equal(t, int64(1), step.LastRelevantDeltaID)
	assert.Nil(t, step.CachedResult)

	// persisted too
	stored := reload(t, te, "wf-1")
	assert.Equal(t, int64(1), stored.LastDeltaID)
}

func TestCreateWorkflowAssignsID(t *testing.T) {
	te := newTestEngine(t)
	in := baseWorkflow()
	in.ID = ""
	wf, err := te.engine.CreateWorkflow(context.Background(), in)
	require.NoError(t, err)
	assert.NotEmpty(t, wf.ID)
	assert.Empty(t, in.ID, "input is not mutated")
}

func TestCreateWorkflowRequiresTab(t *testing.T) {
	te := newTestEngine(t)
	_, err := te.engine.CreateWorkflow(context.Background(), &api.Workflow{ID: "wf-x"})
	assert.True(t, api.IsValidationError(err))
}

func TestApplyDeltaLogsAndInvalidates(t *testing.T) {
	te := newTestEngine(t)
	createBase(t, te)

	d, err := te.engine.ApplyDelta(context.Background(), "wf-1", api.SetStepParams{
		TabSlug:  "tab-1",
		StepSlug: "s1",
		Params:   api.Params{"column": "b"},
	})
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, int64(2), d.ID)
	assert.Equal(t, api.KindSetStepParams, d.Kind)
	require.Len(t, d.StepDeltaIDs, 1)
	assert.Equal(t, int64(1), d.StepDeltaIDs[0].DeltaID)

	wf := reload(t, te, "wf-1")
	assert.Equal(t, int64(2), wf.LastDeltaID)
	assert.Equal(t, 2, wf.AppliedDeltas)
	require.Len(t, wf.Deltas, 2)

	step := wf.FindStep("tab-1", "s1")
	assert.Equal(t, "b", step.Params["column"])
	assert.Equal(t, int64(2), step.LastRelevantDeltaID)
}

func TestApplyDeltaNoOpLogsNothing(t *testing.T) {
	te := newTestEngine(t)
	createBase(t, te)

	d, err := te.engine.ApplyDelta(context.Background(), "wf-1", api.SetStepParams{
		TabSlug:  "tab-1",
		StepSlug: "s1",
		Params:   api.Params{"column": "a"},
	})
	require.NoError(t, err)
	assert.Nil(t, d)

	wf := reload(t, te, "wf-1")
	assert.Equal(t, int64(1), wf.LastDeltaID)
	assert.Len(t, wf.Deltas, 1)
}

func TestApplyDeltaValidationLeavesStateUntouched(t *testing.T) {
	te := newTestEngine(t)
	createBase(t, te)

	_, err := te.engine.ApplyDelta(context.Background(), "wf-1", api.ReorderTabs{
		TabSlugs: []string{"tab-1", "no-such-tab"},
	})
	assert.True(t, api.IsValidationError(err))

	wf := reload(t, te, "wf-1")
	assert.Equal(t, int64(1), wf.LastDeltaID)
	assert.Len(t, wf.Deltas, 1)
}

func TestApplyDeltaWorkflowNotFound(t *testing.T) {
	te := newTestEngine(t)
	_, err := te.engine.ApplyDelta(context.Background(), "nope", api.SetTabName{Slug: "tab-1", Name: "x"})
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestUndoRedoRoundTrip(t *testing.T) {
	te := newTestEngine(t)
	createBase(t, te)
	ctx := context.Background()

	_, err := te.engine.ApplyDelta(ctx, "wf-1", api.SetStepParams{
		TabSlug: "tab-1", StepSlug: "s1", Params: api.Params{"column": "b"},
	})
	require.NoError(t, err)

	undone, err := te.engine.Undo(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, undone)
	assert.Equal(t, int64(2), undone.ID)

	wf := reload(t, te, "wf-1")
	assert.Equal(t, int64(1), wf.LastDeltaID)
	assert.Equal(t, 1, wf.AppliedDeltas)
	assert.Len(t, wf.Deltas, 2, "undone delta stays in the log")
	step := wf.FindStep("tab-1", "s1")
	assert.Equal(t, "a", step.Params["column"])
	assert.Equal(t, int64(1), step.LastRelevantDeltaID)

	redone, err := te.engine.Redo(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, redone)
	assert.Equal(t, int64(2), redone.ID)

	wf = reload(t, te, "wf-1")
	assert.Equal(t, int64(2), wf.LastDeltaID)
	assert.Equal(t, 2, wf.AppliedDeltas)
	step = wf.FindStep("tab-1", "s1")
	assert.Equal(t, "b", step.Params["column"])
	assert.Equal(t, int64(2), step.LastRelevantDeltaID)
}

func TestUndoAtBootstrapIsNoOp(t *testing.T) {
	te := newTestEngine(t)
	createBase(t, te)

	d, err := te.engine.Undo(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestRedoWithoutUndoIsNoOp(t *testing.T) {
	te := newTestEngine(t)
	createBase(t, te)

	d, err := te.engine.Redo(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestApplyAfterUndoTruncatesRedoBranch(t *testing.T) {
	te := newTestEngine(t)
	createBase(t, te)
	ctx := context.Background()

	_, err := te.engine.ApplyDelta(ctx, "wf-1", api.SetTabName{Slug: "tab-1", Name: "First"})
	require.NoError(t, err)
	_, err = te.engine.Undo(ctx, "wf-1")
	require.NoError(t, err)

	d, err := te.engine.ApplyDelta(ctx, "wf-1", api.SetTabName{Slug: "tab-1", Name: "Second"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.ID, "orphaned branch freed the id")

	wf := reload(t, te, "wf-1")
	require.Len(t, wf.Deltas, 2)
	assert.Equal(t, api.KindSetTabName, wf.Deltas[1].Kind)
	assert.Equal(t, "Second", wf.TabBySlug("tab-1").Name)

	redone, err := te.engine.Redo(ctx, "wf-1")
	require.NoError(t, err)
	assert.Nil(t, redone, "old branch is gone")
}

func TestRenderFreshensCaches(t *testing.T) {
	te := newTestEngine(t)
	createBase(t, te)
	ctx := context.Background()

	require.NoError(t, te.engine.Render(ctx, "wf-1", 1))
	assert.Equal(t, int64(1), te.runner.calls.Load())

	step := reload(t, te, "wf-1").FindStep("tab-1", "s1")
	require.NotNil(t, step.CachedResult)
	assert.Equal(t, int64(1), step.CachedResult.DeltaID)
	assert.Equal(t, api.StatusOK, step.CachedResult.Status)

	// everything fresh: a second pass calls no modules
	require.NoError(t, te.engine.Render(ctx, "wf-1", 1))
	assert.Equal(t, int64(1), te.runner.calls.Load())
}

func TestRenderAfterDeltaReRendersInvalidated(t *testing.T) {
	te := newTestEngine(t)
	createBase(t, te)
	ctx := context.Background()

	require.NoError(t, te.engine.Render(ctx, "wf-1", 1))

	d, err := te.engine.ApplyDelta(ctx, "wf-1", api.SetStepParams{
		TabSlug: "tab-1", StepSlug: "s1", Params: api.Params{"column": "b"},
	})
	require.NoError(t, err)

	require.NoError(t, te.engine.Render(ctx, "wf-1", d.ID))
	assert.Equal(t, int64(2), te.runner.calls.Load())

	step := reload(t, te, "wf-1").FindStep("tab-1", "s1")
	require.NotNil(t, step.CachedResult)
	assert.Equal(t, d.ID, step.CachedResult.DeltaID)
	assert.Equal(t, []api.Column{{Name: "b", Type: "text"}}, step.CachedResult.Columns)
}

func TestRenderSupersededDeltaAborts(t *testing.T) {
	te := newTestEngine(t)
	createBase(t, te)

	err := te.engine.Render(context.Background(), "wf-1", 7)
	assert.ErrorIs(t, err, api.ErrUnneededExecution)
}

func TestRenderRecoversFromCorruptCache(t *testing.T) {
	te := newTestEngine(t)
	createBase(t, te)
	ctx := context.Background()

	require.NoError(t, te.engine.Render(ctx, "wf-1", 1))
	require.Equal(t, int64(1), te.runner.calls.Load())

	// add a step after s1 so the next render reuses s1's cache as input
	d, err := te.engine.ApplyDelta(ctx, "wf-1", api.AddStep{
		TabSlug: "tab-1", StepSlug: "s2", Index: 1,
		ModuleID: "produce", ModuleVersion: "1.0",
		Params: api.Params{"column": "b"},
	})
	require.NoError(t, err)

	cached := reload(t, te, "wf-1").FindStep("tab-1", "s1").CachedResult
	require.NotNil(t, cached)
	require.NotEmpty(t, cached.BlobKey)
	require.NoError(t, te.bucket.Put(ctx, cached.BlobKey, []byte("garbage")))

	// first attempt clears the corrupt entry and aborts; the engine
	// retries once and renders both steps from scratch
	require.NoError(t, te.engine.Render(ctx, "wf-1", d.ID))
	assert.Equal(t, int64(3), te.runner.calls.Load())

	wf := reload(t, te, "wf-1")
	s1 := wf.FindStep("tab-1", "s1")
	s2 := wf.FindStep("tab-1", "s2")
	require.NotNil(t, s1.CachedResult)
	require.NotNil(t, s2.CachedResult)
	assert.Equal(t, d.ID, s2.CachedResult.DeltaID)
}
