package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/petrijr/deltaflow/pkg/api"
)

func newMemoryStore(t *testing.T) WorkflowStore {
	t.Helper()
	return NewInMemoryStore()
}

func newSQLiteStore(t *testing.T) WorkflowStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store, err := NewSQLiteWorkflowStore(db)
	require.NoError(t, err)
	return store
}

func testWorkflow(id string) *api.Workflow {
	return &api.Workflow{
		ID:          id,
		Name:        "test workflow",
		LastDeltaID: 1,
		Tabs: []*api.Tab{
			{
				Slug:     "tab-1",
				Name:     "Tab 1",
				Position: 0,
				Steps: []*api.Step{
					{
						Slug:                "step-1",
						Order:               0,
						ModuleID:            "static",
						ModuleVersion:       "1.0",
						LastRelevantDeltaID: 1,
					},
				},
			},
		},
		Deltas:        []*api.Delta{{ID: 1, WorkflowID: id, Kind: api.KindInit}},
		AppliedDeltas: 1,
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, store WorkflowStore)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, newMemoryStore(t))
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newSQLiteStore(t))
	})
}

func TestStoreCreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, store WorkflowStore) {
		ctx := context.Background()
		wf := testWorkflow("wf-1")
		require.NoError(t, store.CreateWorkflow(ctx, wf))

		got, err := store.GetWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, "wf-1", got.ID)
		assert.Equal(t, "test workflow", got.Name)
		assert.Equal(t, int64(1), got.LastDeltaID)
		require.Len(t, got.Tabs, 1)
		require.Len(t, got.Tabs[0].Steps, 1)
		assert.Equal(t, "step-1", got.Tabs[0].Steps[0].Slug)
		require.Len(t, got.Deltas, 1)
		assert.Equal(t, api.KindInit, got.Deltas[0].Kind)
	})
}

func TestStoreCreateDuplicate(t *testing.T) {
	forEachStore(t, func(t *testing.T, store WorkflowStore) {
		ctx := context.Background()
		require.NoError(t, store.CreateWorkflow(ctx, testWorkflow("wf-1")))
		err := store.CreateWorkflow(ctx, testWorkflow("wf-1"))
		assert.ErrorIs(t, err, ErrWorkflowExists)
	})
}

func TestStoreGetNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, store WorkflowStore) {
		_, err := store.GetWorkflow(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrWorkflowNotFound)
	})
}

func TestStoreGetReturnsCopy(t *testing.T) {
	forEachStore(t, func(t *testing.T, store WorkflowStore) {
		ctx := context.Background()
		require.NoError(t, store.CreateWorkflow(ctx, testWorkflow("wf-1")))

		first, err := store.GetWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		first.Tabs[0].Name = "mutated locally"
		first.Tabs[0].Steps[0].Slug = "mutated"

		second, err := store.GetWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, "Tab 1", second.Tabs[0].Name)
		assert.Equal(t, "step-1", second.Tabs[0].Steps[0].Slug)
	})
}

func TestStoreMutate(t *testing.T) {
	forEachStore(t, func(t *testing.T, store WorkflowStore) {
		ctx := context.Background()
		require.NoError(t, store.CreateWorkflow(ctx, testWorkflow("wf-1")))

		err := store.Mutate(ctx, "wf-1", func(wf *api.Workflow) error {
			wf.Name = "renamed"
			wf.LastDeltaID = 2
			wf.AppliedDeltas = 2
			wf.Deltas = append(wf.Deltas, &api.Delta{ID: 2, WorkflowID: wf.ID, Kind: api.KindSetTabName})
			wf.Tabs[0].Name = "Renamed Tab"
			return nil
		})
		require.NoError(t, err)

		got, err := store.GetWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
		assert.Equal(t, int64(2), got.LastDeltaID)
		assert.Equal(t, 2, got.AppliedDeltas)
		assert.Equal(t, "Renamed Tab", got.Tabs[0].Name)
		require.Len(t, got.Deltas, 2)
	})
}

func TestStoreMutateErrorLeavesWorkflowUnchanged(t *testing.T) {
	forEachStore(t, func(t *testing.T, store WorkflowStore) {
		ctx := context.Background()
		require.NoError(t, store.CreateWorkflow(ctx, testWorkflow("wf-1")))

		wantErr := assert.AnError
		err := store.Mutate(ctx, "wf-1", func(wf *api.Workflow) error {
			wf.Name = "should not persist"
			return wantErr
		})
		assert.ErrorIs(t, err, wantErr)

		got, err := store.GetWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, "test workflow", got.Name)
	})
}

func TestStoreMutateNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, store WorkflowStore) {
		err := store.Mutate(context.Background(), "missing", func(wf *api.Workflow) error {
			return nil
		})
		assert.ErrorIs(t, err, ErrWorkflowNotFound)
	})
}

func TestStoreUpdateStep(t *testing.T) {
	forEachStore(t, func(t *testing.T, store WorkflowStore) {
		ctx := context.Background()
		require.NoError(t, store.CreateWorkflow(ctx, testWorkflow("wf-1")))

		ref := api.StepRef{TabSlug: "tab-1", StepSlug: "step-1"}
		err := store.UpdateStep(ctx, "wf-1", ref, func(step *api.Step) error {
			step.CachedResult = &api.CachedResult{
				DeltaID: 1,
				Status:  api.StatusOK,
				Columns: []api.Column{{Name: "a", Type: "text"}},
				NRows:   3,
				BlobKey: "wf-1/tab-1/step-1/1",
			}
			return nil
		})
		require.NoError(t, err)

		got, err := store.GetWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		cached := got.Tabs[0].Steps[0].CachedResult
		require.NotNil(t, cached)
		assert.Equal(t, api.StatusOK, cached.Status)
		assert.Equal(t, 3, cached.NRows)
	})
}

func TestStoreUpdateStepNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, store WorkflowStore) {
		ctx := context.Background()
		require.NoError(t, store.CreateWorkflow(ctx, testWorkflow("wf-1")))

		err := store.UpdateStep(ctx, "wf-1", api.StepRef{TabSlug: "tab-1", StepSlug: "nope"}, func(step *api.Step) error {
			return nil
		})
		assert.ErrorIs(t, err, ErrStepNotFound)
	})
}
