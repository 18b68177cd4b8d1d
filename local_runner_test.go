package deltaflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForCachedDelta(t *testing.T, eng Engine, workflowID, tabSlug, stepSlug string, deltaID int64) *CachedResult {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		wf, err := eng.GetWorkflow(context.Background(), workflowID)
		require.NoError(t, err)
		step := wf.FindStep(tabSlug, stepSlug)
		require.NotNil(t, step)
		if cr := step.CachedResult; cr != nil && cr.DeltaID == deltaID {
			return cr
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("step %s/%s never reached delta %d", tabSlug, stepSlug, deltaID)
	return nil
}

func TestLocalRunner_AsyncRender(t *testing.T) {
	ctx := context.Background()
	r := NewLocalRunner()
	require.NoError(t, RegisterBuiltinModules(r.Engine))
	require.NoError(t, RegisterModules(r.Engine, StaticModule("source", "1.0", sourceTable())))

	wf, err := NewWorkflow("Weather").
		Tab("data", "Data").
		Step("load", "source", "1.0", nil).
		Step("filter", "filterrows", "1.0", Params{"column": "city", "value": "oslo"}).
		Create(ctx, r.Engine)
	require.NoError(t, err)

	require.NoError(t, r.StartWorkers(ctx, 2))
	defer r.Stop()

	require.NoError(t, r.RenderAsync(ctx, wf.ID, wf.LastDeltaID))
	cr := waitForCachedDelta(t, r.Engine, wf.ID, "data", "filter", wf.LastDeltaID)
	assert.Equal(t, 2, cr.NRows)

	// an edit through the runner renders automatically
	d, err := r.ApplyDelta(ctx, wf.ID, SetStepParams{
		TabSlug: "data", StepSlug: "filter",
		Params: Params{"column": "city", "value": "helsinki"},
	})
	require.NoError(t, err)
	require.NotNil(t, d)

	cr = waitForCachedDelta(t, r.Engine, wf.ID, "data", "filter", d.ID)
	assert.Equal(t, 1, cr.NRows)
}

func TestLocalRunner_NoOpDeltaEnqueuesNothing(t *testing.T) {
	ctx := context.Background()
	r := NewLocalRunner()
	require.NoError(t, RegisterBuiltinModules(r.Engine))

	wf, err := NewWorkflow("x").
		Tab("t", "T").
		Step("s", "passthrough", "1.0", nil).
		Create(ctx, r.Engine)
	require.NoError(t, err)

	d, err := r.ApplyDelta(ctx, wf.ID, SetTabName{Slug: "t", Name: "T"})
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.Equal(t, 0, r.Queue.Len())
}

func TestLocalRunner_DoubleStartFails(t *testing.T) {
	r := NewLocalRunner()
	require.NoError(t, r.StartWorkers(context.Background(), 1))
	defer r.Stop()

	assert.Error(t, r.StartWorkers(context.Background(), 1))
}

func TestLocalRunner_StopIsIdempotent(t *testing.T) {
	r := NewLocalRunner()
	require.NoError(t, r.StartWorkers(context.Background(), 1))
	r.Stop()
	r.Stop()
}
