package deltaflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowBuilder_Shape(t *testing.T) {
	wf := NewWorkflow("Report").
		ID("wf-1").
		Tab("data", "Data").
		Step("load", "source", "1.0", nil).
		Notes("raw input").
		Step("filter", "filterrows", "1.0", Params{"column": "city", "value": "oslo"}).
		Notify().
		Tab("summary", "Summary").
		Step("pull", "loadtab", "1.0", Params{"tab": "data"}).
		SelectTab("summary").
		Build()

	assert.Equal(t, "wf-1", wf.ID)
	assert.Equal(t, "Report", wf.Name)
	assert.Equal(t, 1, wf.SelectedTabPosition)
	require.Len(t, wf.Tabs, 2)

	data := wf.TabBySlug("data")
	require.NotNil(t, data)
	require.Len(t, data.Steps, 2)
	assert.Equal(t, "raw input", data.Steps[0].Notes)
	assert.True(t, data.Steps[1].Notifications)
	assert.Equal(t, 1, data.Steps[1].Order)

	summary := wf.TabBySlug("summary")
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Position)
}

func TestWorkflowBuilder_ClonesParams(t *testing.T) {
	params := Params{"column": "city"}
	wf := NewWorkflow("x").
		Tab("t", "T").
		Step("s", "filterrows", "1.0", params).
		Build()

	params["column"] = "mutated"
	assert.Equal(t, "city", wf.TabBySlug("t").Steps[0].Params["column"])
}

func TestWorkflowBuilder_Panics(t *testing.T) {
	assert.Panics(t, func() { NewWorkflow("x").Build() })
	assert.Panics(t, func() { NewWorkflow("x").Tab("", "T") })
	assert.Panics(t, func() { NewWorkflow("x").Step("s", "m", "1.0", nil) })
	assert.Panics(t, func() {
		NewWorkflow("x").Tab("t", "T").Tab("t", "Again")
	})
	assert.Panics(t, func() {
		NewWorkflow("x").Tab("t", "T").Step("s", "m", "1.0", nil).Step("s", "m", "1.0", nil)
	})
	assert.Panics(t, func() {
		NewWorkflow("x").Tab("t", "T").SelectTab("missing")
	})
}

func TestWorkflowBuilder_Create(t *testing.T) {
	eng := NewInMemoryEngine()
	require.NoError(t, RegisterBuiltinModules(eng))

	wf, err := NewWorkflow("Report").
		Tab("data", "Data").
		Step("pass", "passthrough", "1.0", nil).
		Create(context.Background(), eng)
	require.NoError(t, err)
	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, int64(1), wf.LastDeltaID)
}
