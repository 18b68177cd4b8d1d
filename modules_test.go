package deltaflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runModule(t *testing.T, m Module, req RenderRequest) RenderResult {
	t.Helper()
	result, err := m.Runner.Render(context.Background(), req)
	require.NoError(t, err)
	return result
}

func TestStaticModule(t *testing.T) {
	m := StaticModule("src", "1.0", sourceTable())

	result := runModule(t, m, RenderRequest{})
	assert.Equal(t, StatusOK, result.Status())
	assert.Equal(t, 3, result.Table.NRows())

	// mutating the output must not leak into later renders
	result.Table.Rows[0][0] = "mutated"
	again := runModule(t, m, RenderRequest{})
	assert.Equal(t, "oslo", again.Table.Rows[0][0])
}

func TestPassthroughModule(t *testing.T) {
	result := runModule(t, PassthroughModule(), RenderRequest{Input: sourceTable()})
	assert.Equal(t, sourceTable(), result.Table)
}

func TestFilterRowsModule(t *testing.T) {
	m := FilterRowsModule()

	result := runModule(t, m, RenderRequest{
		Input:  sourceTable(),
		Params: Params{"column": "city", "value": "oslo"},
	})
	assert.Equal(t, StatusOK, result.Status())
	assert.Equal(t, [][]string{{"oslo", "4"}, {"oslo", "6"}}, result.Table.Rows)

	missing := runModule(t, m, RenderRequest{
		Input:  sourceTable(),
		Params: Params{"column": "nope", "value": "x"},
	})
	assert.Equal(t, StatusError, missing.Status())

	unconfigured := runModule(t, m, RenderRequest{Input: sourceTable()})
	assert.Equal(t, StatusError, unconfigured.Status())
}

func TestSelectColumnsModule(t *testing.T) {
	m := SelectColumnsModule()

	result := runModule(t, m, RenderRequest{
		Input:  sourceTable(),
		Params: Params{"columns": []any{"temp", "city"}},
	})
	assert.Equal(t, []Column{{Name: "temp", Type: "text"}, {Name: "city", Type: "text"}}, result.Table.Columns)
	assert.Equal(t, [][]string{{"4", "oslo"}, {"2", "helsinki"}, {"6", "oslo"}}, result.Table.Rows)

	missing := runModule(t, m, RenderRequest{
		Input:  sourceTable(),
		Params: Params{"columns": []any{"nope"}},
	})
	assert.Equal(t, StatusError, missing.Status())
}

func TestTabModule(t *testing.T) {
	m := TabModule()

	result := runModule(t, m, RenderRequest{
		Params: Params{"tab": "data"},
		TabInputs: map[string]TabOutput{
			"data": {TabSlug: "data", Status: StatusOK, Table: sourceTable()},
		},
	})
	assert.Equal(t, sourceTable(), result.Table)

	dangling := runModule(t, m, RenderRequest{Params: Params{"tab": "gone"}})
	assert.Equal(t, StatusError, dangling.Status())
}

func TestConcatTabsModule(t *testing.T) {
	m := ConcatTabsModule()

	result := runModule(t, m, RenderRequest{
		Params: Params{"tabs": []any{"a", "b"}},
		TabInputs: map[string]TabOutput{
			"a": {TabSlug: "a", Status: StatusOK, Table: sourceTable()},
			"b": {TabSlug: "b", Status: StatusOK, Table: sourceTable()},
		},
	})
	assert.Equal(t, StatusOK, result.Status())
	assert.Equal(t, 6, result.Table.NRows())

	mismatched := runModule(t, m, RenderRequest{
		Params: Params{"tabs": []any{"a"}},
		Input:  Table{Columns: []Column{{Name: "other", Type: "text"}}},
		TabInputs: map[string]TabOutput{
			"a": {TabSlug: "a", Status: StatusOK, Table: sourceTable()},
		},
	})
	assert.Equal(t, StatusError, mismatched.Status())
}

func TestRegisterBuiltinModules(t *testing.T) {
	eng := NewInMemoryEngine()
	require.NoError(t, RegisterBuiltinModules(eng))

	// duplicate registration replaces, not errors
	require.NoError(t, RegisterBuiltinModules(eng))
}
