package deltaflow

import (
	"context"
	"fmt"

	"github.com/petrijr/deltaflow/pkg/api"
)

// Module couples a spec and a runner for registration.
type Module struct {
	Spec   ModuleSpec
	Runner ModuleRunner
}

// RegisterModules registers each module on eng, stopping at the first
// error.
func RegisterModules(eng Engine, mods ...Module) error {
	for _, m := range mods {
		if err := eng.RegisterModule(m.Spec, m.Runner); err != nil {
			return err
		}
	}
	return nil
}

// RegisterBuiltinModules registers the built-in plumbing modules:
// passthrough, filterrows, selectcolumns, loadtab, and concattabs.
func RegisterBuiltinModules(eng Engine) error {
	return RegisterModules(eng,
		PassthroughModule(),
		FilterRowsModule(),
		SelectColumnsModule(),
		TabModule(),
		ConcatTabsModule(),
	)
}

// StaticModule builds a module that ignores its input and emits the
// given table. Useful as a data source in tests and seeds.
func StaticModule(id, version string, table Table) Module {
	return Module{
		Spec: ModuleSpec{ID: id, Version: version, Schema: ParamSchema{}},
		Runner: RunnerFunc(func(context.Context, RenderRequest) (RenderResult, error) {
			return RenderResult{Table: cloneTable(table)}, nil
		}),
	}
}

// PassthroughModule emits its input table unchanged.
func PassthroughModule() Module {
	return Module{
		Spec: ModuleSpec{ID: "passthrough", Version: "1.0", Schema: ParamSchema{}},
		Runner: RunnerFunc(func(_ context.Context, req RenderRequest) (RenderResult, error) {
			return RenderResult{Table: req.Input}, nil
		}),
	}
}

// FilterRowsModule keeps the rows whose "column" cell equals "value".
func FilterRowsModule() Module {
	return Module{
		Spec: ModuleSpec{ID: "filterrows", Version: "1.0", Schema: ParamSchema{
			"column": {Type: ParamString},
			"value":  {Type: ParamString},
		}},
		Runner: RunnerFunc(func(_ context.Context, req RenderRequest) (RenderResult, error) {
			column, _ := req.Params["column"].(string)
			value, _ := req.Params["value"].(string)
			if column == "" {
				return ErrorResult("filterrows: no column configured"), nil
			}

			idx := -1
			for i, c := range req.Input.Columns {
				if c.Name == column {
					idx = i
					break
				}
			}
			if idx < 0 {
				return ErrorResult(fmt.Sprintf("filterrows: no column %q in input", column)), nil
			}

			out := Table{Columns: req.Input.Columns}
			for _, row := range req.Input.Rows {
				if idx < len(row) && row[idx] == value {
					out.Rows = append(out.Rows, row)
				}
			}
			return RenderResult{Table: out}, nil
		}),
	}
}

// SelectColumnsModule keeps only the named columns, in the order given
// by the "columns" param.
func SelectColumnsModule() Module {
	inner := ParamDef{Type: ParamString}
	return Module{
		Spec: ModuleSpec{ID: "selectcolumns", Version: "1.0", Schema: ParamSchema{
			"columns": {Type: ParamList, Inner: &inner},
		}},
		Runner: RunnerFunc(func(_ context.Context, req RenderRequest) (RenderResult, error) {
			raw, _ := req.Params["columns"].([]any)
			if len(raw) == 0 {
				return ErrorResult("selectcolumns: no columns configured"), nil
			}

			indices := make([]int, 0, len(raw))
			out := Table{}
			for _, v := range raw {
				name, _ := v.(string)
				idx := -1
				for i, c := range req.Input.Columns {
					if c.Name == name {
						idx = i
						break
					}
				}
				if idx < 0 {
					return ErrorResult(fmt.Sprintf("selectcolumns: no column %q in input", name)), nil
				}
				indices = append(indices, idx)
				out.Columns = append(out.Columns, req.Input.Columns[idx])
			}

			for _, row := range req.Input.Rows {
				selected := make([]string, len(indices))
				for i, idx := range indices {
					if idx < len(row) {
						selected[i] = row[idx]
					}
				}
				out.Rows = append(out.Rows, selected)
			}
			return RenderResult{Table: out}, nil
		}),
	}
}

// TabModule emits the finished output of the tab named by the "tab"
// param, discarding its own input.
func TabModule() Module {
	return Module{
		Spec: ModuleSpec{ID: "loadtab", Version: "1.0", Schema: ParamSchema{
			"tab": {Type: ParamTab},
		}},
		Runner: RunnerFunc(func(_ context.Context, req RenderRequest) (RenderResult, error) {
			slug, _ := req.Params["tab"].(string)
			if slug == "" {
				return ErrorResult("loadtab: no tab configured"), nil
			}
			out, ok := req.TabInputs[slug]
			if !ok {
				return ErrorResult(fmt.Sprintf("loadtab: tab %q does not exist", slug)), nil
			}
			return RenderResult{Table: out.Table}, nil
		}),
	}
}

// ConcatTabsModule appends the rows of every tab named by the "tabs"
// param, in order, after its own input rows. All tables must share the
// input's column layout.
func ConcatTabsModule() Module {
	return Module{
		Spec: ModuleSpec{ID: "concattabs", Version: "1.0", Schema: ParamSchema{
			"tabs": {Type: ParamMultitab},
		}},
		Runner: RunnerFunc(func(_ context.Context, req RenderRequest) (RenderResult, error) {
			slugs := multitabSlugs(req.Params["tabs"])
			if len(slugs) == 0 {
				return ErrorResult("concattabs: no tabs configured"), nil
			}

			out := Table{Columns: req.Input.Columns, Rows: req.Input.Rows}
			for _, slug := range slugs {
				in, ok := req.TabInputs[slug]
				if !ok {
					return ErrorResult(fmt.Sprintf("concattabs: tab %q does not exist", slug)), nil
				}
				if len(out.Columns) == 0 {
					out.Columns = in.Table.Columns
				} else if !sameColumns(out.Columns, in.Table.Columns) {
					return ErrorResult(fmt.Sprintf("concattabs: tab %q has a different column layout", slug)), nil
				}
				out.Rows = append(out.Rows, in.Table.Rows...)
			}
			return RenderResult{Table: out}, nil
		}),
	}
}

func multitabSlugs(v any) []string {
	switch vs := v.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, item := range vs {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func sameColumns(a, b []Column) bool {
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

func cloneTable(t Table) Table {
	out := Table{Columns: append([]api.Column(nil), t.Columns...)}
	out.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}
