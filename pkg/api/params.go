package api

import (
	"fmt"
	"sort"
)

// ParamType enumerates the leaf and container types a module's
// parameter schema may use.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamFloat   ParamType = "float"
	ParamBoolean ParamType = "boolean"

	// ParamTab holds the slug of another tab whose output feeds this
	// step.
	ParamTab ParamType = "tab"

	// ParamMultitab holds an ordered list of tab slugs. A multitab
	// param depends on tab ordering, not just tab identity: reordering
	// tabs can change its effective value.
	ParamMultitab ParamType = "multitab"

	ParamList ParamType = "list"
	ParamDict ParamType = "dict"
)

// ParamDef is one node of a parameter schema tree.
type ParamDef struct {
	Type ParamType

	// Inner is the element schema for ParamList.
	Inner *ParamDef

	// Fields is the member schema for ParamDict.
	Fields map[string]ParamDef

	Default any
}

// ParamSchema is the top-level schema of a module: named parameters,
// each with its own definition.
type ParamSchema map[string]ParamDef

// Params holds a step's parameter values, keyed per the module's
// ParamSchema.
type Params map[string]any

// Clone shallow-copies one level of nesting deep enough for our value
// set: leaves are strings/numbers/bools, containers are []any and
// map[string]any.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// TabSlugRefs walks params under the schema and collects every tab slug
// referenced by a ParamTab or ParamMultitab leaf. Unknown or
// wrongly-typed values are skipped; they surface as module-level errors
// at render time, not here.
func (s ParamSchema) TabSlugRefs(params Params) []string {
	seen := make(map[string]bool)
	for name, def := range s {
		collectTabRefs(def, params[name], seen)
	}
	out := make([]string, 0, len(seen))
	for slug := range seen {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

func collectTabRefs(def ParamDef, value any, seen map[string]bool) {
	switch def.Type {
	case ParamTab:
		if slug, ok := value.(string); ok && slug != "" {
			seen[slug] = true
		}
	case ParamMultitab:
		switch vs := value.(type) {
		case []string:
			for _, slug := range vs {
				if slug != "" {
					seen[slug] = true
				}
			}
		case []any:
			for _, v := range vs {
				if slug, ok := v.(string); ok && slug != "" {
					seen[slug] = true
				}
			}
		}
	case ParamList:
		if def.Inner == nil {
			return
		}
		if items, ok := value.([]any); ok {
			for _, item := range items {
				collectTabRefs(*def.Inner, item, seen)
			}
		}
	case ParamDict:
		m, ok := value.(map[string]any)
		if !ok {
			return
		}
		for name, inner := range def.Fields {
			collectTabRefs(inner, m[name], seen)
		}
	}
}

// Validate checks params against the schema: every supplied key must
// exist in the schema and hold a value of the declared shape. Missing
// keys are fine; modules fall back to defaults.
func (s ParamSchema) Validate(params Params) error {
	for name, value := range params {
		def, ok := s[name]
		if !ok {
			return fmt.Errorf("unknown param %q", name)
		}
		if err := validateValue(name, def, value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(name string, def ParamDef, value any) error {
	if value == nil {
		return nil
	}
	switch def.Type {
	case ParamString, ParamTab:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("param %q: expected string, got %T", name, value)
		}
	case ParamFloat:
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("param %q: expected number, got %T", name, value)
		}
	case ParamBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("param %q: expected bool, got %T", name, value)
		}
	case ParamMultitab:
		switch vs := value.(type) {
		case []string:
		case []any:
			for _, v := range vs {
				if _, ok := v.(string); !ok {
					return fmt.Errorf("param %q: expected tab slug string, got %T", name, v)
				}
			}
		default:
			return fmt.Errorf("param %q: expected slug list, got %T", name, value)
		}
	case ParamList:
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("param %q: expected list, got %T", name, value)
		}
		if def.Inner != nil {
			for _, item := range items {
				if err := validateValue(name, *def.Inner, item); err != nil {
					return err
				}
			}
		}
	case ParamDict:
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("param %q: expected dict, got %T", name, value)
		}
		for k, v := range m {
			inner, ok := def.Fields[k]
			if !ok {
				return fmt.Errorf("param %q: unknown field %q", name, k)
			}
			if err := validateValue(name+"."+k, inner, v); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("param %q: unknown type %q", name, def.Type)
	}
	return nil
}
