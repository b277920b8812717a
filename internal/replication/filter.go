package replication

import (
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/guidewire-oss/nosql2sql/internal/mapping"
)

// Filter decides with a CEL expression whether a document is replicated.
// The document is bound to the variable `doc`, for example
// `doc.recordType != "audit"`.
type Filter struct {
	expr    string
	program cel.Program
}

// NewFilter compiles expr. A result other than bool fails at evaluation.
func NewFilter(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program creation error: %w", err)
	}
	return &Filter{expr: expr, program: program}, nil
}

func (f *Filter) String() string { return f.expr }

// Match reports whether doc passes the filter.
func (f *Filter) Match(doc mapping.Document) (bool, error) {
	out, _, err := f.program.Eval(map[string]any{"doc": celValue(map[string]any(doc))})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter %q: %w", f.expr, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T", f.expr, out.Value())
	}
	return matched, nil
}

// celValue converts the document value model into types CEL understands.
// Numbers become doubles.
func celValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case mapping.Document:
		return celValue(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = celValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = celValue(item)
		}
		return out
	default:
		return v
	}
}
