package script

import (
	"context"
	"fmt"
	"strings"
)

// Value represents the result of a script evaluation.
type Value interface {

	// Value returns the Go value for this value as an any
	Value() any

	// Items returns the items for this value as an array of any
	Items() ([]any, error)

	// String returns the string representation of this value
	String() string

	// IsTruthy returns true if this value is truthy
	IsTruthy() bool
}

// Script represents a compiled script that can be evaluated.
type Script interface {
	Evaluate(ctx context.Context, globals map[string]any) (Value, error)
}

// Compiler is an interface used to compile source code into a Script.
type Compiler interface {
	Compile(ctx context.Context, code string) (Script, error)
}

// GoValue wraps a plain Go value as a script Value. Both engines normalize
// their results to Go values before wrapping.
type GoValue struct {
	v any
}

// NewGoValue wraps a Go value.
func NewGoValue(v any) *GoValue {
	return &GoValue{v: v}
}

func (g *GoValue) Value() any {
	return g.v
}

func (g *GoValue) String() string {
	switch v := g.v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (g *GoValue) IsTruthy() bool {
	switch v := g.v.(type) {
	case nil:
		return false
	case bool:
		return v
	case int:
		return v != 0
	case int32:
		return v != 0
	case int64:
		return v != 0
	case uint64:
		return v != 0
	case float32:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != "" && strings.ToLower(v) != "false"
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

func (g *GoValue) Items() ([]any, error) {
	switch v := g.v.(type) {
	case []any:
		return v, nil
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return items, nil
	case []int:
		items := make([]any, len(v))
		for i, n := range v {
			items[i] = n
		}
		return items, nil
	case []float64:
		items := make([]any, len(v))
		for i, f := range v {
			items[i] = f
		}
		return items, nil
	case map[string]any:
		var items []any
		for key, value := range v {
			items = append(items, map[string]any{"key": key, "value": value})
		}
		return items, nil
	case string, int, int32, int64, uint64, float32, float64, bool:
		return []any{v}, nil
	default:
		return nil, fmt.Errorf("unsupported value type for iteration: %T", g.v)
	}
}
