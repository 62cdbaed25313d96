package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRisorEngineEvaluation(t *testing.T) {
	ctx := context.Background()

	t.Run("arithmetic with globals", func(t *testing.T) {
		engine := NewRisorScriptingEngine(map[string]any{"base": 40})
		compiled, err := engine.Compile(ctx, "base + 2")
		require.NoError(t, err)
		result, err := compiled.Evaluate(ctx, nil)
		require.NoError(t, err)
		require.EqualValues(t, 42, result.Value())
	})

	t.Run("evaluation-time globals override engine globals", func(t *testing.T) {
		engine := NewRisorScriptingEngine(map[string]any{"base": 1})
		compiled, err := engine.Compile(ctx, "base * 3")
		require.NoError(t, err)
		result, err := compiled.Evaluate(ctx, map[string]any{"base": 5})
		require.NoError(t, err)
		require.EqualValues(t, 15, result.Value())
	})

	t.Run("lists and maps convert to go values", func(t *testing.T) {
		engine := NewRisorScriptingEngine(nil)
		compiled, err := engine.Compile(ctx, `{"items": [1, 2, 3]}`)
		require.NoError(t, err)
		result, err := compiled.Evaluate(ctx, nil)
		require.NoError(t, err)
		value, ok := result.Value().(map[string]any)
		require.True(t, ok)
		items, err := NewGoValue(value["items"]).Items()
		require.NoError(t, err)
		require.Len(t, items, 3)
	})

	t.Run("parse errors surface at compile time", func(t *testing.T) {
		engine := NewRisorScriptingEngine(nil)
		_, err := engine.Compile(ctx, "func (")
		require.Error(t, err)
	})
}
