package script

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprScriptingEngine compiles and evaluates expr-lang expressions. It is the
// default engine for condition evaluation; use the Risor engine for full
// scripts.
type ExprScriptingEngine struct {
	env map[string]any
}

// NewExprScriptingEngine creates an engine with the given base environment.
// Evaluation-time globals are merged over it.
func NewExprScriptingEngine(env map[string]any) *ExprScriptingEngine {
	return &ExprScriptingEngine{env: env}
}

func (e *ExprScriptingEngine) Compile(ctx context.Context, code string) (Script, error) {
	program, err := expr.Compile(code, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", err)
	}
	return &exprScript{engine: e, program: program}, nil
}

type exprScript struct {
	engine  *ExprScriptingEngine
	program *vm.Program
}

func (s *exprScript) Evaluate(ctx context.Context, globals map[string]any) (Value, error) {
	env := make(map[string]any, len(s.engine.env)+len(globals))
	for name, value := range s.engine.env {
		env[name] = value
	}
	for name, value := range globals {
		env[name] = value
	}
	result, err := expr.Run(s.program, env)
	if err != nil {
		return nil, fmt.Errorf("expression evaluation failed: %w", err)
	}
	return NewGoValue(result), nil
}
