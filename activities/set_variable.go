package activities

import (
	"fmt"

	"github.com/deepnoodle-ai/floe"
	"github.com/deepnoodle-ai/floe/script"
)

// SetVariableActivity writes a value to a workflow variable. The value comes
// from a "value" literal or an "expression" evaluated against the visible
// variables.
type SetVariableActivity struct {
	compiler script.Compiler
}

func NewSetVariableActivity(compiler script.Compiler) *SetVariableActivity {
	if compiler == nil {
		compiler = script.NewExprScriptingEngine(nil)
	}
	return &SetVariableActivity{compiler: compiler}
}

func (a *SetVariableActivity) TypeName() string {
	return "setVariable"
}

func (a *SetVariableActivity) Execute(aec *floe.ActivityExecutionContext) error {
	name := aec.PropertyString("name")
	if name == "" {
		return fmt.Errorf("setVariable activity %q requires a 'name' property", aec.Node().ID)
	}
	value, ok := aec.Property("value")
	if !ok {
		expression := aec.PropertyString("expression")
		if expression == "" {
			return fmt.Errorf("setVariable activity %q requires a 'value' or 'expression' property", aec.Node().ID)
		}
		compiled, err := a.compiler.Compile(aec.Context(), expression)
		if err != nil {
			return fmt.Errorf("invalid expression on activity %q: %w", aec.Node().ID, err)
		}
		result, err := compiled.Evaluate(aec.Context(), aec.VisibleVariables())
		if err != nil {
			return fmt.Errorf("expression evaluation failed on activity %q: %w", aec.Node().ID, err)
		}
		value = result.Value()
	}
	if err := aec.SetVariable(name, value); err != nil {
		return err
	}
	aec.SetOutput("value", value)
	aec.Complete()
	return nil
}
