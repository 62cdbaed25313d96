package activities

import (
	"fmt"

	"github.com/deepnoodle-ai/floe"
	"github.com/deepnoodle-ai/floe/script"
)

// RunScriptActivity evaluates a script with the visible variables and the
// activity input as globals. The result is recorded as the "result" output
// and optionally stored under the variable named by the "store" property.
type RunScriptActivity struct {
	compiler script.Compiler
}

// NewRunScriptActivity creates the activity. When compiler is nil a Risor
// engine is built per execution so the compile-time global names match the
// variables visible to the activity.
func NewRunScriptActivity(compiler script.Compiler) *RunScriptActivity {
	return &RunScriptActivity{compiler: compiler}
}

func (a *RunScriptActivity) TypeName() string {
	return "runScript"
}

func (a *RunScriptActivity) Execute(aec *floe.ActivityExecutionContext) error {
	source := aec.PropertyString("script")
	if source == "" {
		return fmt.Errorf("runScript activity %q requires a 'script' property", aec.Node().ID)
	}
	globals := aec.VisibleVariables()
	for name, value := range aec.Input() {
		globals[name] = value
	}
	compiler := a.compiler
	if compiler == nil {
		compiler = script.NewRisorScriptingEngine(globals)
	}
	compiled, err := compiler.Compile(aec.Context(), source)
	if err != nil {
		return fmt.Errorf("failed to compile script on activity %q: %w", aec.Node().ID, err)
	}
	result, err := compiled.Evaluate(aec.Context(), globals)
	if err != nil {
		return fmt.Errorf("script failed on activity %q: %w", aec.Node().ID, err)
	}
	value := result.Value()
	aec.SetOutput("result", value)
	if store := aec.PropertyString("store"); store != "" {
		if err := aec.SetVariable(store, value); err != nil {
			return err
		}
	}
	aec.Complete()
	return nil
}
