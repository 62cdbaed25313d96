package activities

import (
	"fmt"

	"github.com/deepnoodle-ai/floe"
	"github.com/deepnoodle-ai/floe/script"
)

// IfActivity evaluates a condition and schedules either its "then" or "else"
// port. The condition is a boolean literal or an expression compiled with the
// configured script engine and evaluated against the visible variables.
type IfActivity struct {
	compiler script.Compiler
}

func NewIfActivity(compiler script.Compiler) *IfActivity {
	if compiler == nil {
		compiler = script.NewExprScriptingEngine(nil)
	}
	return &IfActivity{compiler: compiler}
}

func (a *IfActivity) TypeName() string {
	return "if"
}

func (a *IfActivity) Execute(aec *floe.ActivityExecutionContext) error {
	truthy, err := a.evaluateCondition(aec)
	if err != nil {
		return err
	}
	port := "else"
	if truthy {
		port = "then"
	}
	branch := aec.Node().Port(port)
	if len(branch) == 0 {
		aec.Complete(port)
		return nil
	}
	aec.SetProperty("branch", port)
	return aec.ScheduleChild(branch[0], floe.ScheduleOptions{Prepend: true})
}

func (a *IfActivity) ChildCompleted(aec *floe.ActivityExecutionContext, child *floe.ActivityExecutionContext) error {
	branch, _ := aec.Properties()["branch"].(string)
	aec.Complete(branch)
	return nil
}

func (a *IfActivity) evaluateCondition(aec *floe.ActivityExecutionContext) (bool, error) {
	condition, ok := aec.Property("condition")
	if !ok {
		return false, fmt.Errorf("if activity %q requires a 'condition' property", aec.Node().ID)
	}
	switch v := condition.(type) {
	case bool:
		return v, nil
	case string:
		compiled, err := a.compiler.Compile(aec.Context(), v)
		if err != nil {
			return false, fmt.Errorf("invalid condition on activity %q: %w", aec.Node().ID, err)
		}
		result, err := compiled.Evaluate(aec.Context(), aec.VisibleVariables())
		if err != nil {
			return false, fmt.Errorf("condition evaluation failed on activity %q: %w", aec.Node().ID, err)
		}
		return result.IsTruthy(), nil
	default:
		return false, fmt.Errorf("condition on activity %q must be bool or string, got %T", aec.Node().ID, condition)
	}
}
