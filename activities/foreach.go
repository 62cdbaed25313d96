package activities

import (
	"fmt"

	"github.com/deepnoodle-ai/floe"
	"github.com/deepnoodle-ai/floe/script"
)

// ForEachActivity runs its single body child once per item, binding the item
// to a loop variable. Items come from an "items" property: a list literal or
// an expression evaluated against the visible variables.
type ForEachActivity struct {
	compiler script.Compiler
}

func NewForEachActivity(compiler script.Compiler) *ForEachActivity {
	if compiler == nil {
		compiler = script.NewExprScriptingEngine(nil)
	}
	return &ForEachActivity{compiler: compiler}
}

func (a *ForEachActivity) TypeName() string {
	return "forEach"
}

func (a *ForEachActivity) loopVariable(aec *floe.ActivityExecutionContext) string {
	if as := aec.PropertyString("as"); as != "" {
		return as
	}
	return "item"
}

func (a *ForEachActivity) Execute(aec *floe.ActivityExecutionContext) error {
	body := aec.Node().Port("do")
	if len(body) != 1 {
		return fmt.Errorf("forEach activity %q requires exactly one body child, got %d", aec.Node().ID, len(body))
	}
	// Re-execution after an interrupted run resumes at the recorded position
	// over the recorded items.
	items, hadItems := aec.Properties()["items"].([]any)
	position := 0
	if hadItems {
		position = intProperty(aec, "position")
	} else {
		var err error
		if items, err = a.resolveItems(aec); err != nil {
			return err
		}
	}
	if position >= len(items) {
		aec.Complete()
		return nil
	}
	aec.SetProperty("items", items)
	aec.SetProperty("position", position)
	if hasLiveChild(aec, body[0]) {
		return nil
	}
	return a.scheduleIteration(aec, body[0], items[position])
}

func (a *ForEachActivity) ChildCompleted(aec *floe.ActivityExecutionContext, child *floe.ActivityExecutionContext) error {
	if child.Status() != floe.ActivityStatusCompleted {
		aec.Complete(string(child.Status()))
		return nil
	}
	items, _ := aec.Properties()["items"].([]any)
	position := intProperty(aec, "position") + 1
	if position >= len(items) {
		aec.Complete()
		return nil
	}
	aec.SetProperty("position", position)
	return a.scheduleIteration(aec, aec.Node().Port("do")[0], items[position])
}

func (a *ForEachActivity) scheduleIteration(aec *floe.ActivityExecutionContext, body *floe.ActivityNode, item any) error {
	return aec.ScheduleChild(body, floe.ScheduleOptions{
		Prepend:   true,
		Variables: map[string]any{a.loopVariable(aec): item},
	})
}

func (a *ForEachActivity) resolveItems(aec *floe.ActivityExecutionContext) ([]any, error) {
	raw, ok := aec.Property("items")
	if !ok {
		return nil, fmt.Errorf("forEach activity %q requires an 'items' property", aec.Node().ID)
	}
	if expression, isString := raw.(string); isString {
		compiled, err := a.compiler.Compile(aec.Context(), expression)
		if err != nil {
			return nil, fmt.Errorf("invalid items expression on activity %q: %w", aec.Node().ID, err)
		}
		result, err := compiled.Evaluate(aec.Context(), aec.VisibleVariables())
		if err != nil {
			return nil, fmt.Errorf("items evaluation failed on activity %q: %w", aec.Node().ID, err)
		}
		return result.Items()
	}
	return script.NewGoValue(raw).Items()
}
