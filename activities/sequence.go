package activities

import (
	"github.com/deepnoodle-ai/floe"
)

// SequenceActivity runs its children one after another. Progress is kept as a
// position property so it survives suspension and state round-trips.
type SequenceActivity struct{}

func NewSequenceActivity() *SequenceActivity {
	return &SequenceActivity{}
}

func (a *SequenceActivity) TypeName() string {
	return "sequence"
}

func (a *SequenceActivity) Execute(aec *floe.ActivityExecutionContext) error {
	children := aec.Node().Port("do")
	if len(children) == 0 {
		aec.Complete()
		return nil
	}
	// Re-execution after an interrupted run resumes at the recorded position.
	position := 0
	if _, ok := aec.Properties()["position"]; ok {
		position = intProperty(aec, "position")
	}
	if position >= len(children) {
		aec.Complete()
		return nil
	}
	aec.SetProperty("position", position)
	if hasLiveChild(aec, children[position]) {
		return nil
	}
	return aec.ScheduleChild(children[position], floe.ScheduleOptions{Prepend: true})
}

// hasLiveChild reports whether a non-terminal context already exists for the
// given child node. Guards resumed composites against double-scheduling.
func hasLiveChild(aec *floe.ActivityExecutionContext, node *floe.ActivityNode) bool {
	for _, child := range aec.Children() {
		if child.Node().ID == node.ID && !child.Status().IsTerminal() {
			return true
		}
	}
	return false
}

func (a *SequenceActivity) ChildCompleted(aec *floe.ActivityExecutionContext, child *floe.ActivityExecutionContext) error {
	if child.Status() != floe.ActivityStatusCompleted {
		// A contained fault or cancellation stops the sequence.
		aec.Complete(string(child.Status()))
		return nil
	}
	children := aec.Node().Port("do")
	position := intProperty(aec, "position") + 1
	if position >= len(children) {
		aec.Complete()
		return nil
	}
	aec.SetProperty("position", position)
	return aec.ScheduleChild(children[position], floe.ScheduleOptions{Prepend: true})
}

// intProperty reads a numeric runtime property, tolerating the float64 form
// that JSON state round-trips produce.
func intProperty(aec *floe.ActivityExecutionContext, name string) int {
	value, ok := aec.Properties()[name]
	if !ok {
		return 0
	}
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
