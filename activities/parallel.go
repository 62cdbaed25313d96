package activities

import (
	"github.com/deepnoodle-ai/floe"
)

// ParallelActivity schedules all of its children in one turn and completes
// when every child has reached a terminal status. Children still execute
// cooperatively on the workflow's single logical thread; parallelism here
// means interleaved progress, with suspension points (bookmarks) outstanding
// at the same time.
type ParallelActivity struct{}

func NewParallelActivity() *ParallelActivity {
	return &ParallelActivity{}
}

func (a *ParallelActivity) TypeName() string {
	return "parallel"
}

func (a *ParallelActivity) Execute(aec *floe.ActivityExecutionContext) error {
	children := aec.Node().Port("do")
	if len(children) == 0 {
		aec.Complete()
		return nil
	}
	// Re-execution after an interrupted run only schedules children that
	// never got a context.
	started := map[string]bool{}
	for _, liveChild := range aec.Children() {
		started[liveChild.Node().ID] = true
	}
	// Prepend in reverse so the children sit at the front of the queue in
	// listed order, ahead of sibling work scheduled earlier by ancestors.
	scheduled := false
	for i := len(children) - 1; i >= 0; i-- {
		child := children[i]
		if started[child.ID] {
			continue
		}
		scheduled = true
		if err := aec.ScheduleChild(child, floe.ScheduleOptions{Prepend: true}); err != nil {
			return err
		}
	}
	if !scheduled && !aec.HasPendingWork() {
		aec.Complete()
	}
	return nil
}

func (a *ParallelActivity) ChildCompleted(aec *floe.ActivityExecutionContext, child *floe.ActivityExecutionContext) error {
	children := aec.Node().Port("do")
	terminal := 0
	for _, liveChild := range aec.Children() {
		if liveChild.Status().IsTerminal() {
			terminal++
		}
	}
	if terminal >= len(children) {
		aec.Complete()
	}
	return nil
}
