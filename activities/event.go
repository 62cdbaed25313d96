package activities

import (
	"github.com/deepnoodle-ai/floe"
)

// EventActivity suspends the workflow until an external event arrives. It
// creates a bookmark named after the "event" property (falling back to the
// node ID) and completes when the bookmark is resumed. The resumption
// payload, if any, is stored under the variable named by the "store"
// property.
type EventActivity struct{}

func NewEventActivity() *EventActivity {
	return &EventActivity{}
}

func (a *EventActivity) TypeName() string {
	return "event"
}

func (a *EventActivity) eventName(aec *floe.ActivityExecutionContext) string {
	if name := aec.PropertyString("event"); name != "" {
		return name
	}
	return aec.Node().ID
}

func (a *EventActivity) Execute(aec *floe.ActivityExecutionContext) error {
	aec.CreateBookmark(floe.BookmarkOptions{
		Name:               a.eventName(aec),
		CallbackMethodName: "Resume",
	})
	return nil
}

func (a *EventActivity) Resume(aec *floe.ActivityExecutionContext, bookmark *floe.Bookmark) error {
	if store := aec.PropertyString("store"); store != "" {
		if err := aec.SetVariable(store, copyOf(aec.Input())); err != nil {
			return err
		}
	}
	return nil
}

func copyOf(m map[string]any) map[string]any {
	copied := make(map[string]any, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return copied
}
