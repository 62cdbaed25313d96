package floe

import (
	"context"
	"log/slog"
	"time"
)

// ActivityStatus represents the lifecycle status of an activity execution
// context.
type ActivityStatus string

const (
	ActivityStatusPending   ActivityStatus = "pending"
	ActivityStatusRunning   ActivityStatus = "running"
	ActivityStatusCompleted ActivityStatus = "completed"
	ActivityStatusFaulted   ActivityStatus = "faulted"
	ActivityStatusCancelled ActivityStatus = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s ActivityStatus) IsTerminal() bool {
	switch s {
	case ActivityStatusCompleted, ActivityStatusFaulted, ActivityStatusCancelled:
		return true
	}
	return false
}

// OutcomeDone is the default outcome reported by Complete.
const OutcomeDone = "done"

// ActivityExecutionContext holds runtime state for one in-flight activity.
// Every context belongs to exactly one workflow execution context; the tree
// structure is kept as parent IDs in the workflow's flat table rather than
// back-pointers, so navigation goes through lookup.
type ActivityExecutionContext struct {
	id          string
	wec         *WorkflowExecutionContext
	node        *ActivityNode
	parentID    string
	status      ActivityStatus
	outcome     string
	tag         string
	properties  map[string]any
	input       map[string]any
	output      map[string]any
	memory      *MemoryRegister
	isExecuting bool
	startedAt   time.Time
	completedAt time.Time
}

// ID returns the unique identifier of this context.
func (aec *ActivityExecutionContext) ID() string {
	return aec.id
}

// Node returns the definition-time activity this context executes.
func (aec *ActivityExecutionContext) Node() *ActivityNode {
	return aec.node
}

// NodeID returns the node's path from the root of the graph.
func (aec *ActivityExecutionContext) NodeID() string {
	return aec.wec.graph.NodeID(aec.node)
}

// Parent returns the parent context, or nil for the root.
func (aec *ActivityExecutionContext) Parent() *ActivityExecutionContext {
	if aec.parentID == "" {
		return nil
	}
	parent, _ := aec.wec.ActivityExecution(aec.parentID)
	return parent
}

// Children returns the live child contexts in creation order.
func (aec *ActivityExecutionContext) Children() []*ActivityExecutionContext {
	var children []*ActivityExecutionContext
	for _, candidate := range aec.wec.ActivityExecutions() {
		if candidate.parentID == aec.id {
			children = append(children, candidate)
		}
	}
	return children
}

// Status returns the current lifecycle status.
func (aec *ActivityExecutionContext) Status() ActivityStatus {
	return aec.status
}

// Outcome returns the outcome reported at completion, or "" while running.
func (aec *ActivityExecutionContext) Outcome() string {
	return aec.outcome
}

// Tag returns the tag the scheduler attached to this context, if any.
func (aec *ActivityExecutionContext) Tag() string {
	return aec.tag
}

// IsExecuting reports whether the activity still owns uncompleted work.
func (aec *ActivityExecutionContext) IsExecuting() bool {
	return aec.isExecuting
}

// StartedAt returns when this context first began running.
func (aec *ActivityExecutionContext) StartedAt() time.Time {
	return aec.startedAt
}

// CompletedAt returns when this context reached a terminal status.
func (aec *ActivityExecutionContext) CompletedAt() time.Time {
	return aec.completedAt
}

// Context returns the cancellation context of the current turn.
func (aec *ActivityExecutionContext) Context() context.Context {
	return aec.wec.TurnContext()
}

// Logger returns the workflow's logger scoped to this activity.
func (aec *ActivityExecutionContext) Logger() *slog.Logger {
	return aec.wec.Logger().With("activity_id", aec.node.ID, "aec_id", aec.id)
}

// WorkflowExecution returns the owning workflow execution context.
func (aec *ActivityExecutionContext) WorkflowExecution() *WorkflowExecutionContext {
	return aec.wec
}

// Memory returns this context's local memory register.
func (aec *ActivityExecutionContext) Memory() *MemoryRegister {
	return aec.memory
}

// Input returns the resumption or scheduling input attached to this context.
func (aec *ActivityExecutionContext) Input() map[string]any {
	return aec.input
}

// GetInput returns a single input value.
func (aec *ActivityExecutionContext) GetInput(name string) (any, bool) {
	value, ok := aec.input[name]
	return value, ok
}

// MergeInput adds the given values to the context's input map.
func (aec *ActivityExecutionContext) MergeInput(values map[string]any) {
	if len(values) == 0 {
		return
	}
	if aec.input == nil {
		aec.input = map[string]any{}
	}
	for k, v := range values {
		aec.input[k] = v
	}
}

// Output returns the context's output map.
func (aec *ActivityExecutionContext) Output() map[string]any {
	return aec.output
}

// SetOutput records a named output value.
func (aec *ActivityExecutionContext) SetOutput(name string, value any) {
	if aec.output == nil {
		aec.output = map[string]any{}
	}
	aec.output[name] = value
}

// Properties returns the context's free-form runtime properties.
func (aec *ActivityExecutionContext) Properties() map[string]any {
	return aec.properties
}

// SetProperty records a free-form runtime property.
func (aec *ActivityExecutionContext) SetProperty(name string, value any) {
	if aec.properties == nil {
		aec.properties = map[string]any{}
	}
	aec.properties[name] = value
}

// Property returns a definition-time property of the activity node.
func (aec *ActivityExecutionContext) Property(name string) (any, bool) {
	value, ok := aec.node.Properties[name]
	return value, ok
}

// PropertyString returns a definition-time property as a string.
func (aec *ActivityExecutionContext) PropertyString(name string) string {
	value, ok := aec.node.Properties[name]
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

// GetVariable resolves a variable by name through the register chain.
func (aec *ActivityExecutionContext) GetVariable(name string) (any, bool, error) {
	return aec.memory.GetNamed(name)
}

// SetVariable binds a variable by name in the nearest declaring register, or
// dynamically on this context's register.
func (aec *ActivityExecutionContext) SetVariable(name string, value any) error {
	return aec.memory.SetNamed(name, value)
}

// VisibleVariables returns the variables visible from this context as a
// name-value map.
func (aec *ActivityExecutionContext) VisibleVariables() map[string]any {
	return aec.memory.Visible()
}

// Bookmarks returns the bookmarks owned by this context.
func (aec *ActivityExecutionContext) Bookmarks() []*Bookmark {
	var owned []*Bookmark
	for _, bookmark := range aec.wec.Bookmarks() {
		if bookmark.ActivityInstanceID == aec.id {
			owned = append(owned, bookmark)
		}
	}
	return owned
}

// CreateBookmark registers a resumption point owned by this context and
// leaves the context executing until the bookmark is resumed.
func (aec *ActivityExecutionContext) CreateBookmark(opts BookmarkOptions) *Bookmark {
	autoBurn := true
	if opts.AutoBurn != nil {
		autoBurn = *opts.AutoBurn
	}
	autoComplete := true
	if opts.AutoComplete != nil {
		autoComplete = *opts.AutoComplete
	}
	bookmark := &Bookmark{
		ID:                 aec.wec.identity.NewBookmarkID(),
		ActivityNodeID:     aec.NodeID(),
		ActivityInstanceID: aec.id,
		Name:               opts.Name,
		Hash:               BookmarkHash(opts.Name, opts.Payload),
		Payload:            copyMap(opts.Payload),
		CallbackMethodName: opts.CallbackMethodName,
		AutoBurn:           autoBurn,
		AutoComplete:       autoComplete,
		CreatedAt:          aec.wec.now(),
	}
	aec.wec.addBookmark(bookmark)
	aec.wec.journal(ExecutionLogBookmarkCreated, aec, map[string]any{
		"bookmark_id": bookmark.ID,
		"name":        bookmark.Name,
	})
	return bookmark
}

// ScheduleOptions configures a child activity scheduled by a composite.
type ScheduleOptions struct {
	Tag       string
	Input     map[string]any
	Variables map[string]any

	// Prepend gives the child stack-like priority so that it executes before
	// sibling work scheduled earlier at the same depth.
	Prepend bool
}

// ScheduleChild schedules a child activity under this context. The node must
// belong to the workflow graph.
func (aec *ActivityExecutionContext) ScheduleChild(node *ActivityNode, opts ScheduleOptions) error {
	if !aec.wec.graph.Contains(node) {
		return NewEngineErrorf(ErrorKindScheduleRejected, "activity %q is not part of the workflow graph", node.ID)
	}
	item := &WorkItem{
		Kind:      WorkItemStart,
		Node:      node,
		Owner:     aec,
		Tag:       opts.Tag,
		Input:     copyMap(opts.Input),
		Variables: copyMap(opts.Variables),
	}
	if opts.Prepend {
		aec.wec.scheduler.SchedulePrepend(item)
	} else {
		aec.wec.scheduler.Schedule(item)
	}
	return nil
}

// Complete marks the context completed with the given outcome, journals the
// transition, and schedules the parent continuation. The context stops
// executing; it is retained while it still owns bookmarks so that external
// resumptions can find it.
func (aec *ActivityExecutionContext) Complete(outcomes ...string) {
	if aec.status.IsTerminal() {
		return
	}
	outcome := OutcomeDone
	if len(outcomes) > 0 {
		outcome = outcomes[0]
	}
	aec.status = ActivityStatusCompleted
	aec.outcome = outcome
	aec.completedAt = aec.wec.now()
	aec.isExecuting = false
	aec.wec.journal(ExecutionLogActivityCompleted, aec, map[string]any{"outcome": outcome})
	aec.wec.onActivityTerminal(aec)
}

// Fault transitions the context to faulted, records an incident on the
// workflow, and applies the configured fault strategy.
func (aec *ActivityExecutionContext) Fault(err error) {
	aec.wec.faultActivity(aec, err)
}

// Cancel cancels this context and its live descendants, burns their
// bookmarks, and drops their pending scheduler items.
func (aec *ActivityExecutionContext) Cancel() {
	aec.wec.cancelActivity(aec)
}

// HasPendingWork reports whether the context owns bookmarks or has children
// that are not yet terminal.
func (aec *ActivityExecutionContext) HasPendingWork() bool {
	if len(aec.Bookmarks()) > 0 {
		return true
	}
	for _, child := range aec.Children() {
		if !child.status.IsTerminal() {
			return true
		}
	}
	return false
}
