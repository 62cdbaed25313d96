package floe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"
)

// WorkflowStatus is the coarse status of a workflow run.
type WorkflowStatus string

const (
	WorkflowStatusRunning  WorkflowStatus = "running"
	WorkflowStatusFinished WorkflowStatus = "finished"
)

// WorkflowSubStatus refines the workflow status.
type WorkflowSubStatus string

const (
	WorkflowSubStatusPending   WorkflowSubStatus = "pending"
	WorkflowSubStatusExecuting WorkflowSubStatus = "executing"
	WorkflowSubStatusSuspended WorkflowSubStatus = "suspended"
	WorkflowSubStatusFinished  WorkflowSubStatus = "finished"
	WorkflowSubStatusFaulted   WorkflowSubStatus = "faulted"
	WorkflowSubStatusCancelled WorkflowSubStatus = "cancelled"
)

// Execution log event names.
const (
	ExecutionLogWorkflowStarted   = "workflow_started"
	ExecutionLogWorkflowSuspended = "workflow_suspended"
	ExecutionLogWorkflowFinished  = "workflow_finished"
	ExecutionLogWorkflowCancelled = "workflow_cancelled"
	ExecutionLogActivityStarted   = "activity_started"
	ExecutionLogActivityResumed   = "activity_resumed"
	ExecutionLogActivityCompleted = "activity_completed"
	ExecutionLogActivityFaulted   = "activity_faulted"
	ExecutionLogActivityCancelled = "activity_cancelled"
	ExecutionLogBookmarkCreated   = "bookmark_created"
	ExecutionLogBookmarkBurned    = "bookmark_burned"
)

// LogEntry is one record in the workflow's append-only execution log.
type LogEntry struct {
	Timestamp          time.Time      `json:"timestamp"`
	Event              string         `json:"event"`
	ActivityInstanceID string         `json:"activity_instance_id,omitempty"`
	ActivityNodeID     string         `json:"activity_node_id,omitempty"`
	Data               map[string]any `json:"data,omitempty"`
}

// WorkflowExecutionContextOptions configures a new workflow execution context.
type WorkflowExecutionContextOptions struct {
	Graph                    *WorkflowGraph
	InstanceID               string
	CorrelationID            string
	ParentWorkflowInstanceID string
	TenantID                 string
	Input                    map[string]any
	Properties               map[string]any
	Identity                 IdentityGenerator
	Registry                 *BehaviorRegistry
	Notifier                 NotificationSender
	StorageDrivers           *StorageDriverRegistry
	FaultStrategy            FaultStrategy
	Logger                   *slog.Logger
}

// WorkflowExecutionContext holds all runtime state for one workflow run: the
// flat table of activity execution contexts, the scheduler queue, bookmarks,
// incidents, the root memory register, and the execution log. A single
// context runs on a single logical execution thread; concurrent turns for the
// same instance must be serialized by the hosting layer.
type WorkflowExecutionContext struct {
	graph            *WorkflowGraph
	instanceID       string
	correlationID    string
	parentInstanceID string
	tenantID         string
	status           WorkflowStatus
	subStatus        WorkflowSubStatus
	input            map[string]any
	output           map[string]any
	properties       map[string]any
	aecs             map[string]*ActivityExecutionContext
	aecOrder         []string
	bookmarks        []*Bookmark
	incidents        []*Incident
	scheduler        *Scheduler
	memory           *MemoryRegister
	executionLog     []LogEntry

	identity      IdentityGenerator
	registry      *BehaviorRegistry
	notifier      NotificationSender
	faultStrategy FaultStrategy
	logger        *slog.Logger

	turnCtx context.Context
}

// NewWorkflowExecutionContext creates a fresh context for the given graph.
// Workflow-scoped variables are declared on the root register with their
// default values.
func NewWorkflowExecutionContext(opts WorkflowExecutionContextOptions) (*WorkflowExecutionContext, error) {
	if opts.Graph == nil {
		return nil, fmt.Errorf("workflow graph is required")
	}
	if opts.Identity == nil {
		opts.Identity = NewTypeIDGenerator()
	}
	if opts.Registry == nil {
		opts.Registry = NewBehaviorRegistry()
	}
	if opts.Notifier == nil {
		opts.Notifier = NewNullNotificationSender()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.FaultStrategy == "" {
		opts.FaultStrategy = FaultStrategyPropagate
	}
	if opts.InstanceID == "" {
		opts.InstanceID = opts.Identity.NewWorkflowInstanceID()
	}

	memory := NewMemoryRegister()
	if opts.StorageDrivers != nil {
		memory.BindDrivers(opts.StorageDrivers, opts.InstanceID)
	}
	for _, v := range opts.Graph.Workflow().Variables() {
		memory.DeclareVariable(v, "")
	}

	wec := &WorkflowExecutionContext{
		graph:            opts.Graph,
		instanceID:       opts.InstanceID,
		correlationID:    opts.CorrelationID,
		parentInstanceID: opts.ParentWorkflowInstanceID,
		tenantID:         opts.TenantID,
		status:           WorkflowStatusRunning,
		subStatus:        WorkflowSubStatusPending,
		input:            copyMap(opts.Input),
		output:           map[string]any{},
		properties:       copyMap(opts.Properties),
		aecs:             map[string]*ActivityExecutionContext{},
		scheduler:        NewScheduler(),
		memory:           memory,
		identity:         opts.Identity,
		registry:         opts.Registry,
		notifier:         opts.Notifier,
		faultStrategy:    opts.FaultStrategy,
		logger:           opts.Logger.With("instance_id", opts.InstanceID),
	}
	return wec, nil
}

// InstanceID returns the unique identifier of this run.
func (wec *WorkflowExecutionContext) InstanceID() string { return wec.instanceID }

// CorrelationID returns the caller-supplied correlation identifier.
func (wec *WorkflowExecutionContext) CorrelationID() string { return wec.correlationID }

// SetCorrelationID sets or overrides the correlation identifier.
func (wec *WorkflowExecutionContext) SetCorrelationID(id string) { wec.correlationID = id }

// ParentWorkflowInstanceID returns the parent run's instance ID, if this run
// was started as a child workflow.
func (wec *WorkflowExecutionContext) ParentWorkflowInstanceID() string {
	return wec.parentInstanceID
}

// TenantID returns the tenant identifier carried on this run.
func (wec *WorkflowExecutionContext) TenantID() string { return wec.tenantID }

// Graph returns the workflow graph being executed.
func (wec *WorkflowExecutionContext) Graph() *WorkflowGraph { return wec.graph }

// Status returns the coarse workflow status.
func (wec *WorkflowExecutionContext) Status() WorkflowStatus { return wec.status }

// SubStatus returns the refined workflow status.
func (wec *WorkflowExecutionContext) SubStatus() WorkflowSubStatus { return wec.subStatus }

// Input returns the workflow input map.
func (wec *WorkflowExecutionContext) Input() map[string]any { return wec.input }

// MergeInput merges additional input values onto the workflow input map.
func (wec *WorkflowExecutionContext) MergeInput(values map[string]any) {
	if len(values) == 0 {
		return
	}
	if wec.input == nil {
		wec.input = map[string]any{}
	}
	for k, v := range values {
		wec.input[k] = v
	}
}

// Output returns the workflow output map.
func (wec *WorkflowExecutionContext) Output() map[string]any { return wec.output }

// SetOutput records a workflow output value.
func (wec *WorkflowExecutionContext) SetOutput(name string, value any) {
	wec.output[name] = value
}

// Properties returns the workflow's free-form metadata.
func (wec *WorkflowExecutionContext) Properties() map[string]any { return wec.properties }

// MergeProperties merges the given values into the workflow's properties.
func (wec *WorkflowExecutionContext) MergeProperties(values map[string]any) {
	if wec.properties == nil {
		wec.properties = map[string]any{}
	}
	for k, v := range values {
		wec.properties[k] = v
	}
}

// Scheduler returns the workflow's work queue.
func (wec *WorkflowExecutionContext) Scheduler() *Scheduler { return wec.scheduler }

// Memory returns the root memory register.
func (wec *WorkflowExecutionContext) Memory() *MemoryRegister { return wec.memory }

// Logger returns the workflow-scoped logger.
func (wec *WorkflowExecutionContext) Logger() *slog.Logger { return wec.logger }

// Registry returns the behavior registry used for activity dispatch.
func (wec *WorkflowExecutionContext) Registry() *BehaviorRegistry { return wec.registry }

// Incidents returns the recorded incidents.
func (wec *WorkflowExecutionContext) Incidents() []*Incident { return wec.incidents }

// ExecutionLog returns the append-only journal of state transitions.
func (wec *WorkflowExecutionContext) ExecutionLog() []LogEntry { return wec.executionLog }

// Bookmarks returns the current resumption handles.
func (wec *WorkflowExecutionContext) Bookmarks() []*Bookmark { return wec.bookmarks }

// TurnContext returns the cancellation context of the current turn.
func (wec *WorkflowExecutionContext) TurnContext() context.Context {
	if wec.turnCtx != nil {
		return wec.turnCtx
	}
	return context.Background()
}

// BeginTurn installs the turn's cancellation context and, on the first turn,
// transitions the workflow from pending to executing. It reports whether the
// workflow started during this call.
func (wec *WorkflowExecutionContext) BeginTurn(ctx context.Context) bool {
	wec.turnCtx = ctx
	wec.memory.SetDriverContext(ctx)
	if wec.subStatus == WorkflowSubStatusPending {
		wec.subStatus = WorkflowSubStatusExecuting
		wec.journal(ExecutionLogWorkflowStarted, nil, nil)
		return true
	}
	wec.subStatus = WorkflowSubStatusExecuting
	return false
}

// EndTurn settles the workflow status after the scheduler has drained: the
// workflow finishes when nothing is executing and no bookmarks remain,
// suspends otherwise. Faulted and cancelled are terminal regardless.
func (wec *WorkflowExecutionContext) EndTurn() {
	switch wec.subStatus {
	case WorkflowSubStatusFaulted, WorkflowSubStatusCancelled:
		wec.status = WorkflowStatusFinished
		return
	}
	if !wec.scheduler.HasAny() && len(wec.bookmarks) == 0 && !wec.anyExecuting() {
		wec.status = WorkflowStatusFinished
		wec.subStatus = WorkflowSubStatusFinished
		wec.journal(ExecutionLogWorkflowFinished, nil, nil)
		return
	}
	wec.status = WorkflowStatusRunning
	wec.subStatus = WorkflowSubStatusSuspended
	wec.journal(ExecutionLogWorkflowSuspended, nil, nil)
}

// MarkCancelled transitions the workflow to the cancelled terminal status and
// cancels all live activities.
func (wec *WorkflowExecutionContext) MarkCancelled() {
	for _, aec := range wec.ActivityExecutions() {
		if aec.parentID == "" && !aec.status.IsTerminal() {
			wec.cancelSubtree(aec)
		}
	}
	wec.scheduler.Clear()
	wec.status = WorkflowStatusFinished
	wec.subStatus = WorkflowSubStatusCancelled
	wec.journal(ExecutionLogWorkflowCancelled, nil, nil)
}

func (wec *WorkflowExecutionContext) anyExecuting() bool {
	for _, aec := range wec.aecs {
		if aec.isExecuting {
			return true
		}
	}
	return false
}

// ActivityExecution returns the activity execution context with the given ID.
func (wec *WorkflowExecutionContext) ActivityExecution(id string) (*ActivityExecutionContext, bool) {
	aec, ok := wec.aecs[id]
	return aec, ok
}

// ActivityExecutions returns all live activity execution contexts in
// creation order.
func (wec *WorkflowExecutionContext) ActivityExecutions() []*ActivityExecutionContext {
	contexts := make([]*ActivityExecutionContext, 0, len(wec.aecOrder))
	for _, id := range wec.aecOrder {
		contexts = append(contexts, wec.aecs[id])
	}
	return contexts
}

// ExecutingActivities returns the contexts that still own uncompleted work,
// in ascending start order.
func (wec *WorkflowExecutionContext) ExecutingActivities() []*ActivityExecutionContext {
	var executing []*ActivityExecutionContext
	for _, aec := range wec.ActivityExecutions() {
		if aec.isExecuting {
			executing = append(executing, aec)
		}
	}
	sort.SliceStable(executing, func(i, j int) bool {
		return executing[i].startedAt.Before(executing[j].startedAt)
	})
	return executing
}

// FindBookmark returns the bookmark with the given ID.
func (wec *WorkflowExecutionContext) FindBookmark(id string) (*Bookmark, bool) {
	for _, bookmark := range wec.bookmarks {
		if bookmark.ID == id {
			return bookmark, true
		}
	}
	return nil, false
}

// FindBookmarkByHash returns the first bookmark matching the given hash.
func (wec *WorkflowExecutionContext) FindBookmarkByHash(hash string) (*Bookmark, bool) {
	for _, bookmark := range wec.bookmarks {
		if bookmark.Hash == hash {
			return bookmark, true
		}
	}
	return nil, false
}

func (wec *WorkflowExecutionContext) addBookmark(bookmark *Bookmark) {
	wec.bookmarks = append(wec.bookmarks, bookmark)
}

// BurnBookmark removes a bookmark from the workflow.
func (wec *WorkflowExecutionContext) BurnBookmark(id string) bool {
	for i, bookmark := range wec.bookmarks {
		if bookmark.ID == id {
			wec.bookmarks = append(wec.bookmarks[:i], wec.bookmarks[i+1:]...)
			aec, _ := wec.ActivityExecution(bookmark.ActivityInstanceID)
			wec.journal(ExecutionLogBookmarkBurned, aec, map[string]any{"bookmark_id": id})
			return true
		}
	}
	return false
}

// AddIncident records a fault on the workflow.
func (wec *WorkflowExecutionContext) AddIncident(incident *Incident) {
	wec.incidents = append(wec.incidents, incident)
}

func (wec *WorkflowExecutionContext) journal(event string, aec *ActivityExecutionContext, data map[string]any) {
	entry := LogEntry{
		Timestamp: wec.now(),
		Event:     event,
		Data:      data,
	}
	if aec != nil {
		entry.ActivityInstanceID = aec.id
		entry.ActivityNodeID = aec.NodeID()
	}
	wec.executionLog = append(wec.executionLog, entry)
}

func (wec *WorkflowExecutionContext) now() time.Time {
	return time.Now()
}

// newActivityExecution creates an activity execution context for node under
// the given owner. The context's register chains to the owner's register (or
// the root register for top-level activities), and the node's declared
// variables are bound on it.
func (wec *WorkflowExecutionContext) newActivityExecution(node *ActivityNode, owner *ActivityExecutionContext, tag string, input, variables map[string]any) *ActivityExecutionContext {
	parentRegister := wec.memory
	parentID := ""
	if owner != nil {
		parentRegister = owner.memory
		parentID = owner.id
	}
	register := parentRegister.CreateChild()
	nodeID := wec.graph.NodeID(node)
	for _, v := range node.Variables {
		if v.Scope == VariableScopeWorkflow {
			wec.memory.DeclareVariable(v, "")
			continue
		}
		register.DeclareVariable(v, nodeID)
	}
	for name, value := range variables {
		register.Declare(&MemoryBlock{
			ID:    "dyn/" + name,
			Name:  name,
			Kind:  BlockKindDynamic,
			Value: value,
		})
	}
	aec := &ActivityExecutionContext{
		id:         wec.identity.NewActivityExecutionID(),
		wec:        wec,
		node:       node,
		parentID:   parentID,
		status:     ActivityStatusPending,
		tag:        tag,
		input:      copyMap(input),
		memory:     register,
	}
	wec.aecs[aec.id] = aec
	wec.aecOrder = append(wec.aecOrder, aec.id)
	return aec
}

// attachActivityExecution registers a rehydrated context. Used by state
// application only.
func (wec *WorkflowExecutionContext) attachActivityExecution(aec *ActivityExecutionContext) {
	wec.aecs[aec.id] = aec
	wec.aecOrder = append(wec.aecOrder, aec.id)
}

// onActivityTerminal schedules the parent continuation for a terminal child.
// The continuation is prepended so composites advance before earlier sibling
// work.
func (wec *WorkflowExecutionContext) onActivityTerminal(aec *ActivityExecutionContext) {
	parent := aec.Parent()
	if parent == nil || parent.status.IsTerminal() {
		return
	}
	wec.scheduler.SchedulePrepend(&WorkItem{
		Kind:        WorkItemChildCompleted,
		ExistingAEC: parent,
		ChildID:     aec.id,
	})
}

// faultActivity records an incident for the error and applies the fault
// strategy: propagate faults ancestors to the root and ends the workflow;
// contain keeps the workflow running and notifies the parent like any other
// child completion.
func (wec *WorkflowExecutionContext) faultActivity(aec *ActivityExecutionContext, err error) {
	engineErr := ClassifyError(err)
	incident := &Incident{
		ID:                 wec.identity.NewIncidentID(),
		ActivityInstanceID: aec.id,
		ActivityNodeID:     aec.NodeID(),
		Kind:               engineErr.Kind,
		Message:            engineErr.Cause,
		Details:            engineErr.Details,
		Timestamp:          wec.now(),
	}
	wec.AddIncident(incident)
	wec.journal(ExecutionLogActivityFaulted, aec, map[string]any{"message": engineErr.Cause})
	wec.logger.Error("activity faulted",
		"activity_id", aec.node.ID,
		"aec_id", aec.id,
		"error", err)

	if !aec.status.IsTerminal() {
		aec.status = ActivityStatusFaulted
		aec.completedAt = wec.now()
	}
	aec.isExecuting = false

	switch wec.faultStrategy {
	case FaultStrategyContain:
		wec.onActivityTerminal(aec)
	default:
		for parent := aec.Parent(); parent != nil; parent = parent.Parent() {
			if !parent.status.IsTerminal() {
				parent.status = ActivityStatusFaulted
				parent.completedAt = wec.now()
			}
			parent.isExecuting = false
		}
		wec.scheduler.Clear()
		wec.status = WorkflowStatusFinished
		wec.subStatus = WorkflowSubStatusFaulted
	}
}

// cancelActivity cancels a context and its live descendants, then notifies
// the parent.
func (wec *WorkflowExecutionContext) cancelActivity(aec *ActivityExecutionContext) {
	wec.cancelSubtree(aec)
	wec.onActivityTerminal(aec)
}

func (wec *WorkflowExecutionContext) cancelSubtree(aec *ActivityExecutionContext) {
	for _, child := range aec.Children() {
		if !child.status.IsTerminal() {
			wec.cancelSubtree(child)
		}
	}
	for _, bookmark := range aec.Bookmarks() {
		wec.BurnBookmark(bookmark.ID)
	}
	wec.scheduler.Unschedule(func(item *WorkItem) bool {
		if item.Owner != nil && item.Owner.id == aec.id {
			return true
		}
		if item.ExistingAEC != nil && item.ExistingAEC.id == aec.id {
			return true
		}
		return false
	})
	if !aec.status.IsTerminal() {
		aec.status = ActivityStatusCancelled
		aec.completedAt = wec.now()
		wec.journal(ExecutionLogActivityCancelled, aec, nil)
	}
	aec.isExecuting = false
}

// hasScheduledChildren reports whether the scheduler holds start items owned
// by the given context.
func (wec *WorkflowExecutionContext) hasScheduledChildren(aec *ActivityExecutionContext) bool {
	for _, item := range wec.scheduler.Items() {
		if item.Kind == WorkItemStart && item.Owner != nil && item.Owner.id == aec.id {
			return true
		}
	}
	return false
}

// Compact removes completed contexts that own no bookmarks and have no live
// children. Parents are retained until their whole subtree is gone.
func (wec *WorkflowExecutionContext) Compact() int {
	removed := 0
	for {
		removedThisPass := 0
		for _, aec := range wec.ActivityExecutions() {
			if aec.status != ActivityStatusCompleted {
				continue
			}
			if len(aec.Bookmarks()) > 0 || len(aec.Children()) > 0 {
				continue
			}
			delete(wec.aecs, aec.id)
			for i, id := range wec.aecOrder {
				if id == aec.id {
					wec.aecOrder = append(wec.aecOrder[:i], wec.aecOrder[i+1:]...)
					break
				}
			}
			removedThisPass++
		}
		if removedThisPass == 0 {
			break
		}
		removed += removedThisPass
	}
	return removed
}

// copyMap creates a shallow copy of a map.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	copied := make(map[string]any, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return copied
}
