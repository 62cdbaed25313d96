package floe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// ActivityHandle addresses an activity for resumption, either by a live
// execution context ID or by a definition-time identifier.
type ActivityHandle struct {
	ActivityInstanceID string
	NodeID             string
	ActivityID         string
	Name               string
}

// IsZero reports whether the handle addresses nothing.
func (h ActivityHandle) IsZero() bool {
	return h == ActivityHandle{}
}

// RunWorkflowOptions configures one Run or Resume call.
type RunWorkflowOptions struct {
	// WorkflowInstanceID is used for the run; generated when empty.
	WorkflowInstanceID string

	// CorrelationID sets or overrides the correlation identifier.
	CorrelationID string

	// TenantID is carried on the execution context and persisted state.
	TenantID string

	// Input is the initial or additional workflow input map. On resumption
	// it is also delivered to the resumed activity.
	Input map[string]any

	// Variables seeds dynamic variables on the root register.
	Variables map[string]any

	// Properties is opaque metadata merged onto the execution context.
	Properties map[string]any

	// BookmarkID resumes from this bookmark (highest priority seed).
	BookmarkID string

	// ActivityHandle resumes this activity (second priority seed). Supplying
	// both BookmarkID and ActivityHandle is rejected as invalid input.
	ActivityHandle *ActivityHandle

	// TriggerActivityID records which activity caused this invocation.
	TriggerActivityID string

	// ParentWorkflowInstanceID links a child run to its parent.
	ParentWorkflowInstanceID string

	// FaultStrategy overrides the runner's fault strategy for this run.
	FaultStrategy FaultStrategy
}

// RunResult is returned from every run turn. The state snapshot is always
// consistent; callers inspect status, sub-status, and incidents to determine
// the outcome.
type RunResult struct {
	WorkflowExecutionContext *WorkflowExecutionContext
	WorkflowState            *WorkflowState
	Workflow                 *Workflow
	Result                   any
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Registry            *BehaviorRegistry
	Identity            IdentityGenerator
	Notifier            NotificationSender
	StorageDrivers      *StorageDriverRegistry
	Store               StateStore
	Journal             ExecutionJournal
	Logger              *slog.Logger
	WorkflowMiddlewares []WorkflowMiddleware
	ActivityMiddlewares []ActivityMiddleware
	FaultStrategy       FaultStrategy
}

// Runner drives workflow executions: it creates or rehydrates the execution
// context, seeds the scheduler according to the caller's intent, runs the
// pipeline, emits lifecycle notifications, and commits state. A Runner holds
// no per-run state and is safe to share across goroutines; turns for the
// same workflow instance must be serialized by the hosting layer.
type Runner struct {
	registry            *BehaviorRegistry
	identity            IdentityGenerator
	notifier            NotificationSender
	drivers             *StorageDriverRegistry
	store               StateStore
	journal             ExecutionJournal
	logger              *slog.Logger
	workflowMiddlewares []WorkflowMiddleware
	activityMiddlewares []ActivityMiddleware
	faultStrategy       FaultStrategy
}

// NewRunner creates a runner with the given options. A behavior registry is
// required; everything else has working defaults.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("behavior registry is required")
	}
	if opts.Identity == nil {
		opts.Identity = NewTypeIDGenerator()
	}
	if opts.Notifier == nil {
		opts.Notifier = NewNullNotificationSender()
	}
	if opts.StorageDrivers == nil {
		opts.StorageDrivers = NewStorageDriverRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Journal == nil {
		opts.Journal = NewNullExecutionJournal()
	}
	if opts.WorkflowMiddlewares == nil {
		opts.WorkflowMiddlewares = DefaultWorkflowMiddlewares()
	}
	if opts.ActivityMiddlewares == nil {
		opts.ActivityMiddlewares = DefaultActivityMiddlewares()
	}
	if opts.FaultStrategy == "" {
		opts.FaultStrategy = FaultStrategyPropagate
	}
	return &Runner{
		registry:            opts.Registry,
		identity:            opts.Identity,
		notifier:            opts.Notifier,
		drivers:             opts.StorageDrivers,
		store:               opts.Store,
		journal:             opts.Journal,
		logger:              opts.Logger,
		workflowMiddlewares: opts.WorkflowMiddlewares,
		activityMiddlewares: opts.ActivityMiddlewares,
		faultStrategy:       opts.FaultStrategy,
	}, nil
}

func (r *Runner) contextOptions(workflow *Workflow, opts *RunWorkflowOptions) WorkflowExecutionContextOptions {
	faultStrategy := r.faultStrategy
	if opts.FaultStrategy != "" {
		faultStrategy = opts.FaultStrategy
	}
	return WorkflowExecutionContextOptions{
		Graph:                    workflow.Graph(),
		InstanceID:               opts.WorkflowInstanceID,
		CorrelationID:            opts.CorrelationID,
		ParentWorkflowInstanceID: opts.ParentWorkflowInstanceID,
		TenantID:                 opts.TenantID,
		Input:                    opts.Input,
		Properties:               opts.Properties,
		Identity:                 r.identity,
		Registry:                 r.registry,
		Notifier:                 r.notifier,
		StorageDrivers:           r.drivers,
		FaultStrategy:            faultStrategy,
		Logger:                   r.logger,
	}
}

// Run starts a fresh workflow run: it builds a new execution context,
// schedules the root activity, and drives the run to completion or to a
// suspension point.
func (r *Runner) Run(ctx context.Context, workflow *Workflow, opts *RunWorkflowOptions) (*RunResult, error) {
	if opts == nil {
		opts = &RunWorkflowOptions{}
	}
	if err := validateRunOptions(opts); err != nil {
		return nil, err
	}
	wec, err := NewWorkflowExecutionContext(r.contextOptions(workflow, opts))
	if err != nil {
		return nil, err
	}
	wec.Scheduler().Schedule(&WorkItem{
		Kind: WorkItemStart,
		Node: workflow.Root(),
		Tag:  opts.TriggerActivityID,
	})
	r.applyDynamicVariables(wec, opts.Variables)
	return r.runTurn(ctx, workflow, wec)
}

// Resume continues a persisted workflow run. Exactly one seeding path is
// chosen, in priority order: an explicit bookmark, an explicit activity
// handle, work already on the rehydrated scheduler, interrupted executing
// activities, or a fresh start. Seeding errors fail the call synchronously
// without mutating state.
func (r *Runner) Resume(ctx context.Context, workflow *Workflow, state *WorkflowState, opts *RunWorkflowOptions) (*RunResult, error) {
	if opts == nil {
		opts = &RunWorkflowOptions{}
	}
	if err := validateRunOptions(opts); err != nil {
		return nil, err
	}
	contextOpts := r.contextOptions(workflow, opts)
	wec, err := ApplyWorkflowState(state, workflow.Graph(), contextOpts)
	if err != nil {
		return nil, err
	}
	if opts.CorrelationID != "" {
		wec.SetCorrelationID(opts.CorrelationID)
	}
	if len(opts.Properties) > 0 {
		wec.MergeProperties(opts.Properties)
	}
	wec.MergeInput(opts.Input)
	if err := r.seed(wec, workflow, opts); err != nil {
		return nil, err
	}
	r.applyDynamicVariables(wec, opts.Variables)
	return r.runTurn(ctx, workflow, wec)
}

// ResumeInstance loads the instance's state from the runner's store and
// resumes it.
func (r *Runner) ResumeInstance(ctx context.Context, workflow *Workflow, instanceID string, opts *RunWorkflowOptions) (*RunResult, error) {
	if r.store == nil {
		return nil, fmt.Errorf("runner has no state store")
	}
	state, err := r.store.Load(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow state: %w", err)
	}
	if state == nil {
		return nil, NewEngineErrorf(ErrorKindContextNotFound, "no state found for instance %q", instanceID)
	}
	return r.Resume(ctx, workflow, state, opts)
}

func validateRunOptions(opts *RunWorkflowOptions) error {
	if opts.BookmarkID != "" && opts.ActivityHandle != nil && !opts.ActivityHandle.IsZero() {
		return NewEngineError(ErrorKindInvalidOptions, "BookmarkID and ActivityHandle are mutually exclusive")
	}
	return nil
}

// seed chooses exactly one seeding path for a resumption.
func (r *Runner) seed(wec *WorkflowExecutionContext, workflow *Workflow, opts *RunWorkflowOptions) error {
	scheduler := wec.Scheduler()

	// 1: explicit bookmark
	if opts.BookmarkID != "" {
		bookmark, ok := wec.FindBookmark(opts.BookmarkID)
		if !ok {
			return NewEngineErrorf(ErrorKindBookmarkNotFound, "bookmark %q not found", opts.BookmarkID)
		}
		scheduler.Schedule(&WorkItem{
			Kind:     WorkItemBookmark,
			Bookmark: bookmark,
			Input:    opts.Input,
		})
		return nil
	}

	// 2: explicit activity handle
	if handle := opts.ActivityHandle; handle != nil && !handle.IsZero() {
		if handle.ActivityInstanceID != "" {
			aec, ok := wec.ActivityExecution(handle.ActivityInstanceID)
			if !ok {
				return NewEngineErrorf(ErrorKindContextNotFound, "execution context %q not found", handle.ActivityInstanceID)
			}
			scheduler.Schedule(&WorkItem{
				Kind:        WorkItemResume,
				ExistingAEC: aec,
				Input:       opts.Input,
			})
			return nil
		}
		node := resolveActivity(workflow.Graph(), handle)
		if node == nil {
			return NewEngineErrorf(ErrorKindActivityNotFound, "no activity matches handle %+v", *handle)
		}
		scheduler.Schedule(&WorkItem{
			Kind:  WorkItemStart,
			Node:  node,
			Input: opts.Input,
		})
		return nil
	}

	// 3: the rehydrated queue already has work
	if scheduler.HasAny() {
		return nil
	}

	// 4: interrupted run; resume executing activities in start order
	if executing := wec.ExecutingActivities(); len(executing) > 0 {
		for _, aec := range executing {
			scheduler.Schedule(&WorkItem{
				Kind:        WorkItemResume,
				ExistingAEC: aec,
			})
		}
		return nil
	}

	// 5: nothing to resume; treat as a fresh start
	scheduler.Schedule(&WorkItem{
		Kind: WorkItemStart,
		Node: workflow.Root(),
	})
	return nil
}

func resolveActivity(graph *WorkflowGraph, handle *ActivityHandle) *ActivityNode {
	if handle.NodeID != "" {
		if node, ok := graph.NodeByNodeID(handle.NodeID); ok {
			return node
		}
		return nil
	}
	if handle.ActivityID != "" {
		if node, ok := graph.NodeByID(handle.ActivityID); ok {
			return node
		}
		return nil
	}
	if handle.Name != "" {
		if node, ok := graph.NodeByName(handle.Name); ok {
			return node
		}
	}
	return nil
}

// applyDynamicVariables binds the caller-supplied variables on the root
// register. A declared workflow variable of the same name has its value set;
// otherwise a dynamic block is created. Declarations lower in the tree are
// never shadowed.
func (r *Runner) applyDynamicVariables(wec *WorkflowExecutionContext, variables map[string]any) {
	for name, value := range variables {
		if err := wec.Memory().SetNamed(name, value); err != nil {
			wec.Logger().Error("failed to bind dynamic variable", "name", name, "error", err)
		}
	}
}

// runTurn executes one turn: scope setup, notifications, pipeline, status
// settlement, state extraction, and commit. The returned result always
// carries a consistent state snapshot, even when the commit fails.
func (r *Runner) runTurn(ctx context.Context, workflow *Workflow, wec *WorkflowExecutionContext) (*RunResult, error) {
	ctx = WithLoggerContext(ctx, wec.Logger())
	ctx = WithInstanceID(ctx, wec.InstanceID())

	journalStart := len(wec.ExecutionLog())
	started := wec.BeginTurn(ctx)

	wec.notify(ctx, NotificationWorkflowExecuting, nil)
	if started {
		wec.notify(ctx, NotificationWorkflowStarted, nil)
	}

	pipeline := NewWorkflowPipeline(DrainScheduler(r.activityMiddlewares...), r.workflowMiddlewares...)
	if err := pipeline(ctx, wec); err != nil {
		return nil, fmt.Errorf("workflow pipeline failed: %w", err)
	}
	wec.EndTurn()

	if wec.Status() == WorkflowStatusFinished {
		wec.notify(ctx, NotificationWorkflowFinished, nil)
	}
	wec.notify(ctx, NotificationWorkflowExecuted, nil)

	state := ExtractWorkflowState(wec)
	result := &RunResult{
		WorkflowExecutionContext: wec,
		WorkflowState:            state,
		Workflow:                 workflow,
		Result:                   r.readResult(wec, workflow),
	}

	if err := r.commit(ctx, wec, state, journalStart); err != nil {
		return result, err
	}
	return result, nil
}

func (r *Runner) readResult(wec *WorkflowExecutionContext, workflow *Workflow) any {
	if workflow.Result() == "" {
		return nil
	}
	value, ok, err := wec.Memory().GetNamed(workflow.Result())
	if err != nil || !ok {
		return nil
	}
	return value
}

func (r *Runner) commit(ctx context.Context, wec *WorkflowExecutionContext, state *WorkflowState, journalStart int) error {
	entries := wec.ExecutionLog()[journalStart:]
	if len(entries) > 0 {
		if err := r.journal.WriteEntries(ctx, wec.InstanceID(), entries); err != nil {
			return fmt.Errorf("failed to write execution journal: %w", err)
		}
	}
	if r.store != nil {
		if err := r.store.Save(ctx, state); err != nil {
			return fmt.Errorf("failed to commit workflow state: %w", err)
		}
	}
	return nil
}
