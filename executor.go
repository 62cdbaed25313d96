package floe

import (
	"context"
)

// DrainScheduler returns the terminal stage of the workflow pipeline: a loop
// that pops work items in scheduler order and executes each through the
// per-activity pipeline. Cancellation is checked between items; on
// cancellation the workflow transitions to the cancelled terminal status.
func DrainScheduler(middlewares ...ActivityMiddleware) WorkflowExecutionFunc {
	return func(ctx context.Context, wec *WorkflowExecutionContext) error {
		for wec.Scheduler().HasAny() {
			if ctx.Err() != nil {
				wec.MarkCancelled()
				return nil
			}
			item := wec.Scheduler().Take()
			if err := executeWorkItem(ctx, wec, item, middlewares); err != nil {
				return err
			}
			if wec.SubStatus() == WorkflowSubStatusFaulted {
				return nil
			}
		}
		return nil
	}
}

func executeWorkItem(ctx context.Context, wec *WorkflowExecutionContext, item *WorkItem, middlewares []ActivityMiddleware) error {
	switch item.Kind {
	case WorkItemStart:
		aec := wec.newActivityExecution(item.Node, item.Owner, item.Tag, item.Input, item.Variables)
		aec.status = ActivityStatusRunning
		aec.isExecuting = true
		aec.startedAt = wec.now()
		wec.journal(ExecutionLogActivityStarted, aec, nil)
		return runActivityCallback(ctx, wec, aec, middlewares, true, func(behavior Behavior) error {
			if guarded, ok := behavior.(GuardedBehavior); ok && !guarded.CanExecute(aec) {
				aec.Complete()
				return nil
			}
			return behavior.Execute(aec)
		})

	case WorkItemResume:
		aec := item.ExistingAEC
		if aec == nil {
			return NewEngineError(ErrorKindContextNotFound, "resume item has no execution context")
		}
		// Re-execution replaces the prior suspension state.
		for _, stale := range aec.Bookmarks() {
			wec.BurnBookmark(stale.ID)
		}
		aec.status = ActivityStatusRunning
		aec.isExecuting = true
		if aec.startedAt.IsZero() {
			aec.startedAt = wec.now()
		}
		aec.MergeInput(item.Input)
		wec.journal(ExecutionLogActivityResumed, aec, nil)
		return runActivityCallback(ctx, wec, aec, middlewares, true, func(behavior Behavior) error {
			return behavior.Execute(aec)
		})

	case WorkItemBookmark:
		bookmark := item.Bookmark
		aec, ok := wec.ActivityExecution(bookmark.ActivityInstanceID)
		if !ok {
			return NewEngineErrorf(ErrorKindContextNotFound, "bookmark %q targets unknown execution context %q", bookmark.ID, bookmark.ActivityInstanceID)
		}
		if bookmark.AutoBurn {
			wec.BurnBookmark(bookmark.ID)
		}
		// Resumption input binds as dynamic variables on the resumed context.
		for name, value := range item.Input {
			if err := aec.SetVariable(name, value); err != nil {
				return err
			}
		}
		aec.MergeInput(item.Input)
		aec.status = ActivityStatusRunning
		aec.isExecuting = true
		wec.journal(ExecutionLogActivityResumed, aec, map[string]any{"bookmark_id": bookmark.ID})
		return runActivityCallback(ctx, wec, aec, middlewares, bookmark.AutoComplete, func(behavior Behavior) error {
			if resumable, ok := behavior.(ResumableBehavior); ok {
				return resumable.Resume(aec, bookmark)
			}
			return nil
		})

	case WorkItemChildCompleted:
		parent := item.ExistingAEC
		if parent == nil || parent.Status().IsTerminal() {
			return nil
		}
		child, ok := wec.ActivityExecution(item.ChildID)
		if !ok {
			return nil
		}
		behavior, ok := wec.registry.Get(parent.Node().Type)
		if !ok {
			return nil
		}
		if composite, isComposite := behavior.(CompositeBehavior); isComposite {
			terminal := func(ctx context.Context, aec *ActivityExecutionContext) error {
				return composite.ChildCompleted(aec, child)
			}
			if err := NewActivityPipeline(terminal, middlewares...)(ctx, parent); err != nil {
				wec.faultActivity(parent, err)
			}
			return nil
		}
		if !parent.HasPendingWork() && !wec.hasScheduledChildren(parent) {
			parent.Complete()
		}
		return nil
	}
	return nil
}

// runActivityCallback runs the activity callback through the per-activity
// pipeline, bracketed by the activity notifications. Callback errors become
// activity faults; they never abort the turn directly.
func runActivityCallback(ctx context.Context, wec *WorkflowExecutionContext, aec *ActivityExecutionContext, middlewares []ActivityMiddleware, autoComplete bool, invoke func(Behavior) error) error {
	behavior, ok := wec.registry.Get(aec.Node().Type)
	if !ok {
		wec.faultActivity(aec, NewEngineErrorf(ErrorKindActivityFault, "no behavior registered for activity type %q", aec.Node().Type))
		return nil
	}

	wec.notify(ctx, NotificationActivityExecuting, aec)
	terminal := func(ctx context.Context, aec *ActivityExecutionContext) error {
		return invoke(behavior)
	}
	err := NewActivityPipeline(terminal, middlewares...)(ctx, aec)
	wec.notify(ctx, NotificationActivityExecuted, aec)

	if err != nil {
		wec.faultActivity(aec, err)
		return nil
	}
	if autoComplete && !aec.Status().IsTerminal() && !aec.HasPendingWork() && !wec.hasScheduledChildren(aec) {
		aec.Complete()
	}
	return nil
}

// notify sends a lifecycle notification. A subscriber failure is recorded as
// an incident but does not affect the turn.
func (wec *WorkflowExecutionContext) notify(ctx context.Context, notificationType NotificationType, aec *ActivityExecutionContext) {
	notification := &Notification{
		Type:      notificationType,
		Workflow:  wec,
		Activity:  aec,
		Timestamp: wec.now(),
	}
	if err := wec.notifier.Send(ctx, notification); err != nil {
		wec.AddIncident(&Incident{
			ID:        wec.identity.NewIncidentID(),
			Kind:      ErrorKindActivityFault,
			Message:   "notification subscriber failed: " + err.Error(),
			Timestamp: wec.now(),
		})
	}
}
