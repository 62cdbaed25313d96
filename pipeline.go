package floe

import (
	"context"
	"fmt"
)

// WorkflowExecutionFunc is one stage of the workflow pipeline.
type WorkflowExecutionFunc func(ctx context.Context, wec *WorkflowExecutionContext) error

// WorkflowMiddleware wraps a workflow pipeline stage.
type WorkflowMiddleware func(next WorkflowExecutionFunc) WorkflowExecutionFunc

// ActivityExecutionFunc is one stage of the per-activity pipeline.
type ActivityExecutionFunc func(ctx context.Context, aec *ActivityExecutionContext) error

// ActivityMiddleware wraps an activity pipeline stage.
type ActivityMiddleware func(next ActivityExecutionFunc) ActivityExecutionFunc

// NewWorkflowPipeline composes middlewares around a terminal stage. The first
// middleware is outermost. Middlewares may short-circuit but must not mutate
// scheduler ordering.
func NewWorkflowPipeline(terminal WorkflowExecutionFunc, middlewares ...WorkflowMiddleware) WorkflowExecutionFunc {
	pipeline := terminal
	for i := len(middlewares) - 1; i >= 0; i-- {
		pipeline = middlewares[i](pipeline)
	}
	return pipeline
}

// NewActivityPipeline composes middlewares around a terminal stage.
func NewActivityPipeline(terminal ActivityExecutionFunc, middlewares ...ActivityMiddleware) ActivityExecutionFunc {
	pipeline := terminal
	for i := len(middlewares) - 1; i >= 0; i-- {
		pipeline = middlewares[i](pipeline)
	}
	return pipeline
}

// WorkflowLoggingMiddleware logs turn boundaries on the workflow's logger.
func WorkflowLoggingMiddleware() WorkflowMiddleware {
	return func(next WorkflowExecutionFunc) WorkflowExecutionFunc {
		return func(ctx context.Context, wec *WorkflowExecutionContext) error {
			wec.Logger().Debug("workflow turn starting", "sub_status", wec.SubStatus())
			err := next(ctx, wec)
			wec.Logger().Debug("workflow turn finished",
				"status", wec.Status(),
				"sub_status", wec.SubStatus(),
				"incidents", len(wec.Incidents()))
			return err
		}
	}
}

// WorkflowRecoveryMiddleware traps panics from the inner pipeline and records
// them as incidents, leaving the workflow faulted rather than crashing the
// host.
func WorkflowRecoveryMiddleware() WorkflowMiddleware {
	return func(next WorkflowExecutionFunc) WorkflowExecutionFunc {
		return func(ctx context.Context, wec *WorkflowExecutionContext) (err error) {
			defer func() {
				if r := recover(); r != nil {
					wec.AddIncident(&Incident{
						ID:        wec.identity.NewIncidentID(),
						Kind:      ErrorKindActivityFault,
						Message:   fmt.Sprintf("panic: %v", r),
						Timestamp: wec.now(),
					})
					wec.scheduler.Clear()
					wec.status = WorkflowStatusFinished
					wec.subStatus = WorkflowSubStatusFaulted
				}
			}()
			return next(ctx, wec)
		}
	}
}

// ActivityLoggingMiddleware logs each activity execution.
func ActivityLoggingMiddleware() ActivityMiddleware {
	return func(next ActivityExecutionFunc) ActivityExecutionFunc {
		return func(ctx context.Context, aec *ActivityExecutionContext) error {
			aec.Logger().Debug("activity executing", "type", aec.Node().Type)
			err := next(ctx, aec)
			aec.Logger().Debug("activity executed", "status", aec.Status(), "error", err)
			return err
		}
	}
}

// ActivityRecoveryMiddleware converts panics in activity callbacks to
// activity faults.
func ActivityRecoveryMiddleware() ActivityMiddleware {
	return func(next ActivityExecutionFunc) ActivityExecutionFunc {
		return func(ctx context.Context, aec *ActivityExecutionContext) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic in activity %q: %v", aec.Node().ID, r)
				}
			}()
			return next(ctx, aec)
		}
	}
}

// DefaultWorkflowMiddlewares returns the standard workflow pipeline stack.
func DefaultWorkflowMiddlewares() []WorkflowMiddleware {
	return []WorkflowMiddleware{
		WorkflowLoggingMiddleware(),
		WorkflowRecoveryMiddleware(),
	}
}

// DefaultActivityMiddlewares returns the standard activity pipeline stack.
func DefaultActivityMiddlewares() []ActivityMiddleware {
	return []ActivityMiddleware{
		ActivityLoggingMiddleware(),
		ActivityRecoveryMiddleware(),
	}
}
