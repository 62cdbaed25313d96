package floe

import (
	"context"
	"time"
)

// NotificationType identifies a lifecycle event emitted by the engine.
type NotificationType string

const (
	// NotificationWorkflowExecuting is emitted immediately after scope setup,
	// before the pipeline runs.
	NotificationWorkflowExecuting NotificationType = "workflow.executing"

	// NotificationWorkflowStarted is emitted only when the workflow
	// transitioned from pending to executing during this turn.
	NotificationWorkflowStarted NotificationType = "workflow.started"

	// NotificationActivityExecuting is emitted per activity execution
	// context, before the activity callback.
	NotificationActivityExecuting NotificationType = "activity.executing"

	// NotificationActivityExecuted is emitted per activity execution context,
	// after the activity callback returns, even on fault.
	NotificationActivityExecuted NotificationType = "activity.executed"

	// NotificationWorkflowFinished is emitted only when the post-pipeline
	// workflow status is finished.
	NotificationWorkflowFinished NotificationType = "workflow.finished"

	// NotificationWorkflowExecuted is always emitted after the pipeline
	// returns, before commit.
	NotificationWorkflowExecuted NotificationType = "workflow.executed"
)

// Notification is a lifecycle event. Notifications are synchronous with
// respect to the workflow turn; ordering is strict per the engine contract.
type Notification struct {
	Type      NotificationType
	Workflow  *WorkflowExecutionContext
	Activity  *ActivityExecutionContext
	Timestamp time.Time
}

// NotificationSender receives lifecycle notifications. A sender's failure is
// recorded as an incident on the workflow but does not corrupt the turn.
type NotificationSender interface {
	Send(ctx context.Context, notification *Notification) error
}

// NullNotificationSender discards all notifications.
type NullNotificationSender struct{}

func NewNullNotificationSender() *NullNotificationSender {
	return &NullNotificationSender{}
}

func (s *NullNotificationSender) Send(ctx context.Context, notification *Notification) error {
	return nil
}

// NotificationFunc adapts a function to the NotificationSender interface.
type NotificationFunc func(ctx context.Context, notification *Notification) error

func (f NotificationFunc) Send(ctx context.Context, notification *Notification) error {
	return f(ctx, notification)
}

// NotificationChain fans a notification out to multiple senders in order.
// The first error stops the chain.
type NotificationChain struct {
	senders []NotificationSender
}

// NewNotificationChain creates a chain of senders.
func NewNotificationChain(senders ...NotificationSender) *NotificationChain {
	return &NotificationChain{senders: senders}
}

// Add appends a sender to the chain.
func (c *NotificationChain) Add(sender NotificationSender) {
	c.senders = append(c.senders, sender)
}

func (c *NotificationChain) Send(ctx context.Context, notification *Notification) error {
	for _, sender := range c.senders {
		if err := sender.Send(ctx, notification); err != nil {
			return err
		}
	}
	return nil
}
