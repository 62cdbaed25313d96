package activities

import (
	"fmt"

	"github.com/deepnoodle-ai/floe"
)

// RunWorkflowActivity executes a child workflow synchronously through a
// runner. The child run is linked to the parent via its instance ID; its
// result and output map are recorded as outputs on this activity.
type RunWorkflowActivity struct {
	runner    *floe.Runner
	workflows floe.WorkflowRegistry
}

func NewRunWorkflowActivity(runner *floe.Runner, workflows floe.WorkflowRegistry) *RunWorkflowActivity {
	return &RunWorkflowActivity{runner: runner, workflows: workflows}
}

func (a *RunWorkflowActivity) TypeName() string {
	return "runWorkflow"
}

func (a *RunWorkflowActivity) Execute(aec *floe.ActivityExecutionContext) error {
	name := aec.PropertyString("workflow")
	if name == "" {
		return fmt.Errorf("runWorkflow activity %q requires a 'workflow' property", aec.Node().ID)
	}
	child, ok := a.workflows.Get(name)
	if !ok {
		return fmt.Errorf("workflow %q is not registered", name)
	}

	input, _ := aec.Property("input")
	inputMap, _ := input.(map[string]any)

	result, err := a.runner.Run(aec.Context(), child, &floe.RunWorkflowOptions{
		Input:                    inputMap,
		CorrelationID:            aec.WorkflowExecution().CorrelationID(),
		TenantID:                 aec.WorkflowExecution().TenantID(),
		ParentWorkflowInstanceID: aec.WorkflowExecution().InstanceID(),
		TriggerActivityID:        aec.Node().ID,
	})
	if err != nil {
		return fmt.Errorf("child workflow %q failed: %w", name, err)
	}

	childWEC := result.WorkflowExecutionContext
	aec.SetOutput("instance_id", childWEC.InstanceID())
	aec.SetOutput("status", string(childWEC.Status()))
	aec.SetOutput("sub_status", string(childWEC.SubStatus()))
	aec.SetOutput("output", childWEC.Output())
	aec.SetOutput("result", result.Result)

	if childWEC.SubStatus() == floe.WorkflowSubStatusFaulted {
		return fmt.Errorf("child workflow %q faulted", name)
	}
	if store := aec.PropertyString("store"); store != "" {
		if err := aec.SetVariable(store, result.Result); err != nil {
			return err
		}
	}
	aec.Complete()
	return nil
}
