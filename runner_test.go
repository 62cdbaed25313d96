package floe_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/floe"
	"github.com/deepnoodle-ai/floe/activities"
	"github.com/deepnoodle-ai/floe/script"
)

func testRegistry(extra ...floe.Behavior) *floe.BehaviorRegistry {
	registry := activities.DefaultRegistry(script.NewExprScriptingEngine(nil))
	for _, behavior := range extra {
		registry.Register(behavior)
	}
	return registry
}

func newTestRunner(t *testing.T, registry *floe.BehaviorRegistry) *floe.Runner {
	t.Helper()
	runner, err := floe.NewRunner(floe.RunnerOptions{Registry: registry})
	require.NoError(t, err)
	return runner
}

// appendTrace appends the node ID to the "trace" variable.
func appendTraceBehavior() floe.Behavior {
	return floe.NewBehaviorFunction("appendTrace", func(aec *floe.ActivityExecutionContext) error {
		value, _, err := aec.GetVariable("trace")
		if err != nil {
			return err
		}
		items, _ := value.([]any)
		items = append(items, aec.Node().ID)
		if err := aec.SetVariable("trace", items); err != nil {
			return err
		}
		aec.Complete()
		return nil
	})
}

func requireQuiescent(t *testing.T, wec *floe.WorkflowExecutionContext) {
	t.Helper()
	require.False(t, wec.Scheduler().HasAny())
	for _, aec := range wec.ActivityExecutions() {
		require.False(t, aec.IsExecuting(), "activity %s still executing", aec.Node().ID)
	}
}

func TestLinearSequence(t *testing.T) {
	wf, err := floe.New(floe.Options{
		Name:      "linear",
		Variables: []*floe.Variable{{Name: "trace", Default: []any{}}},
		Root: &floe.ActivityNode{
			ID:   "main",
			Type: "sequence",
			Do: []*floe.ActivityNode{
				{ID: "a", Type: "appendTrace"},
				{ID: "b", Type: "appendTrace"},
				{ID: "c", Type: "appendTrace"},
			},
		},
	})
	require.NoError(t, err)

	runner := newTestRunner(t, testRegistry(appendTraceBehavior()))
	result, err := runner.Run(context.Background(), wf, nil)
	require.NoError(t, err)

	wec := result.WorkflowExecutionContext
	require.Equal(t, floe.WorkflowStatusFinished, wec.Status())
	require.Equal(t, floe.WorkflowSubStatusFinished, wec.SubStatus())
	require.Nil(t, result.Result)
	require.Empty(t, wec.Bookmarks())
	requireQuiescent(t, wec)

	value, _, err := wec.Memory().GetNamed("trace")
	require.NoError(t, err)
	require.Equal(t, []any{"a", "b", "c"}, value)

	// Leaf contexts appear in execution order.
	var leafOrder []string
	for _, aec := range wec.ActivityExecutions() {
		if aec.Node().Type == "appendTrace" {
			leafOrder = append(leafOrder, aec.Node().ID)
			require.Equal(t, floe.ActivityStatusCompleted, aec.Status())
		}
	}
	require.Equal(t, []string{"a", "b", "c"}, leafOrder)
}

func suspendingWorkflow(t *testing.T) *floe.Workflow {
	t.Helper()
	wf, err := floe.New(floe.Options{
		Name: "suspend-resume",
		Variables: []*floe.Variable{
			{Name: "x", Default: 0},
			{Name: "y", Default: 0},
		},
		Root: &floe.ActivityNode{
			ID:   "main",
			Type: "sequence",
			Do: []*floe.ActivityNode{
				{ID: "setx", Type: "setVariable", Properties: map[string]any{"name": "x", "value": 1}},
				{ID: "wait", Type: "event", Properties: map[string]any{"event": "evt"}},
				{ID: "sety", Type: "setVariable", Properties: map[string]any{"name": "y", "value": 2}},
			},
		},
	})
	require.NoError(t, err)
	return wf
}

func TestBookmarkSuspendAndResume(t *testing.T) {
	wf := suspendingWorkflow(t)
	runner := newTestRunner(t, testRegistry())
	ctx := context.Background()

	first, err := runner.Run(ctx, wf, nil)
	require.NoError(t, err)
	wec := first.WorkflowExecutionContext
	require.Equal(t, floe.WorkflowStatusRunning, wec.Status())
	require.Equal(t, floe.WorkflowSubStatusSuspended, wec.SubStatus())
	require.Len(t, wec.Bookmarks(), 1)

	bookmark := wec.Bookmarks()[0]
	require.Equal(t, "evt", bookmark.Name)
	require.NotEmpty(t, bookmark.Hash)
	owner, ok := wec.ActivityExecution(bookmark.ActivityInstanceID)
	require.True(t, ok)
	require.Equal(t, "wait", owner.Node().ID)

	x, _, err := wec.Memory().GetNamed("x")
	require.NoError(t, err)
	require.Equal(t, 1, x)

	second, err := runner.Resume(ctx, wf, first.WorkflowState, &floe.RunWorkflowOptions{
		BookmarkID: bookmark.ID,
		Input:      map[string]any{},
	})
	require.NoError(t, err)
	final := second.WorkflowExecutionContext
	require.Equal(t, floe.WorkflowStatusFinished, final.Status())
	require.Equal(t, floe.WorkflowSubStatusFinished, final.SubStatus())
	require.Empty(t, final.Bookmarks())
	requireQuiescent(t, final)

	y, _, err := final.Memory().GetNamed("y")
	require.NoError(t, err)
	require.Equal(t, float64(2), asFloat(t, y))
}

// asFloat normalizes ints that round-tripped through JSON state.
func asFloat(t *testing.T, value any) float64 {
	t.Helper()
	switch v := value.(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	t.Fatalf("unexpected numeric type %T", value)
	return 0
}

func faultingWorkflow(t *testing.T) *floe.Workflow {
	t.Helper()
	wf, err := floe.New(floe.Options{
		Name:      "faulting",
		Variables: []*floe.Variable{{Name: "trace", Default: []any{}}},
		Root: &floe.ActivityNode{
			ID:   "main",
			Type: "sequence",
			Do: []*floe.ActivityNode{
				{ID: "a", Type: "appendTrace"},
				{ID: "boom", Type: "fault", Properties: map[string]any{"message": "boom"}},
				{ID: "c", Type: "appendTrace"},
			},
		},
	})
	require.NoError(t, err)
	return wf
}

func TestFaultPropagation(t *testing.T) {
	runner := newTestRunner(t, testRegistry(appendTraceBehavior()))
	result, err := runner.Run(context.Background(), faultingWorkflow(t), nil)
	require.NoError(t, err)

	wec := result.WorkflowExecutionContext
	require.Equal(t, floe.WorkflowStatusFinished, wec.Status())
	require.Equal(t, floe.WorkflowSubStatusFaulted, wec.SubStatus())
	require.Len(t, wec.Incidents(), 1)
	require.Equal(t, "boom", wec.Incidents()[0].Message)

	for _, aec := range wec.ActivityExecutions() {
		require.NotEqual(t, "c", aec.Node().ID, "activity after the fault must never start")
	}

	// The faulted activity and its ancestors are faulted.
	for _, aec := range wec.ActivityExecutions() {
		switch aec.Node().ID {
		case "boom", "main":
			require.Equal(t, floe.ActivityStatusFaulted, aec.Status())
		}
	}
	requireQuiescent(t, wec)
}

func TestFaultContainment(t *testing.T) {
	registry := testRegistry(appendTraceBehavior())

	t.Run("contained fault stops the sequence but not the workflow call", func(t *testing.T) {
		runner, err := floe.NewRunner(floe.RunnerOptions{
			Registry:      registry,
			FaultStrategy: floe.FaultStrategyContain,
		})
		require.NoError(t, err)
		result, err := runner.Run(context.Background(), faultingWorkflow(t), nil)
		require.NoError(t, err)

		wec := result.WorkflowExecutionContext
		require.Equal(t, floe.WorkflowSubStatusFinished, wec.SubStatus())
		require.Len(t, wec.Incidents(), 1)
	})

	t.Run("workflow may be suspended with past incidents", func(t *testing.T) {
		wf, err := floe.New(floe.Options{
			Name: "contained-parallel",
			Root: &floe.ActivityNode{
				ID:   "par",
				Type: "parallel",
				Do: []*floe.ActivityNode{
					{ID: "boom", Type: "fault", Properties: map[string]any{"message": "partial"}},
					{ID: "wait", Type: "event", Properties: map[string]any{"event": "go"}},
				},
			},
		})
		require.NoError(t, err)
		runner, err := floe.NewRunner(floe.RunnerOptions{
			Registry:      registry,
			FaultStrategy: floe.FaultStrategyContain,
		})
		require.NoError(t, err)
		result, err := runner.Run(context.Background(), wf, nil)
		require.NoError(t, err)

		wec := result.WorkflowExecutionContext
		require.Equal(t, floe.WorkflowStatusRunning, wec.Status())
		require.Equal(t, floe.WorkflowSubStatusSuspended, wec.SubStatus())
		require.Len(t, wec.Incidents(), 1)
		require.Len(t, wec.Bookmarks(), 1)
	})
}

func parallelEventsWorkflow(t *testing.T) *floe.Workflow {
	t.Helper()
	wf, err := floe.New(floe.Options{
		Name: "parallel-events",
		Root: &floe.ActivityNode{
			ID:   "par",
			Type: "parallel",
			Do: []*floe.ActivityNode{
				{ID: "wait-a", Type: "event", Properties: map[string]any{"event": "a"}},
				{ID: "wait-b", Type: "event", Properties: map[string]any{"event": "b"}},
			},
		},
	})
	require.NoError(t, err)
	return wf
}

func TestParallelComposite(t *testing.T) {
	wf := parallelEventsWorkflow(t)
	runner := newTestRunner(t, testRegistry())
	ctx := context.Background()

	first, err := runner.Run(ctx, wf, nil)
	require.NoError(t, err)
	wec := first.WorkflowExecutionContext
	require.Equal(t, floe.WorkflowSubStatusSuspended, wec.SubStatus())
	require.Len(t, wec.Bookmarks(), 2)

	for _, aec := range wec.ActivityExecutions() {
		if aec.Node().Type == "event" {
			require.True(t, aec.IsExecuting())
		}
	}

	findBookmark := func(wec *floe.WorkflowExecutionContext, name string) *floe.Bookmark {
		for _, bookmark := range wec.Bookmarks() {
			if bookmark.Name == name {
				return bookmark
			}
		}
		t.Fatalf("bookmark %q not found", name)
		return nil
	}

	second, err := runner.Resume(ctx, wf, first.WorkflowState, &floe.RunWorkflowOptions{
		BookmarkID: findBookmark(wec, "a").ID,
	})
	require.NoError(t, err)
	require.Equal(t, floe.WorkflowSubStatusSuspended, second.WorkflowExecutionContext.SubStatus())
	require.Len(t, second.WorkflowExecutionContext.Bookmarks(), 1)

	third, err := runner.Resume(ctx, wf, second.WorkflowState, &floe.RunWorkflowOptions{
		BookmarkID: findBookmark(second.WorkflowExecutionContext, "b").ID,
	})
	require.NoError(t, err)
	require.Equal(t, floe.WorkflowSubStatusFinished, third.WorkflowExecutionContext.SubStatus())
	requireQuiescent(t, third.WorkflowExecutionContext)
}

func TestInterruptedRunResumption(t *testing.T) {
	executions := 0
	work := floe.NewBehaviorFunction("work", func(aec *floe.ActivityExecutionContext) error {
		executions++
		if err := aec.SetVariable("done", true); err != nil {
			return err
		}
		aec.Complete()
		return nil
	})
	wf, err := floe.New(floe.Options{
		Name:      "interrupted",
		Variables: []*floe.Variable{{Name: "done", Default: false}},
		Root:      &floe.ActivityNode{ID: "job", Type: "work"},
	})
	require.NoError(t, err)

	runner := newTestRunner(t, testRegistry(work))
	first, err := runner.Run(context.Background(), wf, nil)
	require.NoError(t, err)
	require.Equal(t, 1, executions)

	// Rewind the snapshot to look like a run that was interrupted mid-turn:
	// the context is still executing and nothing is scheduled.
	state := first.WorkflowState
	state.Status = floe.WorkflowStatusRunning
	state.SubStatus = floe.WorkflowSubStatusExecuting
	record := &state.ActivityExecutionContexts[0]
	record.Status = floe.ActivityStatusRunning
	record.IsExecuting = true
	record.CompletedAt = time.Time{}

	second, err := runner.Resume(context.Background(), wf, state, nil)
	require.NoError(t, err)
	require.Equal(t, 2, executions)
	require.Equal(t, floe.WorkflowSubStatusFinished, second.WorkflowExecutionContext.SubStatus())
	requireQuiescent(t, second.WorkflowExecutionContext)
}

func TestSeedingErrors(t *testing.T) {
	wf := suspendingWorkflow(t)
	runner := newTestRunner(t, testRegistry())
	ctx := context.Background()

	suspended, err := runner.Run(ctx, wf, nil)
	require.NoError(t, err)
	state := suspended.WorkflowState

	t.Run("unknown bookmark", func(t *testing.T) {
		_, err := runner.Resume(ctx, wf, state, &floe.RunWorkflowOptions{BookmarkID: "bmk_missing"})
		require.ErrorIs(t, err, floe.ErrBookmarkNotFound)
	})

	t.Run("unknown execution context", func(t *testing.T) {
		_, err := runner.Resume(ctx, wf, state, &floe.RunWorkflowOptions{
			ActivityHandle: &floe.ActivityHandle{ActivityInstanceID: "aec_missing"},
		})
		require.ErrorIs(t, err, floe.ErrContextNotFound)
	})

	t.Run("unknown activity", func(t *testing.T) {
		_, err := runner.Resume(ctx, wf, state, &floe.RunWorkflowOptions{
			ActivityHandle: &floe.ActivityHandle{ActivityID: "nonexistent"},
		})
		require.ErrorIs(t, err, floe.ErrActivityNotFound)
	})

	t.Run("bookmark and handle are mutually exclusive", func(t *testing.T) {
		_, err := runner.Resume(ctx, wf, state, &floe.RunWorkflowOptions{
			BookmarkID:     state.Bookmarks[0].ID,
			ActivityHandle: &floe.ActivityHandle{ActivityID: "sety"},
		})
		require.ErrorIs(t, err, floe.ErrInvalidOptions)
	})

	t.Run("state version newer than engine", func(t *testing.T) {
		newer := *state
		newer.StateFormatVersion = floe.StateFormatVersion + 1
		_, err := runner.Resume(ctx, wf, &newer, nil)
		require.ErrorIs(t, err, floe.ErrStateVersionMismatch)
	})
}

func TestResumeByActivityHandle(t *testing.T) {
	wf := suspendingWorkflow(t)
	runner := newTestRunner(t, testRegistry())
	ctx := context.Background()

	suspended, err := runner.Run(ctx, wf, nil)
	require.NoError(t, err)

	// Target a specific activity by its definition ID. A fresh context is
	// created for it; the outstanding bookmark is untouched.
	result, err := runner.Resume(ctx, wf, suspended.WorkflowState, &floe.RunWorkflowOptions{
		ActivityHandle: &floe.ActivityHandle{ActivityID: "sety"},
	})
	require.NoError(t, err)

	wec := result.WorkflowExecutionContext
	require.Equal(t, floe.WorkflowSubStatusSuspended, wec.SubStatus())
	require.Len(t, wec.Bookmarks(), 1)
	y, _, err := wec.Memory().GetNamed("y")
	require.NoError(t, err)
	require.Equal(t, float64(2), asFloat(t, y))
}

func TestDynamicVariables(t *testing.T) {
	var observed any
	probe := floe.NewBehaviorFunction("probe", func(aec *floe.ActivityExecutionContext) error {
		observed, _, _ = aec.GetVariable("who")
		aec.CreateBookmark(floe.BookmarkOptions{Name: "pause"})
		return nil
	})
	wf, err := floe.New(floe.Options{
		Name: "dynamic-vars",
		Root: &floe.ActivityNode{ID: "p", Type: "probe"},
	})
	require.NoError(t, err)

	runner := newTestRunner(t, testRegistry(probe))
	first, err := runner.Run(context.Background(), wf, &floe.RunWorkflowOptions{
		Variables: map[string]any{"who": "ada"},
	})
	require.NoError(t, err)

	// Readable by activities in the same turn.
	require.Equal(t, "ada", observed)

	// Persisted across turns.
	found := false
	for _, block := range first.WorkflowState.Variables {
		if block.Name == "who" {
			require.Equal(t, floe.BlockKindDynamic, block.Kind)
			require.Equal(t, "ada", block.Value)
			found = true
		}
	}
	require.True(t, found)

	second, err := runner.Resume(context.Background(), wf, first.WorkflowState, &floe.RunWorkflowOptions{
		BookmarkID: first.WorkflowExecutionContext.Bookmarks()[0].ID,
	})
	require.NoError(t, err)
	value, ok, err := second.WorkflowExecutionContext.Memory().GetNamed("who")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ada", value)
}

func TestWorkflowResult(t *testing.T) {
	wf, err := floe.New(floe.Options{
		Name:      "with-result",
		Variables: []*floe.Variable{{Name: "answer", Default: 0}},
		Result:    "answer",
		Root: &floe.ActivityNode{
			ID:         "set",
			Type:       "setVariable",
			Properties: map[string]any{"name": "answer", "value": 41},
		},
	})
	require.NoError(t, err)

	runner := newTestRunner(t, testRegistry())
	result, err := runner.Run(context.Background(), wf, nil)
	require.NoError(t, err)
	require.Equal(t, 41, result.Result)
}

func TestCancellation(t *testing.T) {
	wf := suspendingWorkflow(t)
	runner := newTestRunner(t, testRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := runner.Run(ctx, wf, nil)
	require.NoError(t, err)
	wec := result.WorkflowExecutionContext
	require.Equal(t, floe.WorkflowStatusFinished, wec.Status())
	require.Equal(t, floe.WorkflowSubStatusCancelled, wec.SubStatus())
	requireQuiescent(t, wec)
}

func TestCommitFailureStillReturnsConsistentState(t *testing.T) {
	wf := suspendingWorkflow(t)
	failing := &failingStore{}
	runner, err := floe.NewRunner(floe.RunnerOptions{
		Registry: testRegistry(),
		Store:    failing,
	})
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), wf, nil)
	require.Error(t, err)
	require.NotNil(t, result)
	require.Equal(t, floe.WorkflowSubStatusSuspended, result.WorkflowExecutionContext.SubStatus())
	require.NotNil(t, result.WorkflowState)
}

type failingStore struct{}

func (s *failingStore) Save(ctx context.Context, state *floe.WorkflowState) error {
	return errors.New("disk full")
}

func (s *failingStore) Load(ctx context.Context, instanceID string) (*floe.WorkflowState, error) {
	return nil, nil
}

func (s *failingStore) Delete(ctx context.Context, instanceID string) error {
	return nil
}

func TestChildWorkflow(t *testing.T) {
	child, err := floe.New(floe.Options{
		Name:      "child",
		Variables: []*floe.Variable{{Name: "out", Default: 0}},
		Result:    "out",
		Root: &floe.ActivityNode{
			ID:         "produce",
			Type:       "setVariable",
			Properties: map[string]any{"name": "out", "value": 7},
		},
	})
	require.NoError(t, err)

	workflows := floe.NewMemoryWorkflowRegistry()
	require.NoError(t, workflows.Register(child))

	registry := testRegistry()
	runner := newTestRunner(t, registry)
	registry.Register(activities.NewRunWorkflowActivity(runner, workflows))

	parent, err := floe.New(floe.Options{
		Name:      "parent",
		Variables: []*floe.Variable{{Name: "childResult", Default: nil}},
		Result:    "childResult",
		Root: &floe.ActivityNode{
			ID:   "call",
			Type: "runWorkflow",
			Properties: map[string]any{
				"workflow": "child",
				"store":    "childResult",
			},
		},
	})
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), parent, nil)
	require.NoError(t, err)
	require.Equal(t, floe.WorkflowSubStatusFinished, result.WorkflowExecutionContext.SubStatus())
	require.Equal(t, 7, result.Result)

	aec := result.WorkflowExecutionContext.ActivityExecutions()[0]
	require.NotEmpty(t, aec.Output()["instance_id"])
}
