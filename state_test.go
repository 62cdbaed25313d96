package floe_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/floe"
)

// normalize marshals a state to JSON and back so that value types are
// comparable regardless of which side of a round-trip they came from.
func normalize(t *testing.T, state *floe.WorkflowState) map[string]any {
	t.Helper()
	data, err := json.Marshal(state)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	// The extraction timestamp is the one field allowed to differ.
	delete(out, "extracted_at")
	return out
}

func requireStateEquivalent(t *testing.T, expected, actual *floe.WorkflowState) {
	t.Helper()
	require.Equal(t, normalize(t, expected), normalize(t, actual))
}

func TestStateRoundTrip(t *testing.T) {
	wf := suspendingWorkflow(t)
	runner := newTestRunner(t, testRegistry())

	first, err := runner.Run(context.Background(), wf, nil)
	require.NoError(t, err)
	original := first.WorkflowState

	// Serialize to bytes and back, as an external store would.
	data, err := json.Marshal(original)
	require.NoError(t, err)
	var decoded floe.WorkflowState
	require.NoError(t, json.Unmarshal(data, &decoded))

	wec, err := floe.ApplyWorkflowState(&decoded, wf.Graph(), floe.WorkflowExecutionContextOptions{
		Registry: testRegistry(),
	})
	require.NoError(t, err)
	reExtracted := floe.ExtractWorkflowState(wec)

	requireStateEquivalent(t, original, reExtracted)

	// Structural spot checks on the invariant fields.
	require.Equal(t, original.Status, reExtracted.Status)
	require.Equal(t, original.SubStatus, reExtracted.SubStatus)
	require.Len(t, reExtracted.ActivityExecutionContexts, len(original.ActivityExecutionContexts))
	require.Len(t, reExtracted.Bookmarks, len(original.Bookmarks))
	require.Equal(t, original.SortedBlockIDs(), reExtracted.SortedBlockIDs())
	require.Len(t, reExtracted.Scheduler, len(original.Scheduler))
}

func TestApplyRejectsUnknownNodes(t *testing.T) {
	wf := suspendingWorkflow(t)
	runner := newTestRunner(t, testRegistry())
	first, err := runner.Run(context.Background(), wf, nil)
	require.NoError(t, err)

	state := first.WorkflowState
	state.ActivityExecutionContexts[0].NodeID = "main:vanished"

	_, err = floe.ApplyWorkflowState(state, wf.Graph(), floe.WorkflowExecutionContextOptions{
		Registry: testRegistry(),
	})
	require.ErrorIs(t, err, floe.ErrActivityNotFound)
}

func TestStateMigrations(t *testing.T) {
	t.Run("newer state is rejected", func(t *testing.T) {
		wf := suspendingWorkflow(t)
		state := &floe.WorkflowState{
			StateFormatVersion: floe.StateFormatVersion + 1,
			InstanceID:         "wf_future",
		}
		_, err := floe.ApplyWorkflowState(state, wf.Graph(), floe.WorkflowExecutionContextOptions{})
		require.ErrorIs(t, err, floe.ErrStateVersionMismatch)
	})

	t.Run("older state without a migration is rejected", func(t *testing.T) {
		wf := suspendingWorkflow(t)
		state := &floe.WorkflowState{
			StateFormatVersion: 0,
			InstanceID:         "wf_ancient",
		}
		_, err := floe.ApplyWorkflowState(state, wf.Graph(), floe.WorkflowExecutionContextOptions{})
		require.ErrorIs(t, err, floe.ErrStateVersionMismatch)
	})
}

// Round-trip invariance over workflows suspended at randomly chosen points:
// a parallel block of n events with k of them already resumed.
func TestStateRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("extract/apply preserves observable state", prop.ForAll(
		func(events int, resumes int) bool {
			if resumes > events {
				resumes = events
			}
			var children []*floe.ActivityNode
			names := make([]string, 0, events)
			for i := 0; i < events; i++ {
				name := string(rune('a' + i))
				names = append(names, name)
				children = append(children, &floe.ActivityNode{
					ID:         "wait-" + name,
					Type:       "event",
					Properties: map[string]any{"event": name},
				})
			}
			wf, err := floe.New(floe.Options{
				Name: "property-parallel",
				Root: &floe.ActivityNode{ID: "par", Type: "parallel", Do: children},
			})
			if err != nil {
				return false
			}
			runner := newTestRunner(t, testRegistry())
			result, err := runner.Run(context.Background(), wf, nil)
			if err != nil {
				return false
			}
			for i := 0; i < resumes; i++ {
				wec := result.WorkflowExecutionContext
				var bookmarkID string
				for _, bookmark := range wec.Bookmarks() {
					if bookmark.Name == names[i] {
						bookmarkID = bookmark.ID
					}
				}
				if bookmarkID == "" {
					return false
				}
				result, err = runner.Resume(context.Background(), wf, result.WorkflowState, &floe.RunWorkflowOptions{
					BookmarkID: bookmarkID,
				})
				if err != nil {
					return false
				}
			}

			original := result.WorkflowState
			data, err := json.Marshal(original)
			if err != nil {
				return false
			}
			var decoded floe.WorkflowState
			if err := json.Unmarshal(data, &decoded); err != nil {
				return false
			}
			wec, err := floe.ApplyWorkflowState(&decoded, wf.Graph(), floe.WorkflowExecutionContextOptions{
				Registry: testRegistry(),
			})
			if err != nil {
				return false
			}
			roundTripped := floe.ExtractWorkflowState(wec)

			expected := normalize(t, original)
			actual := normalize(t, roundTripped)
			if len(expected) != len(actual) {
				return false
			}
			for key, value := range expected {
				if !jsonEqual(value, actual[key]) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 6),
		gen.IntRange(0, 6),
	))

	properties.TestingRun(t)
}

func jsonEqual(a, b any) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(left) == string(right)
}
