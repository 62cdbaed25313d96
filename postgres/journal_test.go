package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/deepnoodle-ai/floe"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("floe"),
		tcpostgres.WithUsername("floe"),
		tcpostgres.WithPassword("floe"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("docker not available, skipping postgres journal tests: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	journal, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })
	return journal
}

func TestJournalWriteAndRead(t *testing.T) {
	journal := openTestJournal(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	firstTurn := []floe.LogEntry{
		{Timestamp: now, Event: floe.ExecutionLogWorkflowStarted},
		{Timestamp: now, Event: floe.ExecutionLogActivityStarted, ActivityInstanceID: "aec_1", ActivityNodeID: "main"},
		{Timestamp: now, Event: floe.ExecutionLogBookmarkCreated, ActivityInstanceID: "aec_2", ActivityNodeID: "main:wait", Data: map[string]any{"name": "evt"}},
	}
	secondTurn := []floe.LogEntry{
		{Timestamp: now.Add(time.Second), Event: floe.ExecutionLogActivityCompleted, ActivityInstanceID: "aec_2", Data: map[string]any{"outcome": "done"}},
		{Timestamp: now.Add(time.Second), Event: floe.ExecutionLogWorkflowFinished},
	}
	require.NoError(t, journal.WriteEntries(ctx, "wf_pg_1", firstTurn))
	require.NoError(t, journal.WriteEntries(ctx, "wf_pg_1", secondTurn))
	require.NoError(t, journal.WriteEntries(ctx, "wf_pg_other", []floe.LogEntry{
		{Timestamp: now, Event: floe.ExecutionLogWorkflowStarted},
	}))

	entries, err := journal.ReadEntries(ctx, "wf_pg_1")
	require.NoError(t, err)
	require.Len(t, entries, 5)
	require.Equal(t, floe.ExecutionLogWorkflowStarted, entries[0].Event)
	require.Equal(t, floe.ExecutionLogWorkflowFinished, entries[4].Event)
	require.Equal(t, "evt", entries[2].Data["name"])
	require.Equal(t, "aec_2", entries[3].ActivityInstanceID)

	t.Run("unknown instance reads empty", func(t *testing.T) {
		entries, err := journal.ReadEntries(ctx, "wf_pg_unknown")
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		require.NoError(t, journal.WriteEntries(ctx, "wf_pg_1", nil))
	})
}

func TestJournalAsRunnerSink(t *testing.T) {
	journal := openTestJournal(t)

	registry := floe.NewBehaviorRegistry(
		floe.NewBehaviorFunction("noop", func(aec *floe.ActivityExecutionContext) error {
			aec.Complete()
			return nil
		}),
	)
	runner, err := floe.NewRunner(floe.RunnerOptions{Registry: registry, Journal: journal})
	require.NoError(t, err)

	wf, err := floe.New(floe.Options{
		Name: "journaled",
		Root: &floe.ActivityNode{ID: "only", Type: "noop"},
	})
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), wf, nil)
	require.NoError(t, err)

	entries, err := journal.ReadEntries(context.Background(), result.WorkflowExecutionContext.InstanceID())
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.Equal(t, floe.ExecutionLogWorkflowStarted, entries[0].Event)
	require.Equal(t, floe.ExecutionLogWorkflowFinished, entries[len(entries)-1].Event)
}
