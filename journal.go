package floe

import (
	"context"
)

// ExecutionJournal is a sink for the workflow's execution log. The runner
// writes the entries produced by each turn at commit time.
type ExecutionJournal interface {
	// WriteEntries appends entries for a workflow instance
	WriteEntries(ctx context.Context, instanceID string, entries []LogEntry) error

	// ReadEntries retrieves the journal for a workflow instance
	ReadEntries(ctx context.Context, instanceID string) ([]LogEntry, error)
}

// NullExecutionJournal is a no-op implementation of ExecutionJournal.
type NullExecutionJournal struct{}

func NewNullExecutionJournal() *NullExecutionJournal {
	return &NullExecutionJournal{}
}

func (j *NullExecutionJournal) WriteEntries(ctx context.Context, instanceID string, entries []LogEntry) error {
	return nil
}

func (j *NullExecutionJournal) ReadEntries(ctx context.Context, instanceID string) ([]LogEntry, error) {
	return nil, nil
}
