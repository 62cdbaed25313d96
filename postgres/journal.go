// Package postgres provides a Postgres-backed execution journal for
// deployments that keep an audit trail of workflow transitions.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/deepnoodle-ai/floe"
)

// Journal implements floe.ExecutionJournal on a Postgres database. Entries
// for one commit are written in a single transaction.
type Journal struct {
	db *sql.DB
}

// Confirm the interface is implemented.
var _ floe.ExecutionJournal = (*Journal)(nil)

// Open connects to the database at the given DSN and creates the journal
// schema if needed.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	journal := &Journal{db: db}
	if err := journal.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return journal, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS execution_journal (
	id            BIGSERIAL PRIMARY KEY,
	instance_id   TEXT NOT NULL,
	event         TEXT NOT NULL,
	aec_id        TEXT NOT NULL DEFAULT '',
	node_id       TEXT NOT NULL DEFAULT '',
	occurred_at   TIMESTAMPTZ NOT NULL,
	data          JSONB
);
CREATE INDEX IF NOT EXISTS idx_execution_journal_instance
	ON execution_journal (instance_id, id);
`
	_, err := j.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// WriteEntries appends entries for a workflow instance in one transaction.
func (j *Journal) WriteEntries(ctx context.Context, instanceID string, entries []floe.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(
		"execution_journal", "instance_id", "event", "aec_id", "node_id", "occurred_at", "data"))
	if err != nil {
		return fmt.Errorf("failed to prepare journal insert: %w", err)
	}
	for _, entry := range entries {
		var data []byte
		if entry.Data != nil {
			if data, err = json.Marshal(entry.Data); err != nil {
				return fmt.Errorf("failed to marshal journal data: %w", err)
			}
		}
		if _, err := stmt.ExecContext(ctx,
			instanceID,
			entry.Event,
			entry.ActivityInstanceID,
			entry.ActivityNodeID,
			entry.Timestamp,
			nullableJSON(data),
		); err != nil {
			return fmt.Errorf("failed to write journal entry: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to flush journal entries: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close journal insert: %w", err)
	}
	return tx.Commit()
}

// ReadEntries retrieves the journal for a workflow instance in write order.
func (j *Journal) ReadEntries(ctx context.Context, instanceID string) ([]floe.LogEntry, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT event, aec_id, node_id, occurred_at, data
FROM execution_journal
WHERE instance_id = $1
ORDER BY id`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	defer rows.Close()

	var entries []floe.LogEntry
	for rows.Next() {
		var entry floe.LogEntry
		var data sql.NullString
		if err := rows.Scan(
			&entry.Event,
			&entry.ActivityInstanceID,
			&entry.ActivityNodeID,
			&entry.Timestamp,
			&data,
		); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &entry.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal journal data: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
