// Package sqlite provides a SQLite-backed workflow state store suitable for
// single-host deployments and local tooling.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deepnoodle-ai/floe"
)

// Store implements floe.StateStore on a SQLite database. Snapshots are kept
// as JSON documents alongside the columns needed for listing and filtering.
type Store struct {
	db *sql.DB
}

// Confirm the interface is implemented.
var _ floe.StateStore = (*Store)(nil)

// Open creates a store backed by the database file at path, creating the
// schema if needed. WAL mode is enabled for concurrent readers.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	connStr := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS workflow_instances (
	instance_id   TEXT PRIMARY KEY,
	definition_id TEXT NOT NULL,
	tenant_id     TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	sub_status    TEXT NOT NULL,
	incidents     INTEGER NOT NULL DEFAULT 0,
	bookmarks     INTEGER NOT NULL DEFAULT 0,
	extracted_at  TIMESTAMP,
	state         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_workflow_instances_definition
	ON workflow_instances (definition_id);
CREATE INDEX IF NOT EXISTS idx_workflow_instances_status
	ON workflow_instances (status, sub_status);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists the snapshot, replacing any prior state for the instance.
func (s *Store) Save(ctx context.Context, state *floe.WorkflowState) error {
	document, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO workflow_instances
	(instance_id, definition_id, tenant_id, status, sub_status, incidents, bookmarks, extracted_at, state)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (instance_id) DO UPDATE SET
	definition_id = excluded.definition_id,
	tenant_id     = excluded.tenant_id,
	status        = excluded.status,
	sub_status    = excluded.sub_status,
	incidents     = excluded.incidents,
	bookmarks     = excluded.bookmarks,
	extracted_at  = excluded.extracted_at,
	state         = excluded.state`,
		state.InstanceID,
		state.DefinitionID,
		state.TenantID,
		string(state.Status),
		string(state.SubStatus),
		len(state.Incidents),
		len(state.Bookmarks),
		state.ExtractedAt,
		string(document),
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow state: %w", err)
	}
	return nil
}

// Load returns the latest snapshot for an instance, or nil when none exists.
func (s *Store) Load(ctx context.Context, instanceID string) (*floe.WorkflowState, error) {
	var document string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM workflow_instances WHERE instance_id = ?`, instanceID).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow state: %w", err)
	}
	var state floe.WorkflowState
	if err := json.Unmarshal([]byte(document), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow state: %w", err)
	}
	return &state, nil
}

// Delete removes all state for an instance.
func (s *Store) Delete(ctx context.Context, instanceID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_instances WHERE instance_id = ?`, instanceID); err != nil {
		return fmt.Errorf("failed to delete workflow state: %w", err)
	}
	return nil
}

// ListInstances returns summaries for all persisted instances, newest first.
func (s *Store) ListInstances(ctx context.Context) ([]*floe.InstanceSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT instance_id, definition_id, status, sub_status, incidents, bookmarks, extracted_at
FROM workflow_instances
ORDER BY extracted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow instances: %w", err)
	}
	defer rows.Close()

	var summaries []*floe.InstanceSummary
	for rows.Next() {
		var summary floe.InstanceSummary
		var extractedAt sql.NullTime
		if err := rows.Scan(
			&summary.InstanceID,
			&summary.DefinitionID,
			&summary.Status,
			&summary.SubStatus,
			&summary.Incidents,
			&summary.Bookmarks,
			&extractedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
		}
		if extractedAt.Valid {
			summary.ExtractedAt = extractedAt.Time
		}
		summaries = append(summaries, &summary)
	}
	return summaries, rows.Err()
}
