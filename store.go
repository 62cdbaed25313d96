package floe

import (
	"context"
	"time"
)

// StateStore persists workflow state snapshots keyed by instance ID.
type StateStore interface {
	// Save persists the snapshot, replacing any prior state for the instance
	Save(ctx context.Context, state *WorkflowState) error

	// Load returns the latest snapshot for an instance, or nil when none exists
	Load(ctx context.Context, instanceID string) (*WorkflowState, error)

	// Delete removes all state for an instance
	Delete(ctx context.Context, instanceID string) error
}

// InstanceSummary provides a summary view of a persisted workflow instance.
type InstanceSummary struct {
	InstanceID   string            `json:"instance_id"`
	DefinitionID string            `json:"definition_id"`
	Status       WorkflowStatus    `json:"status"`
	SubStatus    WorkflowSubStatus `json:"sub_status"`
	Incidents    int               `json:"incidents"`
	Bookmarks    int               `json:"bookmarks"`
	ExtractedAt  time.Time         `json:"extracted_at,omitzero"`
}

// Summarize builds an instance summary from a state snapshot.
func Summarize(state *WorkflowState) *InstanceSummary {
	return &InstanceSummary{
		InstanceID:   state.InstanceID,
		DefinitionID: state.DefinitionID,
		Status:       state.Status,
		SubStatus:    state.SubStatus,
		Incidents:    len(state.Incidents),
		Bookmarks:    len(state.Bookmarks),
		ExtractedAt:  state.ExtractedAt,
	}
}

// NullStateStore is a no-op implementation of StateStore.
type NullStateStore struct{}

func NewNullStateStore() *NullStateStore {
	return &NullStateStore{}
}

func (s *NullStateStore) Save(ctx context.Context, state *WorkflowState) error {
	return nil
}

func (s *NullStateStore) Load(ctx context.Context, instanceID string) (*WorkflowState, error) {
	return nil, nil
}

func (s *NullStateStore) Delete(ctx context.Context, instanceID string) error {
	return nil
}
