package floe

import (
	"fmt"
	"sort"
	"time"
)

// StateFormatVersion is the schema version written into extracted state.
// State written by a newer engine is rejected with ErrStateVersionMismatch;
// older versions go through registered migrations.
const StateFormatVersion = 1

// BlockState is the persisted form of one memory block. Driver-backed blocks
// persist no value; the value lives in the external store.
type BlockState struct {
	ID            string        `json:"id"`
	Name          string        `json:"name,omitempty"`
	Kind          BlockKind     `json:"kind"`
	Scope         VariableScope `json:"scope,omitempty"`
	StorageDriver string        `json:"storage_driver,omitempty"`
	Value         any           `json:"value,omitempty"`
}

// ActivityExecutionState is the persisted form of one activity execution
// context. Parent linkage is by ID; the tree is reconstructed on apply.
type ActivityExecutionState struct {
	ID          string         `json:"id"`
	NodeID      string         `json:"node_id"`
	ParentID    string         `json:"parent_id,omitempty"`
	Status      ActivityStatus `json:"status"`
	Outcome     string         `json:"outcome,omitempty"`
	Tag         string         `json:"tag,omitempty"`
	IsExecuting bool           `json:"is_executing"`
	StartedAt   time.Time      `json:"started_at,omitzero"`
	CompletedAt time.Time      `json:"completed_at,omitzero"`
	Properties  map[string]any `json:"properties,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Variables   []BlockState   `json:"variables,omitempty"`
}

// ScheduledWorkState is the persisted form of one scheduler item.
type ScheduledWorkState struct {
	Kind        WorkItemKind   `json:"kind"`
	NodeID      string         `json:"node_id,omitempty"`
	OwnerID     string         `json:"owner_id,omitempty"`
	Tag         string         `json:"tag,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	ExistingID  string         `json:"existing_id,omitempty"`
	BookmarkID  string         `json:"bookmark_id,omitempty"`
	ChildID     string         `json:"child_id,omitempty"`
}

// WorkflowState is the fully structural, serializable snapshot of a workflow
// execution context.
type WorkflowState struct {
	StateFormatVersion        int                      `json:"state_format_version"`
	InstanceID                string                   `json:"instance_id"`
	DefinitionID              string                   `json:"definition_id"`
	DefinitionVersion         int                      `json:"definition_version"`
	TenantID                  string                   `json:"tenant_id,omitempty"`
	CorrelationID             string                   `json:"correlation_id,omitempty"`
	ParentInstanceID          string                   `json:"parent_instance_id,omitempty"`
	Status                    WorkflowStatus           `json:"status"`
	SubStatus                 WorkflowSubStatus        `json:"sub_status"`
	Input                     map[string]any           `json:"input,omitempty"`
	Output                    map[string]any           `json:"output,omitempty"`
	Properties                map[string]any           `json:"properties,omitempty"`
	Variables                 []BlockState             `json:"variables,omitempty"`
	ActivityExecutionContexts []ActivityExecutionState `json:"activity_execution_contexts,omitempty"`
	Bookmarks                 []*Bookmark              `json:"bookmarks,omitempty"`
	Incidents                 []*Incident              `json:"incidents,omitempty"`
	Scheduler                 []ScheduledWorkState     `json:"scheduler,omitempty"`
	ExecutionLog              []LogEntry               `json:"execution_log,omitempty"`
	ExtractedAt               time.Time                `json:"extracted_at,omitzero"`
}

func extractBlocks(register *MemoryRegister) []BlockState {
	blocks := register.Blocks()
	states := make([]BlockState, 0, len(blocks))
	for _, block := range blocks {
		state := BlockState{
			ID:            block.ID,
			Name:          block.Name,
			Kind:          block.Kind,
			Scope:         block.Scope,
			StorageDriver: block.StorageDriver,
		}
		if block.StorageDriver == "" {
			state.Value = block.Value
		}
		states = append(states, state)
	}
	return states
}

// ExtractWorkflowState converts a workflow execution context to its
// serializable snapshot. The snapshot round-trips: applying it to the same
// graph yields a context with identical observable state.
func ExtractWorkflowState(wec *WorkflowExecutionContext) *WorkflowState {
	workflow := wec.Graph().Workflow()
	state := &WorkflowState{
		StateFormatVersion: StateFormatVersion,
		InstanceID:         wec.InstanceID(),
		DefinitionID:       workflow.DefinitionID(),
		DefinitionVersion:  workflow.Version(),
		TenantID:           wec.TenantID(),
		CorrelationID:      wec.CorrelationID(),
		ParentInstanceID:   wec.ParentWorkflowInstanceID(),
		Status:             wec.Status(),
		SubStatus:          wec.SubStatus(),
		Input:              copyMap(wec.Input()),
		Output:             copyMap(wec.Output()),
		Properties:         copyMap(wec.Properties()),
		Variables:          extractBlocks(wec.Memory()),
		ExtractedAt:        wec.now(),
	}

	for _, aec := range wec.ActivityExecutions() {
		state.ActivityExecutionContexts = append(state.ActivityExecutionContexts, ActivityExecutionState{
			ID:          aec.ID(),
			NodeID:      aec.NodeID(),
			ParentID:    aec.parentID,
			Status:      aec.Status(),
			Outcome:     aec.Outcome(),
			Tag:         aec.Tag(),
			IsExecuting: aec.IsExecuting(),
			StartedAt:   aec.StartedAt(),
			CompletedAt: aec.CompletedAt(),
			Properties:  copyMap(aec.Properties()),
			Input:       copyMap(aec.Input()),
			Output:      copyMap(aec.Output()),
			Variables:   extractBlocks(aec.Memory()),
		})
	}

	for _, bookmark := range wec.Bookmarks() {
		state.Bookmarks = append(state.Bookmarks, bookmark.Copy())
	}
	for _, incident := range wec.Incidents() {
		state.Incidents = append(state.Incidents, incident.Copy())
	}
	state.ExecutionLog = append(state.ExecutionLog, wec.ExecutionLog()...)

	for _, item := range wec.Scheduler().Items() {
		itemState := ScheduledWorkState{
			Kind:      item.Kind,
			Tag:       item.Tag,
			Input:     copyMap(item.Input),
			Variables: copyMap(item.Variables),
			ChildID:   item.ChildID,
		}
		if item.Node != nil {
			itemState.NodeID = wec.Graph().NodeID(item.Node)
		}
		if item.Owner != nil {
			itemState.OwnerID = item.Owner.ID()
		}
		if item.ExistingAEC != nil {
			itemState.ExistingID = item.ExistingAEC.ID()
		}
		if item.Bookmark != nil {
			itemState.BookmarkID = item.Bookmark.ID
		}
		state.Scheduler = append(state.Scheduler, itemState)
	}
	return state
}

// StateMigration upgrades a state document from the given version to the
// next one.
type StateMigration func(state *WorkflowState) error

var stateMigrations = map[int]StateMigration{}

// RegisterStateMigration registers a migration from the given format version
// to the next.
func RegisterStateMigration(fromVersion int, migration StateMigration) {
	stateMigrations[fromVersion] = migration
}

func migrateState(state *WorkflowState) error {
	if state.StateFormatVersion > StateFormatVersion {
		return NewEngineErrorf(ErrorKindStateVersionMismatch,
			"state format version %d is newer than supported version %d",
			state.StateFormatVersion, StateFormatVersion)
	}
	for state.StateFormatVersion < StateFormatVersion {
		migration, ok := stateMigrations[state.StateFormatVersion]
		if !ok {
			return NewEngineErrorf(ErrorKindStateVersionMismatch,
				"no migration registered from state format version %d", state.StateFormatVersion)
		}
		if err := migration(state); err != nil {
			return fmt.Errorf("state migration from version %d failed: %w", state.StateFormatVersion, err)
		}
		state.StateFormatVersion++
	}
	return nil
}

func applyBlocks(register *MemoryRegister, blocks []BlockState) {
	for _, blockState := range blocks {
		register.Declare(&MemoryBlock{
			ID:            blockState.ID,
			Name:          blockState.Name,
			Kind:          blockState.Kind,
			Scope:         blockState.Scope,
			StorageDriver: blockState.StorageDriver,
			Value:         blockState.Value,
		})
	}
}

// ApplyWorkflowState reconstructs an executable workflow execution context
// from a snapshot. Activity execution contexts are rebuilt in recorded order
// with parents wired by ID, variables are rebound, bookmarks rebuilt, and the
// scheduler queue replayed without executing it. The options supply the
// engine services; identity fields are taken from the state.
func ApplyWorkflowState(state *WorkflowState, graph *WorkflowGraph, opts WorkflowExecutionContextOptions) (*WorkflowExecutionContext, error) {
	if err := migrateState(state); err != nil {
		return nil, err
	}

	opts.Graph = graph
	opts.InstanceID = state.InstanceID
	opts.CorrelationID = state.CorrelationID
	opts.ParentWorkflowInstanceID = state.ParentInstanceID
	opts.TenantID = state.TenantID
	opts.Input = state.Input
	opts.Properties = state.Properties
	wec, err := NewWorkflowExecutionContext(opts)
	if err != nil {
		return nil, err
	}
	wec.status = state.Status
	wec.subStatus = state.SubStatus
	wec.output = copyMap(state.Output)
	if wec.output == nil {
		wec.output = map[string]any{}
	}

	applyBlocks(wec.memory, state.Variables)

	for _, record := range state.ActivityExecutionContexts {
		node, ok := graph.NodeByNodeID(record.NodeID)
		if !ok {
			return nil, NewEngineErrorf(ErrorKindActivityNotFound,
				"persisted context %q references unknown activity node %q", record.ID, record.NodeID)
		}
		parentRegister := wec.memory
		if record.ParentID != "" {
			parent, ok := wec.ActivityExecution(record.ParentID)
			if !ok {
				return nil, NewEngineErrorf(ErrorKindContextNotFound,
					"persisted context %q references unknown parent %q", record.ID, record.ParentID)
			}
			parentRegister = parent.memory
		}
		register := parentRegister.CreateChild()
		applyBlocks(register, record.Variables)
		aec := &ActivityExecutionContext{
			id:          record.ID,
			wec:         wec,
			node:        node,
			parentID:    record.ParentID,
			status:      record.Status,
			outcome:     record.Outcome,
			tag:         record.Tag,
			isExecuting: record.IsExecuting,
			startedAt:   record.StartedAt,
			completedAt: record.CompletedAt,
			properties:  copyMap(record.Properties),
			input:       copyMap(record.Input),
			output:      copyMap(record.Output),
			memory:      register,
		}
		wec.attachActivityExecution(aec)
	}

	for _, bookmark := range state.Bookmarks {
		if _, ok := wec.ActivityExecution(bookmark.ActivityInstanceID); !ok {
			return nil, NewEngineErrorf(ErrorKindContextNotFound,
				"bookmark %q references unknown execution context %q", bookmark.ID, bookmark.ActivityInstanceID)
		}
		wec.bookmarks = append(wec.bookmarks, bookmark.Copy())
	}
	for _, incident := range state.Incidents {
		wec.incidents = append(wec.incidents, incident.Copy())
	}
	wec.executionLog = append(wec.executionLog, state.ExecutionLog...)

	for _, itemState := range state.Scheduler {
		item := &WorkItem{
			Kind:      itemState.Kind,
			Tag:       itemState.Tag,
			Input:     copyMap(itemState.Input),
			Variables: copyMap(itemState.Variables),
			ChildID:   itemState.ChildID,
		}
		if itemState.NodeID != "" {
			node, ok := graph.NodeByNodeID(itemState.NodeID)
			if !ok {
				return nil, NewEngineErrorf(ErrorKindActivityNotFound,
					"persisted scheduler item references unknown activity node %q", itemState.NodeID)
			}
			item.Node = node
		}
		if itemState.OwnerID != "" {
			owner, ok := wec.ActivityExecution(itemState.OwnerID)
			if !ok {
				return nil, NewEngineErrorf(ErrorKindContextNotFound,
					"persisted scheduler item references unknown owner %q", itemState.OwnerID)
			}
			item.Owner = owner
		}
		if itemState.ExistingID != "" {
			existing, ok := wec.ActivityExecution(itemState.ExistingID)
			if !ok {
				return nil, NewEngineErrorf(ErrorKindContextNotFound,
					"persisted scheduler item references unknown execution context %q", itemState.ExistingID)
			}
			item.ExistingAEC = existing
		}
		if itemState.BookmarkID != "" {
			bookmark, ok := wec.FindBookmark(itemState.BookmarkID)
			if !ok {
				return nil, NewEngineErrorf(ErrorKindBookmarkNotFound,
					"persisted scheduler item references unknown bookmark %q", itemState.BookmarkID)
			}
			item.Bookmark = bookmark
		}
		wec.scheduler.Schedule(item)
	}

	return wec, nil
}

// SortedBlockIDs returns the block IDs of a state's variable list, sorted.
// Useful for structural comparisons in tests and stores.
func (s *WorkflowState) SortedBlockIDs() []string {
	ids := make([]string, 0, len(s.Variables))
	for _, block := range s.Variables {
		ids = append(ids, block.ID)
	}
	sort.Strings(ids)
	return ids
}
