package floe

import (
	"fmt"
	"sort"
	"sync"
)

// WorkflowRegistry manages a collection of workflow definitions, looked up by
// name when starting child workflows or resolving host requests.
type WorkflowRegistry interface {
	// Register adds a workflow to the registry
	Register(workflow *Workflow) error

	// Get retrieves a workflow by name
	Get(name string) (*Workflow, bool)

	// List returns all registered workflow names
	List() []string
}

// MemoryWorkflowRegistry implements WorkflowRegistry using in-memory storage.
type MemoryWorkflowRegistry struct {
	mutex     sync.RWMutex
	workflows map[string]*Workflow
}

// NewMemoryWorkflowRegistry creates a new in-memory workflow registry
func NewMemoryWorkflowRegistry() *MemoryWorkflowRegistry {
	return &MemoryWorkflowRegistry{workflows: map[string]*Workflow{}}
}

// Register adds a workflow to the registry
func (r *MemoryWorkflowRegistry) Register(workflow *Workflow) error {
	if workflow == nil {
		return fmt.Errorf("workflow cannot be nil")
	}
	if workflow.Name() == "" {
		return fmt.Errorf("workflow name cannot be empty")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.workflows[workflow.Name()] = workflow
	return nil
}

// Get retrieves a workflow by name
func (r *MemoryWorkflowRegistry) Get(name string) (*Workflow, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	workflow, exists := r.workflows[name]
	return workflow, exists
}

// List returns all registered workflow names, sorted
func (r *MemoryWorkflowRegistry) List() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
