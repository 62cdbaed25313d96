package floe

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options are used to configure a workflow definition.
type Options struct {
	Name         string        `json:"name" yaml:"name"`
	DefinitionID string        `json:"definition_id,omitempty" yaml:"definition_id,omitempty"`
	Version      int           `json:"version,omitempty" yaml:"version,omitempty"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	Root         *ActivityNode `json:"root" yaml:"root"`
	Variables    []*Variable   `json:"variables,omitempty" yaml:"variables,omitempty"`
	Result       string        `json:"result,omitempty" yaml:"result,omitempty"`
}

// Workflow defines a repeatable process as a tree of activities to be
// executed. Definitions are immutable; all runtime state lives on the
// workflow execution context.
type Workflow struct {
	name         string
	definitionID string
	version      int
	description  string
	root         *ActivityNode
	variables    []*Variable
	result       string
	graph        *WorkflowGraph
}

// New returns a new Workflow configured with the given options.
func New(opts Options) (*Workflow, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("workflow name required")
	}
	if opts.Root == nil {
		return nil, fmt.Errorf("workflow root activity required")
	}
	if opts.DefinitionID == "" {
		opts.DefinitionID = opts.Name
	}
	if opts.Version == 0 {
		opts.Version = 1
	}
	w := &Workflow{
		name:         opts.Name,
		definitionID: opts.DefinitionID,
		version:      opts.Version,
		description:  opts.Description,
		root:         opts.Root,
		variables:    opts.Variables,
		result:       opts.Result,
	}
	graph, err := NewWorkflowGraph(w)
	if err != nil {
		return nil, fmt.Errorf("workflow validation failed: %w", err)
	}
	w.graph = graph
	if w.result != "" {
		if !w.declaresVariable(w.result) {
			return nil, fmt.Errorf("result variable %q is not declared", w.result)
		}
	}
	return w, nil
}

func (w *Workflow) declaresVariable(name string) bool {
	for _, v := range w.variables {
		if v.Name == name {
			return true
		}
	}
	return false
}

// Name returns the workflow name
func (w *Workflow) Name() string {
	return w.name
}

// DefinitionID returns the stable definition identifier
func (w *Workflow) DefinitionID() string {
	return w.definitionID
}

// Version returns the definition version
func (w *Workflow) Version() int {
	return w.version
}

// Description returns the workflow description
func (w *Workflow) Description() string {
	return w.description
}

// Root returns the root activity node
func (w *Workflow) Root() *ActivityNode {
	return w.root
}

// Variables returns the workflow-scoped variable declarations
func (w *Workflow) Variables() []*Variable {
	return w.variables
}

// Result returns the name of the workflow's result variable, if any
func (w *Workflow) Result() string {
	return w.result
}

// Graph returns the materialized workflow graph.
func (w *Workflow) Graph() *WorkflowGraph {
	return w.graph
}

// LoadFile loads a workflow definition from a YAML file
func LoadFile(path string) (*Workflow, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return LoadString(string(yamlData))
}

// LoadString loads a workflow definition from a YAML string
func LoadString(data string) (*Workflow, error) {
	var opts Options
	if err := yaml.Unmarshal([]byte(data), &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow definition: %w", err)
	}
	return New(opts)
}
