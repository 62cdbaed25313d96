package floe

// VariableScope controls where a variable's value lives.
type VariableScope string

const (
	// VariableScopeWorkflow binds the variable on the workflow's root register.
	VariableScopeWorkflow VariableScope = "workflow"

	// VariableScopeLocal binds the variable on the declaring activity's register.
	VariableScopeLocal VariableScope = "local"

	// VariableScopeTransient binds on the declaring activity's register but is
	// excluded from extracted state.
	VariableScopeTransient VariableScope = "transient"
)

// Variable declares a named slot with a storage scope and a default value.
type Variable struct {
	Name          string        `json:"name" yaml:"name"`
	Type          string        `json:"type,omitempty" yaml:"type,omitempty"`
	Scope         VariableScope `json:"scope,omitempty" yaml:"scope,omitempty"`
	Default       any           `json:"default,omitempty" yaml:"default,omitempty"`
	StorageDriver string        `json:"storage_driver,omitempty" yaml:"storage_driver,omitempty"`
}

// BlockID returns the variable's identity within a memory register. Declared
// variables are keyed by the declaring node so that two activities may declare
// the same name without colliding.
func (v *Variable) BlockID(nodeID string) string {
	if v.Scope == VariableScopeWorkflow || nodeID == "" {
		return "workflow/" + v.Name
	}
	return nodeID + "/" + v.Name
}
