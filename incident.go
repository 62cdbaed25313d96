package floe

import (
	"time"
)

// Incident records a fault captured during workflow execution.
type Incident struct {
	ID                 string    `json:"id"`
	ActivityInstanceID string    `json:"activity_instance_id,omitempty"`
	ActivityNodeID     string    `json:"activity_node_id,omitempty"`
	Kind               string    `json:"kind"`
	Message            string    `json:"message"`
	Details            any       `json:"details,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// Copy returns a shallow copy of the incident.
func (i *Incident) Copy() *Incident {
	copied := *i
	return &copied
}

// FaultStrategy controls how activity faults propagate.
type FaultStrategy string

const (
	// FaultStrategyPropagate faults parent activities toward the root and
	// ends the workflow as faulted. This is the default.
	FaultStrategyPropagate FaultStrategy = "propagate"

	// FaultStrategyContain records the incident and keeps the workflow
	// running. The faulted activity's parent is notified like any other
	// child completion.
	FaultStrategyContain FaultStrategy = "contain"
)
