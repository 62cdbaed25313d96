package floe

import (
	"go.jetify.com/typeid"
)

// IdentityGenerator produces unique identifiers for the engine's entities.
// Implementations must be safe for concurrent use.
type IdentityGenerator interface {

	// NewWorkflowInstanceID returns a new workflow instance ID
	NewWorkflowInstanceID() string

	// NewActivityExecutionID returns a new activity execution context ID
	NewActivityExecutionID() string

	// NewBookmarkID returns a new bookmark ID
	NewBookmarkID() string

	// NewIncidentID returns a new incident ID
	NewIncidentID() string
}

// TypeIDGenerator generates prefixed, sortable identifiers.
type TypeIDGenerator struct{}

// NewTypeIDGenerator returns the default identity generator.
func NewTypeIDGenerator() *TypeIDGenerator {
	return &TypeIDGenerator{}
}

func (g *TypeIDGenerator) NewWorkflowInstanceID() string {
	return newID("wf")
}

func (g *TypeIDGenerator) NewActivityExecutionID() string {
	return newID("aec")
}

func (g *TypeIDGenerator) NewBookmarkID() string {
	return newID("bmk")
}

func (g *TypeIDGenerator) NewIncidentID() string {
	return newID("inc")
}

func newID(prefix string) string {
	id, err := typeid.WithPrefix(prefix)
	if err != nil {
		panic(err)
	}
	return id.String()
}
