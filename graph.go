package floe

import (
	"fmt"
)

// NodeIDSeparator joins activity IDs into a node ID (the path from the root).
const NodeIDSeparator = ":"

// WorkflowGraph is the materialized form of a workflow: the root activity
// plus indexes allowing lookup by ID, by node ID (path from root), by type,
// and by tag.
type WorkflowGraph struct {
	workflow *Workflow
	root     *ActivityNode
	byID     map[string]*ActivityNode
	byNodeID map[string]*ActivityNode
	nodeIDs  map[*ActivityNode]string
	parents  map[string]*ActivityNode
	byType   map[string][]*ActivityNode
	byTag    map[string][]*ActivityNode
	nodes    []*ActivityNode
}

// NewWorkflowGraph walks the workflow's activity tree and builds the lookup
// indexes. Duplicate activity IDs are rejected.
func NewWorkflowGraph(w *Workflow) (*WorkflowGraph, error) {
	g := &WorkflowGraph{
		workflow: w,
		root:     w.Root(),
		byID:     map[string]*ActivityNode{},
		byNodeID: map[string]*ActivityNode{},
		nodeIDs:  map[*ActivityNode]string{},
		parents:  map[string]*ActivityNode{},
		byType:   map[string][]*ActivityNode{},
		byTag:    map[string][]*ActivityNode{},
	}
	if err := g.index(w.Root(), nil, ""); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *WorkflowGraph) index(node *ActivityNode, parent *ActivityNode, parentNodeID string) error {
	if node.ID == "" {
		return fmt.Errorf("activity of type %q has no id", node.Type)
	}
	if node.Type == "" {
		return fmt.Errorf("activity %q has no type", node.ID)
	}
	if _, exists := g.byID[node.ID]; exists {
		return fmt.Errorf("duplicate activity id %q", node.ID)
	}
	nodeID := node.ID
	if parentNodeID != "" {
		nodeID = parentNodeID + NodeIDSeparator + node.ID
	}
	g.byID[node.ID] = node
	g.byNodeID[nodeID] = node
	g.nodeIDs[node] = nodeID
	g.byType[node.Type] = append(g.byType[node.Type], node)
	if node.Tag != "" {
		g.byTag[node.Tag] = append(g.byTag[node.Tag], node)
	}
	if parent != nil {
		g.parents[nodeID] = parent
	}
	g.nodes = append(g.nodes, node)
	for _, child := range node.Children() {
		if err := g.index(child, node, nodeID); err != nil {
			return err
		}
	}
	return nil
}

// Workflow returns the owning workflow definition.
func (g *WorkflowGraph) Workflow() *Workflow {
	return g.workflow
}

// Root returns the root activity node.
func (g *WorkflowGraph) Root() *ActivityNode {
	return g.root
}

// Nodes returns all nodes in depth-first order.
func (g *WorkflowGraph) Nodes() []*ActivityNode {
	return g.nodes
}

// NodeByID returns the activity with the given stable ID.
func (g *WorkflowGraph) NodeByID(id string) (*ActivityNode, bool) {
	node, ok := g.byID[id]
	return node, ok
}

// NodeByNodeID returns the activity at the given path from the root.
func (g *WorkflowGraph) NodeByNodeID(nodeID string) (*ActivityNode, bool) {
	node, ok := g.byNodeID[nodeID]
	return node, ok
}

// NodeByName returns the first activity with the given name.
func (g *WorkflowGraph) NodeByName(name string) (*ActivityNode, bool) {
	for _, node := range g.nodes {
		if node.Name == name {
			return node, true
		}
	}
	return nil, false
}

// NodesByType returns all activities with the given type tag.
func (g *WorkflowGraph) NodesByType(typeName string) []*ActivityNode {
	return g.byType[typeName]
}

// NodesByTag returns all activities with the given tag.
func (g *WorkflowGraph) NodesByTag(tag string) []*ActivityNode {
	return g.byTag[tag]
}

// NodeID returns the node ID (path from root) for a node in this graph.
func (g *WorkflowGraph) NodeID(node *ActivityNode) string {
	return g.nodeIDs[node]
}

// ParentOf returns the parent of the node with the given node ID.
func (g *WorkflowGraph) ParentOf(nodeID string) (*ActivityNode, bool) {
	parent, ok := g.parents[nodeID]
	return parent, ok
}

// Contains reports whether the node belongs to this graph.
func (g *WorkflowGraph) Contains(node *ActivityNode) bool {
	_, ok := g.nodeIDs[node]
	return ok
}
