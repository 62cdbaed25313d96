package floe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWorkflowValidation(t *testing.T) {
	t.Run("missing name returns error", func(t *testing.T) {
		_, err := New(Options{Root: &ActivityNode{ID: "root", Type: "noop"}})
		require.Error(t, err)
		require.Contains(t, err.Error(), "name required")
	})

	t.Run("missing root returns error", func(t *testing.T) {
		_, err := New(Options{Name: "wf"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "root activity required")
	})

	t.Run("duplicate activity ids are rejected", func(t *testing.T) {
		_, err := New(Options{
			Name: "wf",
			Root: &ActivityNode{
				ID:   "root",
				Type: "sequence",
				Do: []*ActivityNode{
					{ID: "step", Type: "noop"},
					{ID: "step", Type: "noop"},
				},
			},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "duplicate activity id")
	})

	t.Run("undeclared result variable is rejected", func(t *testing.T) {
		_, err := New(Options{
			Name:   "wf",
			Root:   &ActivityNode{ID: "root", Type: "noop"},
			Result: "missing",
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "not declared")
	})

	t.Run("definition defaults", func(t *testing.T) {
		wf, err := New(Options{Name: "wf", Root: &ActivityNode{ID: "root", Type: "noop"}})
		require.NoError(t, err)
		require.Equal(t, "wf", wf.DefinitionID())
		require.Equal(t, 1, wf.Version())
	})
}

func TestWorkflowGraphIndexes(t *testing.T) {
	wf, err := New(Options{
		Name: "indexed",
		Root: &ActivityNode{
			ID:   "main",
			Type: "sequence",
			Do: []*ActivityNode{
				{ID: "fetch", Type: "http", Name: "Fetch order", Tag: "io"},
				{ID: "branch", Type: "if", Ports: map[string][]*ActivityNode{
					"then": {{ID: "approve", Type: "noop"}},
					"else": {{ID: "reject", Type: "noop", Tag: "io"}},
				}},
			},
		},
	})
	require.NoError(t, err)
	graph := wf.Graph()

	t.Run("by id", func(t *testing.T) {
		node, ok := graph.NodeByID("approve")
		require.True(t, ok)
		require.Equal(t, "noop", node.Type)
	})

	t.Run("by node id", func(t *testing.T) {
		node, ok := graph.NodeByNodeID("main:branch:approve")
		require.True(t, ok)
		require.Equal(t, "approve", node.ID)

		_, ok = graph.NodeByNodeID("approve")
		require.False(t, ok)
	})

	t.Run("by name", func(t *testing.T) {
		node, ok := graph.NodeByName("Fetch order")
		require.True(t, ok)
		require.Equal(t, "fetch", node.ID)
	})

	t.Run("by type", func(t *testing.T) {
		require.Len(t, graph.NodesByType("noop"), 2)
		require.Len(t, graph.NodesByType("http"), 1)
	})

	t.Run("by tag", func(t *testing.T) {
		require.Len(t, graph.NodesByTag("io"), 2)
	})

	t.Run("parent lookup", func(t *testing.T) {
		parent, ok := graph.ParentOf("main:branch:approve")
		require.True(t, ok)
		require.Equal(t, "branch", parent.ID)
	})

	t.Run("contains", func(t *testing.T) {
		node, _ := graph.NodeByID("fetch")
		require.True(t, graph.Contains(node))
		require.False(t, graph.Contains(&ActivityNode{ID: "stranger", Type: "noop"}))
	})
}

func TestLoadStringYAML(t *testing.T) {
	wf, err := LoadString(`
name: order-flow
description: Processes one order
variables:
  - name: total
    default: 0
result: total
root:
  id: main
  type: sequence
  do:
    - id: compute
      type: setVariable
      properties:
        name: total
        value: 42
    - id: gate
      type: if
      properties:
        condition: "total > 10"
      ports:
        then:
          - id: notify
            type: writeLine
            properties:
              text: large order
`)
	require.NoError(t, err)
	require.Equal(t, "order-flow", wf.Name())
	require.Equal(t, "total", wf.Result())

	node, ok := wf.Graph().NodeByID("gate")
	require.True(t, ok)
	require.Equal(t, "total > 10", node.Properties["condition"])
	require.Len(t, node.Port("then"), 1)
	require.Equal(t, []string{"then"}, node.PortNames())

	root := wf.Root()
	require.Equal(t, []string{"do"}, root.PortNames())
	require.Len(t, root.Children(), 2)
}

func TestLoadStringInvalidYAML(t *testing.T) {
	_, err := LoadString("{{nope")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to unmarshal")
}
