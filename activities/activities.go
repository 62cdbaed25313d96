// Package activities provides the standard activity library for the floe
// engine: the scheduling composites (sequence, parallel, if, forEach) and the
// common leaves (setVariable, writeLine, event, fault, runScript,
// runWorkflow). Activity behaviors are stateless; each exercises the engine's
// public execution-context surface.
package activities

import (
	"github.com/deepnoodle-ai/floe"
	"github.com/deepnoodle-ai/floe/script"
)

// Confirm the capability interfaces are implemented correctly.
var (
	_ floe.CompositeBehavior = (*SequenceActivity)(nil)
	_ floe.CompositeBehavior = (*ParallelActivity)(nil)
	_ floe.CompositeBehavior = (*IfActivity)(nil)
	_ floe.CompositeBehavior = (*ForEachActivity)(nil)
	_ floe.ResumableBehavior = (*EventActivity)(nil)
	_ floe.Behavior          = (*SetVariableActivity)(nil)
	_ floe.Behavior          = (*WriteLineActivity)(nil)
	_ floe.Behavior          = (*FaultActivity)(nil)
	_ floe.Behavior          = (*RunScriptActivity)(nil)
	_ floe.Behavior          = (*RunWorkflowActivity)(nil)
)

// Defaults returns the standard behaviors, configured with the given script
// compiler for conditions and expressions. A nil compiler falls back to the
// expr engine.
func Defaults(compiler script.Compiler) []floe.Behavior {
	return []floe.Behavior{
		NewSequenceActivity(),
		NewParallelActivity(),
		NewIfActivity(compiler),
		NewForEachActivity(compiler),
		NewSetVariableActivity(compiler),
		NewWriteLineActivity(nil, compiler),
		NewEventActivity(),
		NewFaultActivity(),
		NewRunScriptActivity(nil),
	}
}

// DefaultRegistry returns a behavior registry holding the standard behaviors.
func DefaultRegistry(compiler script.Compiler) *floe.BehaviorRegistry {
	return floe.NewBehaviorRegistry(Defaults(compiler)...)
}
