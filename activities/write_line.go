package activities

import (
	"fmt"
	"io"
	"os"

	"github.com/deepnoodle-ai/floe"
	"github.com/deepnoodle-ai/floe/script"
)

// WriteLineActivity writes a line of text to the configured writer. The text
// may be an expression evaluated against the visible variables when the
// "expression" property is set.
type WriteLineActivity struct {
	writer   io.Writer
	compiler script.Compiler
}

func NewWriteLineActivity(writer io.Writer, compiler script.Compiler) *WriteLineActivity {
	if writer == nil {
		writer = os.Stdout
	}
	if compiler == nil {
		compiler = script.NewExprScriptingEngine(nil)
	}
	return &WriteLineActivity{writer: writer, compiler: compiler}
}

func (a *WriteLineActivity) TypeName() string {
	return "writeLine"
}

func (a *WriteLineActivity) Execute(aec *floe.ActivityExecutionContext) error {
	text := aec.PropertyString("text")
	if expression := aec.PropertyString("expression"); expression != "" {
		compiled, err := a.compiler.Compile(aec.Context(), expression)
		if err != nil {
			return fmt.Errorf("invalid expression on activity %q: %w", aec.Node().ID, err)
		}
		result, err := compiled.Evaluate(aec.Context(), aec.VisibleVariables())
		if err != nil {
			return fmt.Errorf("expression evaluation failed on activity %q: %w", aec.Node().ID, err)
		}
		text = result.String()
	}
	if _, err := fmt.Fprintln(a.writer, text); err != nil {
		return err
	}
	aec.SetOutput("text", text)
	aec.Complete()
	return nil
}
