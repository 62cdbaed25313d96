package activities

import (
	"fmt"

	"github.com/deepnoodle-ai/floe"
)

// FaultActivity fails with a configurable message. Useful for modeling
// explicit failure paths and for testing fault propagation.
type FaultActivity struct{}

func NewFaultActivity() *FaultActivity {
	return &FaultActivity{}
}

func (a *FaultActivity) TypeName() string {
	return "fault"
}

func (a *FaultActivity) Execute(aec *floe.ActivityExecutionContext) error {
	message := aec.PropertyString("message")
	if message == "" {
		message = "intentional fault"
	}
	return fmt.Errorf("%s", message)
}
