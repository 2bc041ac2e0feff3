package harness

import (
	"github.com/roach88/subsku/internal/activity"
	"github.com/roach88/subsku/internal/dispatch"
)

// StepOutcome is the recorded result of one event.
type StepOutcome struct {
	Step    int
	Outcome dispatch.Outcome
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool

	// Steps holds one outcome per event, in order.
	Steps []StepOutcome

	// Activity is the full activity log after the last event.
	Activity []activity.Activity

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepOutcome{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
