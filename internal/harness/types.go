package harness

import "github.com/roach88/roomstate/internal/event"

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// Trace lists the replayed events in order.
	Trace []Step `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the state at END restricted to the slots that changed since
	// START or that a final_state assertion names.
	State event.StateMap `json:"-"`

	// Resolutions counts the forks where state was resolved.
	Resolutions int `json:"resolutions"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []Step{},
		Errors: []string{},
		State:  event.StateMap{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
