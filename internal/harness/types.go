package harness

import "github.com/roach88/orbit/internal/sample"

// DispatchEvent records one step.
type DispatchEvent struct {
	Seq    int64  `json:"seq"`
	Intent string `json:"intent"`
	Input  any    `json:"input,omitempty"`

	// Error is the dispatch error code, if the dispatch failed.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step and assertion matched.
	Pass bool `json:"pass"`

	// Errors holds step and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	ContainerID string `json:"container_id"`

	// Restored is true when the initial state came from a store.
	Restored bool `json:"restored,omitempty"`

	Dispatches []DispatchEvent `json:"dispatches"`
	States     []sample.State  `json:"states"`
	Effects    []sample.Effect `json:"effects"`
	FinalState sample.State    `json:"final_state"`

	// ContainerError is the code of the error that failed the container.
	ContainerError string `json:"container_error,omitempty"`
}

// NewResult creates a passing result with empty traces.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Errors:     []string{},
		Dispatches: []DispatchEvent{},
		States:     []sample.State{},
		Effects:    []sample.Effect{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
