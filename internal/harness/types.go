package harness

import (
	"errors"

	"github.com/roach88/docquery/internal/queryir"
)

// StepResult is the recorded outcome of one step. Data is the result
// payload normalized to plain JSON values (int64, float64, string, bool,
// []any, map[string]any).
type StepResult struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Type  string `json:"type,omitempty"`
	Shape string `json:"shape,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step met its expectations.
	Pass bool `json:"pass"`

	// Steps holds one entry per step, in order.
	Steps []StepResult `json:"steps"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// errorLabel renders err for snapshots: the kind of a query error, the
// message otherwise.
func errorLabel(err error) string {
	var qe *queryir.Error
	if errors.As(err, &qe) {
		return string(qe.Kind)
	}
	return err.Error()
}
