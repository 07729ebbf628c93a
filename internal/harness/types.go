package harness

import (
	"github.com/roach88/recon/internal/job"
	"github.com/roach88/recon/internal/store"
)

// StepResult records what one delivered notification did.
type StepResult struct {
	Outcome   string             `json:"outcome,omitempty"`
	Status    job.Status         `json:"status,omitempty"`
	Holder    string             `json:"holder,omitempty"`
	Artifacts []job.Artifact     `json:"artifacts,omitempty"`
	Problem   *job.ProblemDetail `json:"problem,omitempty"`

	// Error is the error Handle returned, if any.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation matched.
	Pass bool `json:"pass"`

	// Errors lists expectation mismatches. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Steps has one entry per scenario step, in order.
	Steps []StepResult `json:"steps"`

	// Final is the stored assignment after the last step.
	Final *job.Assignment `json:"final"`

	// Calls lists every external call made, in order.
	Calls []string `json:"calls"`

	// Artifacts holds every stored blob in key order.
	Artifacts []store.ArtifactRecord `json:"artifacts"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		Steps:  []StepResult{},
	}
}

// AddError adds a mismatch and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
