package reconcile

import (
	"fmt"

	"github.com/roach88/recon/internal/job"
)

// Outcome classifies how a notification was handled.
type Outcome int

const (
	// OutcomeCompleted means results were collected and the assignment
	// is now Completed.
	OutcomeCompleted Outcome = iota + 1

	// OutcomeDomainFailure means the external job reported a non-success
	// status and the assignment is now Failed.
	OutcomeDomainFailure

	// OutcomeAggregationFailure means the external job succeeded but
	// collecting or committing its results failed, and the assignment is
	// now Failed.
	OutcomeAggregationFailure

	// OutcomeSkipped means the assignment was already terminal and was
	// not touched.
	OutcomeSkipped

	// OutcomeRejected means the notification was malformed and the
	// assignment, which was not yet final, is now Failed.
	OutcomeRejected
)

var outcomeNames = map[Outcome]string{
	OutcomeCompleted:          "completed",
	OutcomeDomainFailure:      "domain_failure",
	OutcomeAggregationFailure: "aggregation_failure",
	OutcomeSkipped:            "skipped",
	OutcomeRejected:           "rejected",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result describes what Handle did.
type Result struct {
	Outcome      Outcome `json:"outcome"`
	AssignmentID string  `json:"assignmentId"`

	// Holder identifies this invocation in lock records and logs.
	Holder string `json:"holder"`

	// Status is the assignment's status after handling. For a skipped
	// notification it is the terminal status found.
	Status job.Status `json:"status"`

	// Artifacts lists the persisted result pages on completion.
	Artifacts []job.Artifact `json:"artifacts,omitempty"`

	// Problem is the failure recorded, if any.
	Problem *job.ProblemDetail `json:"problem,omitempty"`

	// CommitErr is set when recording a failure itself failed. The
	// assignment was left as it was before this notification.
	CommitErr error `json:"-"`
}
