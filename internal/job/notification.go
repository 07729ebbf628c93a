package job

import (
	"errors"
	"fmt"
)

// StatusSucceeded is the only reported status that denotes success.
const StatusSucceeded = "SUCCEEDED"

// ErrInvalidNotification wraps every notification validation failure.
var ErrInvalidNotification = errors.New("invalid notification")

// Notification signals that an external job reached an outcome.
type Notification struct {
	JobAssignmentID string         `json:"jobAssignmentId"`
	JobKind         Kind           `json:"jobKind"`
	ReportedStatus  string         `json:"reportedStatus"`
	ExternalJobID   string         `json:"externalJobId"`
	Tracker         map[string]any `json:"tracker,omitempty"`

	// FailureReason is the external system's explanation, when it gave one.
	FailureReason string `json:"failureReason,omitempty"`
}

// Succeeded reports whether the external job reported success.
func (n Notification) Succeeded() bool {
	return n.ReportedStatus == StatusSucceeded
}

// ValidateTarget checks that n names an assignment. A notification for an
// assignment in a final state is ignored whatever else it carries.
func (n Notification) ValidateTarget() error {
	if n.JobAssignmentID == "" {
		return fmt.Errorf("%w: jobAssignmentId is required", ErrInvalidNotification)
	}
	return nil
}

// Validate checks the fields reconciliation cannot proceed without.
func (n Notification) Validate() error {
	if err := n.ValidateTarget(); err != nil {
		return err
	}
	switch {
	case !n.JobKind.Valid():
		return fmt.Errorf("%w: unsupported jobKind", ErrInvalidNotification)
	case n.ReportedStatus == "":
		return fmt.Errorf("%w: reportedStatus is required", ErrInvalidNotification)
	case n.Succeeded() && n.ExternalJobID == "":
		return fmt.Errorf("%w: externalJobId is required for a succeeded job", ErrInvalidNotification)
	}
	return nil
}
