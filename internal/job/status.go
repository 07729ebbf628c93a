package job

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a job assignment.
type Status string

const (
	StatusCreated   Status = "Created"
	StatusQueued    Status = "Queued"
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusCanceled  Status = "Canceled"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusCreated,
	StatusQueued,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCanceled,
}

// IsTerminal reports whether no further transition is permitted from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// ParseStatus resolves a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// UnmarshalJSON accepts any casing of a known status name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("job status: %w", err)
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}
