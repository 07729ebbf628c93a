package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/recon/internal/job"
)

// Scenario defines one reconciliation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Clock is the fixed wall-clock time of the run (RFC 3339).
	Clock string `yaml:"clock,omitempty"`

	// Assignment is the record notifications reconcile against.
	Assignment AssignmentSeed `yaml:"assignment"`

	// External scripts the external system's responses.
	External ExternalScript `yaml:"external"`

	// Steps are delivered in order.
	Steps []Step `yaml:"steps"`

	// Final is checked against the stored assignment after all steps.
	Final *FinalExpect `yaml:"final,omitempty"`
}

// AssignmentSeed describes the initial job assignment.
type AssignmentSeed struct {
	GUID      string `yaml:"guid"`
	Status    string `yaml:"status"`
	InputFile string `yaml:"input_file"`
}

// ExternalScript describes what the external system returns.
type ExternalScript struct {
	// Pages are raw result page bodies, chained in order.
	Pages []string `yaml:"pages,omitempty"`

	// Failures maps a page token, job name or URL to an error message.
	Failures map[string]string `yaml:"failures,omitempty"`

	// Transcription describes a transcription job's outputs.
	Transcription *TranscriptionScript `yaml:"transcription,omitempty"`

	// Files maps download URLs to their content.
	Files map[string]string `yaml:"files,omitempty"`
}

// TranscriptionScript mirrors external.TranscriptionOutputs.
type TranscriptionScript struct {
	JobName       string   `yaml:"job_name"`
	Status        string   `yaml:"status"`
	TranscriptURI string   `yaml:"transcript_uri,omitempty"`
	SubtitleURIs  []string `yaml:"subtitle_uris,omitempty"`
}

// Step delivers one notification.
type Step struct {
	Notification NotificationSpec `yaml:"notification"`
	Expect       *StepExpect      `yaml:"expect,omitempty"`
}

// NotificationSpec is a notification in scenario form. Assignment
// defaults to the scenario's assignment guid.
type NotificationSpec struct {
	Assignment string `yaml:"assignment,omitempty"`
	Kind       string `yaml:"kind"`
	Status     string `yaml:"status"`
	JobID      string `yaml:"job_id,omitempty"`
	Reason     string `yaml:"reason,omitempty"`
}

// StepExpect checks the outcome of one step. Unset fields are not checked.
type StepExpect struct {
	// Outcome is the expected reconcile.Outcome name.
	Outcome string `yaml:"outcome,omitempty"`

	// Status is the expected assignment status after the step.
	Status string `yaml:"status,omitempty"`

	// Artifacts is the expected number of persisted artifacts.
	Artifacts *int `yaml:"artifacts,omitempty"`

	// ProblemType is the expected recorded problem type URI.
	ProblemType string `yaml:"problem_type,omitempty"`

	// Error is a substring the returned error must contain. Setting it
	// asserts that the step returns an error.
	Error string `yaml:"error,omitempty"`
}

// FinalExpect checks the stored assignment. Unset fields are not checked.
type FinalExpect struct {
	Status      string  `yaml:"status,omitempty"`
	Outputs     *int    `yaml:"outputs,omitempty"`
	ProblemType string  `yaml:"problem_type,omitempty"`
	Detail      *string `yaml:"detail,omitempty"`
}

// DefaultClock is the run time when a scenario sets none.
var DefaultClock = time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// clock returns the scenario's run time.
func (s *Scenario) clock() (time.Time, error) {
	if s.Clock == "" {
		return DefaultClock, nil
	}
	return time.Parse(time.RFC3339, s.Clock)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := s.clock(); err != nil {
		return fmt.Errorf("clock: %w", err)
	}

	if s.Assignment.GUID == "" {
		return fmt.Errorf("assignment.guid is required")
	}
	if s.Assignment.InputFile == "" {
		return fmt.Errorf("assignment.input_file is required")
	}
	if s.Assignment.Status == "" {
		s.Assignment.Status = string(job.StatusRunning)
	}
	if _, err := job.ParseStatus(s.Assignment.Status); err != nil {
		return fmt.Errorf("assignment.status: %w", err)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		n := step.Notification
		if n.Kind == "" {
			return fmt.Errorf("steps[%d].notification: kind is required", i)
		}
		if n.Status == "" {
			return fmt.Errorf("steps[%d].notification: status is required", i)
		}
		if step.Expect != nil && step.Expect.Error != "" && step.Expect.Outcome != "" {
			return fmt.Errorf("steps[%d].expect: error and outcome are exclusive", i)
		}
	}

	if s.Final != nil && s.Final.Status != "" {
		if _, err := job.ParseStatus(s.Final.Status); err != nil {
			return fmt.Errorf("final.status: %w", err)
		}
	}
	return nil
}
