package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AssignmentPathPrefix is the collection path job assignment ids live under.
const AssignmentPathPrefix = "/job-assignments/"

var (
	// ErrNotFound is returned when a referenced job assignment does not exist.
	ErrNotFound = errors.New("job assignment not found")

	// ErrTerminal is returned when a transition is attempted on an
	// assignment that already reached a terminal status.
	ErrTerminal = errors.New("job assignment already in final state")
)

// Well-known parameter names.
const (
	ParamInputFile   = "inputFile"
	ParamOutputFiles = "outputFiles"
)

// Locator points at a stored blob.
type Locator struct {
	URL string `json:"url"`
}

// Artifact is one persisted result page, positioned among its siblings.
// Sequence starts at 1 and follows fetch order.
type Artifact struct {
	Locator  Locator `json:"locator"`
	Sequence int     `json:"sequence"`
}

// ParameterBag maps parameter names to JSON-compatible values.
type ParameterBag map[string]any

// Locator decodes the named parameter as a Locator. It accepts a Locator,
// a map with a url field, or a bare URL string.
func (b ParameterBag) Locator(name string) (Locator, error) {
	v, ok := b[name]
	if !ok || v == nil {
		return Locator{}, fmt.Errorf("parameter %q missing", name)
	}
	switch val := v.(type) {
	case Locator:
		return val, nil
	case *Locator:
		return *val, nil
	case string:
		return Locator{URL: val}, nil
	case map[string]any:
		url, _ := val["url"].(string)
		if url == "" {
			return Locator{}, fmt.Errorf("parameter %q has no url", name)
		}
		return Locator{URL: url}, nil
	default:
		return Locator{}, fmt.Errorf("parameter %q: unsupported locator type %T", name, v)
	}
}

// Assignment is the internal record of one delegated unit of external work.
type Assignment struct {
	ID        string         `json:"id"`
	Status    Status         `json:"status"`
	JobInput  ParameterBag   `json:"jobInput"`
	JobOutput ParameterBag   `json:"jobOutput,omitempty"`
	Tracker   map[string]any `json:"tracker,omitempty"`
	Error     *ProblemDetail `json:"error,omitempty"`
	CreatedAt time.Time      `json:"dateCreated"`
	UpdatedAt time.Time      `json:"dateModified"`
}

// AssignmentID builds the record id for a job guid.
func AssignmentID(guid string) string {
	return AssignmentPathPrefix + guid
}

// GUID returns the last path segment of the assignment id.
func (a *Assignment) GUID() string {
	return a.ID[strings.LastIndex(a.ID, "/")+1:]
}

// InputFile returns the assignment's input file locator.
func (a *Assignment) InputFile() (Locator, error) {
	return a.JobInput.Locator(ParamInputFile)
}

// OutputFiles returns the output locators recorded on completion, in order.
func (a *Assignment) OutputFiles() []Locator {
	if a.JobOutput == nil {
		return nil
	}
	switch v := a.JobOutput[ParamOutputFiles].(type) {
	case []Locator:
		return v
	case []any:
		// Decoded from storage.
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var locs []Locator
		if err := json.Unmarshal(raw, &locs); err != nil {
			return nil
		}
		return locs
	}
	return nil
}

// Complete transitions the assignment to Completed, recording outputs in
// fetch order.
func (a *Assignment) Complete(outputs []Locator, now time.Time) error {
	if a.Status.IsTerminal() {
		return fmt.Errorf("complete %s: %w (%s)", a.ID, ErrTerminal, a.Status)
	}
	if a.JobOutput == nil {
		a.JobOutput = ParameterBag{}
	}
	a.JobOutput[ParamOutputFiles] = append([]Locator(nil), outputs...)
	a.Status = StatusCompleted
	a.Error = nil
	a.UpdatedAt = now
	return nil
}

// Fail transitions the assignment to Failed with the given problem.
// JobOutput is left untouched.
func (a *Assignment) Fail(problem ProblemDetail, now time.Time) error {
	if a.Status.IsTerminal() {
		return fmt.Errorf("fail %s: %w (%s)", a.ID, ErrTerminal, a.Status)
	}
	p := problem
	a.Error = &p
	a.Status = StatusFailed
	a.UpdatedAt = now
	return nil
}

// Clone returns a deep-enough copy for callers that must not observe
// in-place mutation of the original.
func (a *Assignment) Clone() *Assignment {
	c := *a
	c.JobInput = cloneBag(a.JobInput)
	c.JobOutput = cloneBag(a.JobOutput)
	if a.Tracker != nil {
		c.Tracker = make(map[string]any, len(a.Tracker))
		for k, v := range a.Tracker {
			c.Tracker[k] = v
		}
	}
	if a.Error != nil {
		e := *a.Error
		c.Error = &e
	}
	return &c
}

func cloneBag(b ParameterBag) ParameterBag {
	if b == nil {
		return nil
	}
	out := make(ParameterBag, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}
