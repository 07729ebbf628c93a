package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/recon/internal/job"
)

// Snapshot renders a result as canonical JSON for golden comparison.
// Record timestamps are left out.
func Snapshot(name string, r *Result) ([]byte, error) {
	steps := make([]any, len(r.Steps))
	for i, s := range r.Steps {
		m := map[string]any{}
		if s.Error != "" {
			m["error"] = s.Error
		} else {
			m["outcome"] = s.Outcome
			m["status"] = string(s.Status)
			m["holder"] = s.Holder
			m["artifacts"] = len(s.Artifacts)
		}
		if s.Problem != nil {
			m["problem"] = problemMap(s.Problem)
		}
		steps[i] = m
	}

	final := map[string]any{"status": string(r.Final.Status)}
	outputs := []any{}
	for _, loc := range r.Final.OutputFiles() {
		outputs = append(outputs, loc.URL)
	}
	final["outputs"] = outputs
	if r.Final.Error != nil {
		final["error"] = problemMap(r.Final.Error)
	}

	calls := make([]any, len(r.Calls))
	for i, c := range r.Calls {
		calls[i] = c
	}

	artifacts := make([]any, len(r.Artifacts))
	for i, a := range r.Artifacts {
		artifacts[i] = map[string]any{
			"key":          a.Key,
			"content_type": a.ContentType,
			"content":      string(a.Content),
		}
	}

	return job.MarshalCanonical(map[string]any{
		"scenario":  name,
		"steps":     steps,
		"final":     final,
		"calls":     calls,
		"artifacts": artifacts,
	})
}

func problemMap(p *job.ProblemDetail) map[string]any {
	return map[string]any{
		"type":   p.Type,
		"title":  p.Title,
		"detail": p.Detail,
	}
}

// RunWithGolden executes a scenario, fails t on any expectation mismatch,
// and compares the snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
