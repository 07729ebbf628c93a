package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/recon/internal/job"
)

// checkStep compares one step's result with its expectation.
func checkStep(index int, want *StepExpect, got StepResult) []string {
	if want == nil {
		return nil
	}
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("steps[%d]: ", index)+fmt.Sprintf(format, args...))
	}

	if want.Error != "" {
		if got.Error == "" {
			fail("expected error containing %q, got outcome %s", want.Error, got.Outcome)
		} else if !strings.Contains(got.Error, want.Error) {
			fail("expected error containing %q, got %q", want.Error, got.Error)
		}
		return errs
	}
	if got.Error != "" {
		fail("unexpected error: %s", got.Error)
		return errs
	}

	if want.Outcome != "" && got.Outcome != want.Outcome {
		fail("expected outcome %s, got %s", want.Outcome, got.Outcome)
	}
	if want.Status != "" && !strings.EqualFold(string(got.Status), want.Status) {
		fail("expected status %s, got %s", want.Status, got.Status)
	}
	if want.Artifacts != nil && len(got.Artifacts) != *want.Artifacts {
		fail("expected %d artifacts, got %d", *want.Artifacts, len(got.Artifacts))
	}
	if want.ProblemType != "" {
		switch {
		case got.Problem == nil:
			fail("expected problem %s, got none", want.ProblemType)
		case got.Problem.Type != want.ProblemType:
			fail("expected problem %s, got %s", want.ProblemType, got.Problem.Type)
		}
	}
	for i, a := range got.Artifacts {
		if a.Sequence != i+1 {
			fail("artifact %d has sequence %d", i, a.Sequence)
		}
	}
	return errs
}

// checkFinal compares the stored assignment with the final expectation.
func checkFinal(want *FinalExpect, got *job.Assignment) []string {
	if want == nil {
		return nil
	}
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, "final: "+fmt.Sprintf(format, args...))
	}

	if want.Status != "" && !strings.EqualFold(string(got.Status), want.Status) {
		fail("expected status %s, got %s", want.Status, got.Status)
	}
	if want.Outputs != nil && len(got.OutputFiles()) != *want.Outputs {
		fail("expected %d outputs, got %d", *want.Outputs, len(got.OutputFiles()))
	}
	if want.ProblemType != "" {
		switch {
		case got.Error == nil:
			fail("expected problem %s, got none", want.ProblemType)
		case got.Error.Type != want.ProblemType:
			fail("expected problem %s, got %s", want.ProblemType, got.Error.Type)
		}
	}
	if want.Detail != nil {
		detail := ""
		if got.Error != nil {
			detail = got.Error.Detail
		}
		if detail != *want.Detail {
			fail("expected detail %q, got %q", *want.Detail, detail)
		}
	}
	return errs
}
