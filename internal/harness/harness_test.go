package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/job"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name must match its file")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

const completingScenario = `
name: completing
description: one page, one notification
assignment:
  guid: g1
  input_file: https://media.example.com/a/b/movie.mov?sig=abc
external:
  pages:
    - '{"Segments":[]}'
steps:
  - notification:
      kind: segmentDetection
      status: SUCCEEDED
      job_id: seg-1
`

func TestRun_Deterministic(t *testing.T) {
	scenario, err := ParseScenario([]byte(completingScenario))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_KeyDerivedFromInputFile(t *testing.T) {
	scenario, err := ParseScenario([]byte(completingScenario))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, "results/2024-03-01T12-00-05/movie_1.json", result.Artifacts[0].Key)
	assert.Equal(t, "application/json", result.Artifacts[0].ContentType)
	assert.Equal(t, `{"Segments":[]}`, string(result.Artifacts[0].Content))

	assert.Equal(t, job.StatusCompleted, result.Final.Status)
	assert.Equal(t, []job.Locator{
		{URL: BaseURL + "/artifacts/results/2024-03-01T12-00-05/movie_1.json"},
	}, result.Final.OutputFiles())
	assert.Equal(t, []string{"page:segmentDetection:seg-1:"}, result.Calls)
}

func TestRun_CustomClock(t *testing.T) {
	scenario, err := ParseScenario([]byte(completingScenario + "clock: 2025-12-31T23:59:59Z\n"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, "results/2025-12-31T23-59-59/movie_1.json", result.Artifacts[0].Key)
}

func TestRun_ReportsMismatches(t *testing.T) {
	scenario, err := ParseScenario([]byte(completingScenario + `
final:
  status: Failed
  outputs: 3
`))
	require.NoError(t, err)
	one := 2
	scenario.Steps[0].Expect = &StepExpect{Outcome: "skipped", Artifacts: &one}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors, "steps[0]: expected outcome skipped, got completed")
	assert.Contains(t, result.Errors, "steps[0]: expected 2 artifacts, got 1")
	assert.Contains(t, result.Errors, "final: expected status Failed, got Completed")
	assert.Contains(t, result.Errors, "final: expected 3 outputs, got 1")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	scenario, err := ParseScenario([]byte(completingScenario))
	require.NoError(t, err)
	scenario.Steps[0].Expect = &StepExpect{Error: "not found"}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `expected error containing "not found"`)
}

func TestRun_SeedsTerminalAssignment(t *testing.T) {
	scenario, err := ParseScenario([]byte(strings.Replace(completingScenario,
		"  guid: g1\n", "  guid: g1\n  status: Canceled\n", 1)))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "skipped", result.Steps[0].Outcome)
	assert.Equal(t, job.StatusCanceled, result.Steps[0].Status)
	assert.Empty(t, result.Calls)
	assert.Empty(t, result.Artifacts)
}
