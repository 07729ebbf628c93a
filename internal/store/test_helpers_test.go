package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/recon/internal/job"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestAssignment creates a running assignment with an input file.
func createTestAssignment(guid string) *job.Assignment {
	return &job.Assignment{
		ID:     job.AssignmentID(guid),
		Status: job.StatusRunning,
		JobInput: job.ParameterBag{
			job.ParamInputFile: map[string]any{"url": "https://media.example.com/" + guid + ".mp4"},
		},
		Tracker:   map[string]any{"id": "tracker-" + guid},
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}
