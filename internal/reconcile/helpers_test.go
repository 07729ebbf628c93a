package reconcile

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/aggregate"
	"github.com/roach88/recon/internal/job"
	"github.com/roach88/recon/internal/lock"
	"github.com/roach88/recon/internal/store"
	"github.com/roach88/recon/internal/testutil"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const outputPrefix = "out/"

// fixture wires an Engine over a real store and SQLite locks, with a
// scripted external system and in-memory artifacts.
type fixture struct {
	store     *store.Store
	locks     *lock.Coordinator
	external  *testutil.FakeExternal
	artifacts *testutil.MemArtifacts
	clock     *testutil.ManualClock
	engine    *Engine
}

func newFixture(t *testing.T, pages ...string) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, nil, pages...)
}

// newFixtureWithRepo lets a test wrap the store to inject write failures.
func newFixtureWithRepo(t *testing.T, wrap func(*store.Store) Repository, pages ...string) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "recon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := testutil.NewManualClock(baseTime)
	locks := lock.NewCoordinator(lock.NewSQLiteLocker(st, nil),
		lock.WithTimeout(5*time.Second),
		lock.WithPollInterval(time.Millisecond, 5*time.Millisecond),
	)
	ext := testutil.NewFakeExternal(pages...)
	arts := testutil.NewMemArtifacts()

	var repo Repository = st
	if wrap != nil {
		repo = wrap(st)
	}

	eng := NewEngine(repo, locks, aggregate.New(ext, arts),
		WithOutputPrefix(outputPrefix),
		WithClock(clock.Now),
	)
	return &fixture{
		store:     st,
		locks:     locks,
		external:  ext,
		artifacts: arts,
		clock:     clock,
		engine:    eng,
	}
}

func (f *fixture) createAssignment(t *testing.T, guid string, status job.Status) *job.Assignment {
	t.Helper()
	a := &job.Assignment{
		ID:     job.AssignmentID(guid),
		Status: status,
		JobInput: job.ParameterBag{
			job.ParamInputFile: map[string]any{"url": "https://media.example.com/uploads/" + guid + ".mp4"},
		},
		Tracker:   map[string]any{"id": "tracker-" + guid},
		CreatedAt: baseTime.Add(-time.Hour),
		UpdatedAt: baseTime.Add(-time.Hour),
	}
	require.NoError(t, f.store.CreateAssignment(context.Background(), a))
	return a
}

func (f *fixture) load(t *testing.T, id string) *job.Assignment {
	t.Helper()
	a, err := f.store.GetAssignment(context.Background(), id)
	require.NoError(t, err)
	return a
}

func succeeded(guid string, kind job.Kind) job.Notification {
	return job.Notification{
		JobAssignmentID: job.AssignmentID(guid),
		JobKind:         kind,
		ReportedStatus:  job.StatusSucceeded,
		ExternalJobID:   "ext-" + guid,
	}
}

func failed(guid string, kind job.Kind, status string) job.Notification {
	return job.Notification{
		JobAssignmentID: job.AssignmentID(guid),
		JobKind:         kind,
		ReportedStatus:  status,
		ExternalJobID:   "ext-" + guid,
	}
}

// faultyRepo fails PutAssignment for the statuses listed in failOn.
type faultyRepo struct {
	*store.Store
	mu     sync.Mutex
	failOn map[job.Status]error
	puts   []job.Status
}

func (r *faultyRepo) PutAssignment(ctx context.Context, a *job.Assignment) error {
	r.mu.Lock()
	r.puts = append(r.puts, a.Status)
	err := r.failOn[a.Status]
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Store.PutAssignment(ctx, a)
}

// countingLocker records WithLock calls before delegating.
type countingLocker struct {
	Locker
	mu    sync.Mutex
	calls int
}

func (c *countingLocker) WithLock(ctx context.Context, name, holder string, fn func(ctx context.Context) error) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Locker.WithLock(ctx, name, holder, fn)
}

// collectorFunc adapts a function to Collector.
type collectorFunc func(ctx context.Context, kind job.Kind, jobID, prefix string) ([]job.Artifact, error)

func (f collectorFunc) Collect(ctx context.Context, kind job.Kind, jobID, prefix string) ([]job.Artifact, error) {
	return f(ctx, kind, jobID, prefix)
}
