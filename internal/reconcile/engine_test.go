package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/aggregate"
	"github.com/roach88/recon/internal/job"
	"github.com/roach88/recon/internal/lock"
	"github.com/roach88/recon/internal/store"
	"github.com/roach88/recon/internal/testutil"
)

func TestHandle_SucceededCollectsAndCompletes(t *testing.T) {
	f := newFixture(t, `{"Labels":[1]}`, `{"Labels":[2]}`)
	a := f.createAssignment(t, "abc", job.StatusRunning)

	res, err := f.engine.Handle(context.Background(), succeeded("abc", job.KindLabelDetection))
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, job.StatusCompleted, res.Status)
	assert.Equal(t, a.ID, res.AssignmentID)
	assert.NotEmpty(t, res.Holder)
	assert.Nil(t, res.Problem)
	require.Len(t, res.Artifacts, 2)

	got := f.load(t, a.ID)
	assert.Equal(t, job.StatusCompleted, got.Status)
	assert.Nil(t, got.Error)
	assert.Equal(t, []job.Locator{
		{URL: "mem://out/2024-03-01T12-00-00/abc_1.json"},
		{URL: "mem://out/2024-03-01T12-00-00/abc_2.json"},
	}, got.OutputFiles())
	assert.True(t, got.UpdatedAt.Equal(baseTime))

	// Tracker is carried through untouched
	assert.Equal(t, "tracker-abc", got.Tracker["id"])

	assert.Equal(t, []string{
		"page:labelDetection:ext-abc:",
		"page:labelDetection:ext-abc:t2",
	}, f.external.Calls())
}

func TestHandle_TranscriptionCompletes(t *testing.T) {
	f := newFixture(t)
	f.createAssignment(t, "tx", job.StatusRunning)
	f.external.SetTranscription(externalTranscript(), map[string][]byte{
		"https://files.example.com/ext-tx.json": []byte(`{"results":{}}`),
		"https://files.example.com/ext-tx.vtt":  []byte("WEBVTT\n"),
	})

	res, err := f.engine.Handle(context.Background(), succeeded("tx", job.KindTranscription))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)

	assert.Equal(t, []string{
		"out/2024-03-01T12-00-00/tx_1.json",
		"out/2024-03-01T12-00-00/tx_2.vtt",
	}, f.artifacts.Keys())
}

func TestHandle_DomainFailureNeverFetches(t *testing.T) {
	f := newFixture(t, `{"Labels":[1]}`)
	a := f.createAssignment(t, "abc", job.StatusRunning)

	res, err := f.engine.Handle(context.Background(), failed("abc", job.KindLabelDetection, "FAILED"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeDomainFailure, res.Outcome)
	assert.Equal(t, job.StatusFailed, res.Status)
	require.NotNil(t, res.Problem)
	assert.Equal(t, job.ProblemRecognitionFailure, res.Problem.Type)
	assert.Contains(t, res.Problem.Detail, "FAILED")

	got := f.load(t, a.ID)
	assert.Equal(t, job.StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, *res.Problem, *got.Error)
	assert.Empty(t, got.OutputFiles())

	assert.Empty(t, f.external.Calls())
	assert.Empty(t, f.artifacts.Keys())
}

func TestHandle_AnyNonSuccessStatusIsDomainFailure(t *testing.T) {
	for _, status := range []string{"FAILED", "ERROR", "succeeded", "IN_PROGRESS"} {
		t.Run(status, func(t *testing.T) {
			f := newFixture(t, `{}`)
			f.createAssignment(t, "abc", job.StatusRunning)

			res, err := f.engine.Handle(context.Background(), failed("abc", job.KindFaceDetection, status))
			require.NoError(t, err)
			assert.Equal(t, OutcomeDomainFailure, res.Outcome)
			assert.Contains(t, res.Problem.Detail, status)
			assert.Empty(t, f.external.Calls())
		})
	}
}

func TestHandle_TranscriptionDomainFailureCarriesReason(t *testing.T) {
	f := newFixture(t)
	f.createAssignment(t, "tx", job.StatusRunning)

	n := failed("tx", job.KindTranscription, "FAILED")
	n.FailureReason = "Unsupported media format"

	res, err := f.engine.Handle(context.Background(), n)
	require.NoError(t, err)

	assert.Equal(t, job.ProblemTranscriptionFailure, res.Problem.Type)
	assert.Equal(t, "Failed to complete transcription", res.Problem.Title)
	assert.Contains(t, res.Problem.Detail, "FAILED")
	assert.Contains(t, res.Problem.Detail, "Unsupported media format")
}

func TestHandle_AggregationFailureRecordsGenericFailure(t *testing.T) {
	f := newFixture(t, `{"Labels":[1]}`, `{"Labels":[2]}`)
	f.createAssignment(t, "abc", job.StatusRunning)
	f.external.FailOn("t2", errors.New("rate exceeded"))

	res, err := f.engine.Handle(context.Background(), succeeded("abc", job.KindLabelDetection))
	require.NoError(t, err)

	assert.Equal(t, OutcomeAggregationFailure, res.Outcome)
	assert.Empty(t, res.Artifacts)
	require.NotNil(t, res.Problem)
	assert.Equal(t, job.ProblemGenericFailure, res.Problem.Type)
	assert.Contains(t, res.Problem.Detail, "rate exceeded")

	got := f.load(t, job.AssignmentID("abc"))
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Empty(t, got.OutputFiles())
}

func TestHandle_MissingInputFileIsGenericFailure(t *testing.T) {
	f := newFixture(t, `{}`)
	a := &job.Assignment{ID: job.AssignmentID("noinput"), Status: job.StatusRunning, CreatedAt: baseTime, UpdatedAt: baseTime}
	require.NoError(t, f.store.CreateAssignment(context.Background(), a))

	res, err := f.engine.Handle(context.Background(), succeeded("noinput", job.KindFaceDetection))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAggregationFailure, res.Outcome)
	assert.Contains(t, res.Problem.Detail, "inputFile")
	assert.Empty(t, f.external.Calls())
}

func TestHandle_TerminalAssignmentIsSkipped(t *testing.T) {
	for _, status := range []job.Status{job.StatusCompleted, job.StatusFailed, job.StatusCanceled} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, `{}`)
			a := f.createAssignment(t, "done", status)

			res, err := f.engine.Handle(context.Background(), succeeded("done", job.KindFaceDetection))
			require.NoError(t, err)

			assert.Equal(t, OutcomeSkipped, res.Outcome)
			assert.Equal(t, status, res.Status)
			assert.Empty(t, f.external.Calls())

			got := f.load(t, a.ID)
			assert.Equal(t, status, got.Status)
			assert.True(t, got.UpdatedAt.Equal(a.UpdatedAt))
		})
	}
}

func TestHandle_DuplicateNotificationIsIdempotent(t *testing.T) {
	f := newFixture(t, `{"Labels":[1]}`)
	f.createAssignment(t, "abc", job.StatusRunning)
	n := succeeded("abc", job.KindLabelDetection)

	first, err := f.engine.Handle(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, first.Outcome)
	after := f.load(t, n.JobAssignmentID)

	f.clock.Advance(time.Minute)
	second, err := f.engine.Handle(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, second.Outcome)

	// Late failure for the same assignment changes nothing either
	third, err := f.engine.Handle(context.Background(), failed("abc", job.KindLabelDetection, "FAILED"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, third.Outcome)

	got := f.load(t, n.JobAssignmentID)
	assert.Equal(t, after.Status, got.Status)
	assert.True(t, got.UpdatedAt.Equal(after.UpdatedAt))
	assert.Equal(t, after.OutputFiles(), got.OutputFiles())
	assert.Len(t, f.external.Calls(), 1)
}

func TestHandle_ConcurrentDuplicatesCompleteOnce(t *testing.T) {
	f := newFixture(t, `{"Labels":[1]}`, `{"Labels":[2]}`)
	f.createAssignment(t, "abc", job.StatusRunning)
	n := succeeded("abc", job.KindLabelDetection)

	const workers = 8
	results := make([]Result, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.engine.Handle(context.Background(), n)
		}(i)
	}
	wg.Wait()

	completed, skipped := 0, 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		switch results[i].Outcome {
		case OutcomeCompleted:
			completed++
		case OutcomeSkipped:
			skipped++
		default:
			t.Errorf("unexpected outcome %s", results[i].Outcome)
		}
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, workers-1, skipped)

	// Results were fetched exactly once
	assert.Len(t, f.external.Calls(), 2)
	assert.Len(t, f.artifacts.Keys(), 2)
}

func TestHandle_DifferentAssignmentsRunIndependently(t *testing.T) {
	f := newFixture(t, `{}`)
	f.createAssignment(t, "a", job.StatusRunning)
	f.createAssignment(t, "b", job.StatusRunning)

	// Hold a's lock; b must still complete
	h, err := f.locks.Lock(context.Background(), job.AssignmentID("a"), "someone-else")
	require.NoError(t, err)
	defer h.Unlock(context.Background())

	res, err := f.engine.Handle(context.Background(), succeeded("b", job.KindFaceDetection))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
}

func TestHandle_NotFoundTakesNoLock(t *testing.T) {
	f := newFixture(t)
	locks := &countingLocker{Locker: f.locks}
	eng := NewEngine(f.store, locks, collectorFunc(func(context.Context, job.Kind, string, string) ([]job.Artifact, error) {
		t.Fatal("collector must not be called")
		return nil, nil
	}))

	_, err := eng.Handle(context.Background(), succeeded("ghost", job.KindFaceDetection))
	require.Error(t, err)
	assert.ErrorIs(t, err, job.ErrNotFound)
	assert.Equal(t, 0, locks.calls)
}

func TestHandle_InvalidNotification(t *testing.T) {
	f := newFixture(t)
	locks := &countingLocker{Locker: f.locks}
	eng := NewEngine(f.store, locks, aggregate.New(f.external, f.artifacts))

	_, err := eng.Handle(context.Background(), job.Notification{JobKind: job.KindFaceDetection, ReportedStatus: "FAILED"})
	assert.ErrorIs(t, err, job.ErrInvalidNotification)
	assert.Equal(t, 0, locks.calls)
}

func malformedNotifications(guid string) map[string]job.Notification {
	noJobID := succeeded(guid, job.KindLabelDetection)
	noJobID.ExternalJobID = ""
	return map[string]job.Notification{
		"succeeded without job id": noJobID,
		"unknown kind":             {JobAssignmentID: job.AssignmentID(guid), ReportedStatus: "FAILED"},
		"missing status":           {JobAssignmentID: job.AssignmentID(guid), JobKind: job.KindFaceDetection},
	}
}

func TestHandle_MalformedNotificationForFinalAssignmentIsSkipped(t *testing.T) {
	for name, n := range malformedNotifications("done") {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, `{}`)
			a := f.createAssignment(t, "done", job.StatusCompleted)

			res, err := f.engine.Handle(context.Background(), n)
			require.NoError(t, err)
			assert.Equal(t, OutcomeSkipped, res.Outcome)
			assert.Equal(t, job.StatusCompleted, res.Status)
			assert.Nil(t, res.Problem)

			got := f.load(t, a.ID)
			assert.Equal(t, job.StatusCompleted, got.Status)
			assert.Nil(t, got.Error)
			assert.True(t, got.UpdatedAt.Equal(a.UpdatedAt))
			assert.Empty(t, f.external.Calls())
		})
	}
}

func TestHandle_MalformedNotificationFailsOpenAssignment(t *testing.T) {
	for name, n := range malformedNotifications("open") {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, `{}`)
			a := f.createAssignment(t, "open", job.StatusRunning)

			res, err := f.engine.Handle(context.Background(), n)
			require.NoError(t, err)
			assert.Equal(t, OutcomeRejected, res.Outcome)
			assert.Equal(t, job.StatusFailed, res.Status)
			require.NotNil(t, res.Problem)
			assert.Equal(t, job.ProblemGenericFailure, res.Problem.Type)
			assert.Contains(t, res.Problem.Detail, "invalid notification")

			got := f.load(t, a.ID)
			assert.Equal(t, job.StatusFailed, got.Status)
			require.NotNil(t, got.Error)
			assert.Equal(t, *res.Problem, *got.Error)
			assert.Empty(t, f.external.Calls())
			assert.Empty(t, f.artifacts.Keys())
		})
	}
}

func TestHandle_LockTimeoutLeavesRecordUntouched(t *testing.T) {
	f := newFixture(t, `{}`)
	a := f.createAssignment(t, "abc", job.StatusRunning)

	h, err := f.locks.Lock(context.Background(), a.ID, "other-invocation")
	require.NoError(t, err)
	defer h.Unlock(context.Background())

	locks := lock.NewCoordinator(lock.NewSQLiteLocker(f.store, nil),
		lock.WithTimeout(30*time.Millisecond),
		lock.WithPollInterval(time.Millisecond, 5*time.Millisecond),
	)
	eng := NewEngine(f.store, locks, collectorFunc(func(context.Context, job.Kind, string, string) ([]job.Artifact, error) {
		t.Fatal("collector must not be called")
		return nil, nil
	}))

	_, err = eng.Handle(context.Background(), succeeded("abc", job.KindFaceDetection))
	require.Error(t, err)
	assert.ErrorIs(t, err, lock.ErrLockTimeout)

	got := f.load(t, a.ID)
	assert.Equal(t, job.StatusRunning, got.Status)
}

func TestHandle_CompletionCommitFailureRecordsGenericFailure(t *testing.T) {
	var repo *faultyRepo
	f := newFixtureWithRepo(t, func(st *store.Store) Repository {
		repo = &faultyRepo{Store: st, failOn: map[job.Status]error{
			job.StatusCompleted: errors.New("database is locked"),
		}}
		return repo
	}, `{"Faces":[]}`)
	a := f.createAssignment(t, "abc", job.StatusRunning)

	res, err := f.engine.Handle(context.Background(), succeeded("abc", job.KindFaceDetection))
	require.NoError(t, err)

	assert.Equal(t, OutcomeAggregationFailure, res.Outcome)
	assert.Contains(t, res.Problem.Detail, "database is locked")
	assert.Equal(t, []job.Status{job.StatusCompleted, job.StatusFailed}, repo.puts)

	got := f.load(t, a.ID)
	assert.Equal(t, job.StatusFailed, got.Status)
}

func TestHandle_FailureCommitErrorIsSwallowed(t *testing.T) {
	boom := errors.New("disk gone")
	f := newFixtureWithRepo(t, func(st *store.Store) Repository {
		return &faultyRepo{Store: st, failOn: map[job.Status]error{
			job.StatusCompleted: boom,
			job.StatusFailed:    boom,
		}}
	}, `{"Faces":[]}`)
	a := f.createAssignment(t, "abc", job.StatusRunning)

	res, err := f.engine.Handle(context.Background(), succeeded("abc", job.KindFaceDetection))
	require.NoError(t, err)

	assert.Equal(t, OutcomeAggregationFailure, res.Outcome)
	assert.ErrorIs(t, res.CommitErr, boom)
	assert.Equal(t, job.StatusRunning, res.Status)

	got := f.load(t, a.ID)
	assert.Equal(t, job.StatusRunning, got.Status)

	// The lock was released despite both writes failing
	h, err := f.locks.Lock(context.Background(), a.ID, "next")
	require.NoError(t, err)
	require.NoError(t, h.Unlock(context.Background()))
}

func TestHandle_CancelledDuringCollectionLeavesRecordForRedelivery(t *testing.T) {
	f := newFixture(t)
	a := f.createAssignment(t, "abc", job.StatusRunning)

	ctx, cancel := context.WithCancel(context.Background())
	eng := NewEngine(f.store, f.locks, collectorFunc(func(ctx context.Context, _ job.Kind, _, _ string) ([]job.Artifact, error) {
		cancel()
		return nil, ctx.Err()
	}))

	_, err := eng.Handle(ctx, succeeded("abc", job.KindFaceDetection))
	assert.ErrorIs(t, err, context.Canceled)

	got := f.load(t, a.ID)
	assert.Equal(t, job.StatusRunning, got.Status)

	// Lock was released, so the redelivery completes
	h, err := f.locks.Lock(context.Background(), a.ID, "redelivery")
	require.NoError(t, err)
	require.NoError(t, h.Unlock(context.Background()))
}

func TestHandle_PrefixFromClockAndInput(t *testing.T) {
	f := newFixture(t)
	f.createAssignment(t, "clip", job.StatusRunning)

	var gotPrefix string
	eng := NewEngine(f.store, f.locks, collectorFunc(func(_ context.Context, _ job.Kind, jobID, prefix string) ([]job.Artifact, error) {
		gotPrefix = prefix
		assert.Equal(t, "ext-clip", jobID)
		return nil, nil
	}),
		WithOutputPrefix("results/"),
		WithClock(func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }),
		WithHolderGenerator(testutil.NewFixedHolderGenerator("req-1")),
	)

	res, err := eng.Handle(context.Background(), succeeded("clip", job.KindFaceDetection))
	require.NoError(t, err)
	assert.Equal(t, "results/2024-05-06T07-08-09/clip", gotPrefix)
	assert.Equal(t, "req-1", res.Holder)

	// A job with no results still completes, with no outputs
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Empty(t, f.load(t, job.AssignmentID("clip")).OutputFiles())
}
