package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/recon/internal/aggregate"
	"github.com/roach88/recon/internal/artifact"
	"github.com/roach88/recon/internal/external"
	"github.com/roach88/recon/internal/job"
	"github.com/roach88/recon/internal/lock"
	"github.com/roach88/recon/internal/reconcile"
	"github.com/roach88/recon/internal/store"
	"github.com/roach88/recon/internal/testutil"
)

// Fixed wiring shared by every run.
const (
	BaseURL      = "http://recon.test"
	OutputPrefix = "results/"
	signingKey   = "harness-signing-key"
)

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. An error is returned
// only when the run itself could not be set up; expectation mismatches
// are reported on the result.
func Run(scenario *Scenario) (*Result, error) {
	now, err := scenario.clock()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewManualClock(now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := scriptedClient(scenario.External)

	signer, err := artifact.NewSigner([]byte(signingKey))
	if err != nil {
		return nil, err
	}
	arts := artifact.NewDBStore(st, BaseURL, signer).WithClock(clock.Now)

	holders := make([]string, len(scenario.Steps))
	for i := range holders {
		holders[i] = fmt.Sprintf("holder-%d", i+1)
	}

	eng := reconcile.NewEngine(st,
		lock.NewCoordinator(lock.NewSQLiteLocker(st, clock),
			lock.WithTimeout(time.Second),
			lock.WithLogger(logger),
		),
		aggregate.New(client, arts, aggregate.WithLogger(logger)),
		reconcile.WithOutputPrefix(OutputPrefix),
		reconcile.WithClock(clock.Now),
		reconcile.WithHolderGenerator(lock.NewFixedGenerator(holders...)),
		reconcile.WithLogger(logger),
	)

	ctx := context.Background()
	if err := seed(ctx, st, scenario.Assignment, now); err != nil {
		return nil, fmt.Errorf("failed to seed assignment: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		sr := deliver(ctx, eng, step.Notification, scenario.Assignment.GUID)
		result.Steps = append(result.Steps, sr)
		for _, msg := range checkStep(i, step.Expect, sr) {
			result.AddError(msg)
		}
	}

	final, err := st.GetAssignment(ctx, job.AssignmentID(scenario.Assignment.GUID))
	if err != nil {
		return nil, fmt.Errorf("failed to read final assignment: %w", err)
	}
	result.Final = final
	for _, msg := range checkFinal(scenario.Final, final) {
		result.AddError(msg)
	}

	result.Calls = client.Calls()
	result.Artifacts, err = readArtifacts(ctx, st)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func scriptedClient(s ExternalScript) *testutil.FakeExternal {
	client := testutil.NewFakeExternal(s.Pages...)
	for key, msg := range s.Failures {
		client.FailOn(key, errors.New(msg))
	}
	files := make(map[string][]byte, len(s.Files))
	for url, content := range s.Files {
		files[url] = []byte(content)
	}
	var out external.TranscriptionOutputs
	if t := s.Transcription; t != nil {
		out = external.TranscriptionOutputs{
			JobName:       t.JobName,
			Status:        t.Status,
			TranscriptURI: t.TranscriptURI,
			SubtitleURIs:  t.SubtitleURIs,
		}
	}
	client.SetTranscription(out, files)
	return client
}

func seed(ctx context.Context, st *store.Store, s AssignmentSeed, now time.Time) error {
	status, err := job.ParseStatus(s.Status)
	if err != nil {
		return err
	}
	return st.CreateAssignment(ctx, &job.Assignment{
		ID:     job.AssignmentID(s.GUID),
		Status: status,
		JobInput: job.ParameterBag{
			job.ParamInputFile: job.Locator{URL: s.InputFile},
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func deliver(ctx context.Context, eng *reconcile.Engine, ns NotificationSpec, defaultGUID string) StepResult {
	guid := ns.Assignment
	if guid == "" {
		guid = defaultGUID
	}
	// An unknown kind is left as KindUnknown for the engine to reject.
	kind, _ := job.ParseKind(ns.Kind)

	res, err := eng.Handle(ctx, job.Notification{
		JobAssignmentID: job.AssignmentID(guid),
		JobKind:         kind,
		ReportedStatus:  ns.Status,
		ExternalJobID:   ns.JobID,
		FailureReason:   ns.Reason,
	})
	if err != nil {
		return StepResult{Error: err.Error()}
	}
	return StepResult{
		Outcome:   res.Outcome.String(),
		Status:    res.Status,
		Holder:    res.Holder,
		Artifacts: res.Artifacts,
		Problem:   res.Problem,
	}
}

func readArtifacts(ctx context.Context, st *store.Store) ([]store.ArtifactRecord, error) {
	keys, err := st.ListArtifactKeys(ctx, "")
	if err != nil {
		return nil, err
	}
	records := make([]store.ArtifactRecord, 0, len(keys))
	for _, key := range keys {
		rec, err := st.GetArtifact(ctx, key)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
