package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/recon/internal/job"
)

// FailureReporter builds problem descriptions and records them.
type FailureReporter struct {
	repo   Repository
	now    func() time.Time
	logger *slog.Logger
}

// NewFailureReporter creates a FailureReporter writing through repo.
func NewFailureReporter(repo Repository, now func() time.Time, logger *slog.Logger) *FailureReporter {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FailureReporter{repo: repo, now: now, logger: logger}
}

// DomainFailure describes an external job that ended without success.
// The detail carries the reported status verbatim, and the reason when
// the external system gave one.
func (r *FailureReporter) DomainFailure(kind job.Kind, status, reason string) job.ProblemDetail {
	p := job.ProblemDetail{
		Type:   job.ProblemRecognitionFailure,
		Title:  "Failed to complete recognition",
		Detail: fmt.Sprintf("External job ended with status %s", status),
	}
	if kind.IsTranscription() {
		p.Type = job.ProblemTranscriptionFailure
		p.Title = "Failed to complete transcription"
	}
	if reason != "" {
		p.Detail += ": " + reason
	}
	return p
}

// GenericFailure describes an error in reconciliation itself.
func (r *FailureReporter) GenericFailure(err error) job.ProblemDetail {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	return job.ProblemDetail{
		Type:   job.ProblemGenericFailure,
		Title:  "Generic failure",
		Detail: detail,
	}
}

// Commit transitions a to Failed with problem and persists it. a itself
// is not modified.
func (r *FailureReporter) Commit(ctx context.Context, a *job.Assignment, problem job.ProblemDetail) error {
	failed := a.Clone()
	if err := failed.Fail(problem, r.now()); err != nil {
		return err
	}
	if err := r.repo.PutAssignment(ctx, failed); err != nil {
		return fmt.Errorf("record failure of %s: %w", a.ID, err)
	}
	r.logger.Info("job assignment failed",
		"assignment", a.ID,
		"problem_type", problem.Type,
		"detail", problem.Detail,
	)
	return nil
}
