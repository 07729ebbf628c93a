package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/recon/internal/aggregate"
	"github.com/roach88/recon/internal/artifact"
	"github.com/roach88/recon/internal/job"
	"github.com/roach88/recon/internal/lock"
)

// Repository loads and stores job assignments.
//
// PutAssignment must refuse to overwrite a terminal record with
// job.ErrTerminal.
type Repository interface {
	GetAssignment(ctx context.Context, id string) (*job.Assignment, error)
	PutAssignment(ctx context.Context, a *job.Assignment) error
}

// Collector gathers an external job's results as persisted artifacts.
// Implemented by *aggregate.Aggregator.
type Collector interface {
	Collect(ctx context.Context, kind job.Kind, jobID, prefix string) ([]job.Artifact, error)
}

// Locker runs work while holding a named lock.
// Implemented by *lock.Coordinator.
type Locker interface {
	WithLock(ctx context.Context, name, holder string, fn func(ctx context.Context) error) error
}

// Engine reconciles external job outcomes with job assignments.
//
// Thread-safety: Engine is safe for concurrent use. Concurrent calls for
// the same assignment are serialized by the Locker.
type Engine struct {
	repo         Repository
	locks        Locker
	collector    Collector
	reporter     *FailureReporter
	holders      lock.HolderGenerator
	now          func() time.Time
	outputPrefix string
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithOutputPrefix sets the key prefix result artifacts are written under.
func WithOutputPrefix(prefix string) Option {
	return func(e *Engine) { e.outputPrefix = prefix }
}

// WithClock overrides the time source for record timestamps and key
// prefixes.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithHolderGenerator overrides how invocation holder ids are generated.
// Default: lock.UUIDv7Generator.
func WithHolderGenerator(g lock.HolderGenerator) Option {
	return func(e *Engine) { e.holders = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an Engine.
func NewEngine(repo Repository, locks Locker, collector Collector, opts ...Option) *Engine {
	e := &Engine{
		repo:      repo,
		locks:     locks,
		collector: collector,
		holders:   lock.UUIDv7Generator{},
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.reporter = NewFailureReporter(repo, e.now, e.logger)
	return e
}

// Reporter returns the engine's failure reporter.
func (e *Engine) Reporter() *FailureReporter {
	return e.reporter
}

// Handle processes one completion notification.
//
// The returned error is non-nil only for a notification without an
// assignment id, job.ErrNotFound, lock.ErrLockTimeout, a cancelled ctx,
// or a storage error while loading the assignment. Every other outcome,
// including failures recorded on the assignment, is reported through
// Result. The rest of the notification is checked only once the
// assignment is known not to be final.
func (e *Engine) Handle(ctx context.Context, n job.Notification) (Result, error) {
	if err := n.ValidateTarget(); err != nil {
		return Result{}, err
	}

	// Fail fast on an unknown assignment without taking a lock.
	if _, err := e.repo.GetAssignment(ctx, n.JobAssignmentID); err != nil {
		return Result{}, err
	}

	holder := e.holders.Generate()
	log := e.logger.With(
		"assignment", n.JobAssignmentID,
		"holder", holder,
		"kind", n.JobKind.String(),
	)

	res := Result{AssignmentID: n.JobAssignmentID, Holder: holder}
	err := e.locks.WithLock(ctx, n.JobAssignmentID, holder, func(ctx context.Context) error {
		a, err := e.repo.GetAssignment(ctx, n.JobAssignmentID)
		if err != nil {
			return err
		}
		return e.reconcile(ctx, log, a, n, &res)
	})

	var ue *lock.UnlockError
	if errors.As(err, &ue) {
		log.Warn("lock release failed after handling", "error", ue.Err)
		err = nil
	}
	if err != nil {
		return res, err
	}

	log.Info("notification handled",
		"outcome", res.Outcome.String(),
		"status", string(res.Status),
	)
	return res, nil
}

func (e *Engine) reconcile(ctx context.Context, log *slog.Logger, a *job.Assignment, n job.Notification, res *Result) error {
	if a.Status.IsTerminal() {
		log.Warn("job assignment already in final state", "status", string(a.Status))
		res.Outcome = OutcomeSkipped
		res.Status = a.Status
		return nil
	}

	if err := n.Validate(); err != nil {
		log.Error("notification rejected", "error", err)
		e.fail(ctx, log, a, e.reporter.GenericFailure(err), OutcomeRejected, res)
		return nil
	}

	if !n.Succeeded() {
		p := e.reporter.DomainFailure(n.JobKind, n.ReportedStatus, n.FailureReason)
		e.fail(ctx, log, a, p, OutcomeDomainFailure, res)
		return nil
	}

	arts, err := e.complete(ctx, a, n)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Leave the assignment untouched so a redelivery can finish it.
			log.Warn("reconciliation interrupted", "error", err)
			return ctxErr
		}
		log.Error("result aggregation failed", "job_id", n.ExternalJobID, "error", err)
		e.fail(ctx, log, a, e.reporter.GenericFailure(err), OutcomeAggregationFailure, res)
		return nil
	}

	res.Outcome = OutcomeCompleted
	res.Status = job.StatusCompleted
	res.Artifacts = arts
	log.Info("job assignment completed", "job_id", n.ExternalJobID, "artifacts", len(arts))
	return nil
}

// complete collects results and commits the Completed record.
func (e *Engine) complete(ctx context.Context, a *job.Assignment, n job.Notification) ([]job.Artifact, error) {
	input, err := a.InputFile()
	if err != nil {
		return nil, err
	}
	prefix := artifact.FilePrefix(e.outputPrefix, input.URL, e.now())

	arts, err := e.collector.Collect(ctx, n.JobKind, n.ExternalJobID, prefix)
	if err != nil {
		return nil, err
	}

	done := a.Clone()
	if err := done.Complete(aggregate.Locators(arts), e.now()); err != nil {
		return nil, err
	}
	if err := e.repo.PutAssignment(ctx, done); err != nil {
		return nil, fmt.Errorf("record completion of %s: %w", a.ID, err)
	}
	return arts, nil
}

// fail records p on a. A failure to record is logged and kept on the
// result, never returned.
func (e *Engine) fail(ctx context.Context, log *slog.Logger, a *job.Assignment, p job.ProblemDetail, outcome Outcome, res *Result) {
	res.Outcome = outcome
	res.Problem = &p
	res.Status = job.StatusFailed

	if err := e.reporter.Commit(ctx, a, p); err != nil {
		log.Error("failed to record job assignment failure",
			"problem_type", p.Type,
			"error", err,
		)
		res.CommitErr = err
		res.Status = a.Status
	}
}
