package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/recon/internal/artifact"
	"github.com/roach88/recon/internal/external"
	"github.com/roach88/recon/internal/job"
)

// DefaultMaxPages stops a result API that never ends pagination.
const DefaultMaxPages = 10000

var (
	// ErrUnsupportedKind is returned for a kind with no result source.
	ErrUnsupportedKind = errors.New("unsupported job kind")

	// ErrTooManyPages is returned when pagination exceeds MaxPages.
	ErrTooManyPages = errors.New("result pagination exceeded page limit")
)

// Aggregator collects results of external jobs into the artifact store.
//
// Thread-safety: Aggregator holds no per-call state and is safe for
// concurrent use.
type Aggregator struct {
	client    external.Client
	artifacts artifact.Store
	maxPages  int
	logger    *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithMaxPages overrides DefaultMaxPages. Zero or negative disables the guard.
func WithMaxPages(n int) Option {
	return func(a *Aggregator) { a.maxPages = n }
}

// WithLogger sets the logger used for page diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New creates an Aggregator.
func New(client external.Client, artifacts artifact.Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		client:    client,
		artifacts: artifacts,
		maxPages:  DefaultMaxPages,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Collect fetches every result page of the external job and persists each
// one under "{prefix}_{index}{ext}", index counting from 1. It returns the
// artifacts in fetch order, or an error and no artifacts.
func (a *Aggregator) Collect(ctx context.Context, kind job.Kind, jobID, prefix string) ([]job.Artifact, error) {
	if !kind.Valid() || sources[kind] == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	src := sources[kind]

	var (
		artifacts []job.Artifact
		token     string
		pages     int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if a.maxPages > 0 && pages >= a.maxPages {
			return nil, fmt.Errorf("%w: %d pages for job %s", ErrTooManyPages, pages, jobID)
		}

		b, err := src(ctx, a.client, kind, jobID, token)
		if err != nil {
			return nil, fmt.Errorf("fetch %s results (page %d): %w", kind, pages+1, err)
		}
		pages++

		for _, bl := range b.blobs {
			seq := len(artifacts) + 1
			key := artifact.PageKey(prefix, seq, bl.ext)
			loc, err := a.artifacts.Put(ctx, key, bl.content)
			if err != nil {
				return nil, fmt.Errorf("persist %s: %w", key, err)
			}
			artifacts = append(artifacts, job.Artifact{Locator: loc, Sequence: seq})
		}

		a.logger.Debug("result page persisted",
			"kind", kind.String(),
			"job_id", jobID,
			"page", pages,
			"artifacts", len(artifacts),
		)

		if b.next == "" {
			return artifacts, nil
		}
		token = b.next
	}
}

// Locators returns the locators of artifacts in order.
func Locators(artifacts []job.Artifact) []job.Locator {
	out := make([]job.Locator, len(artifacts))
	for i, a := range artifacts {
		out[i] = a.Locator
	}
	return out
}
