// Package external talks to the system that executes analysis jobs.
//
// Client is the narrow surface reconciliation needs: paginated result
// retrieval for recognition kinds, output discovery for transcription, and
// raw downloads. HTTPClient implements it against a results gateway.
package external

import (
	"context"
	"encoding/json"

	"github.com/roach88/recon/internal/job"
)

// ResultsPage is one page of an external job's results.
type ResultsPage struct {
	// Body is the page exactly as the external system returned it.
	Body json.RawMessage

	// NextToken continues pagination. Empty means this was the last page.
	NextToken string
}

// TranscriptionOutputs lists where a finished transcription put its files.
type TranscriptionOutputs struct {
	JobName       string
	Status        string
	FailureReason string
	TranscriptURI string
	SubtitleURIs  []string
}

// URIs returns the transcript followed by the subtitles, in that order.
func (o TranscriptionOutputs) URIs() []string {
	out := make([]string, 0, 1+len(o.SubtitleURIs))
	if o.TranscriptURI != "" {
		out = append(out, o.TranscriptURI)
	}
	return append(out, o.SubtitleURIs...)
}

// Client retrieves results of finished external jobs.
type Client interface {
	// GetResultsPage fetches one page. An empty nextToken fetches the first.
	GetResultsPage(ctx context.Context, kind job.Kind, jobID, nextToken string) (ResultsPage, error)

	// GetTranscriptionOutputs describes a transcription job's output files.
	GetTranscriptionOutputs(ctx context.Context, jobName string) (TranscriptionOutputs, error)

	// Download fetches the content at url.
	Download(ctx context.Context, url string) ([]byte, error)
}
