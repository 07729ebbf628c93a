package aggregate

import (
	"context"
	"fmt"

	"github.com/roach88/recon/internal/artifact"
	"github.com/roach88/recon/internal/external"
	"github.com/roach88/recon/internal/job"
)

// blob is one unit of content to persist, with the extension its key gets.
type blob struct {
	content []byte
	ext     string
}

// batch is what one source call yields: blobs to persist in order and the
// cursor for the next call. An empty next ends collection.
type batch struct {
	blobs []blob
	next  string
}

// source fetches the batch at token for an external job.
type source func(ctx context.Context, c external.Client, kind job.Kind, jobID, token string) (batch, error)

var sources = [...]source{
	job.KindUnknown:              nil,
	job.KindCelebrityRecognition: recognitionSource,
	job.KindFaceDetection:        recognitionSource,
	job.KindLabelDetection:       recognitionSource,
	job.KindTextDetection:        recognitionSource,
	job.KindContentModeration:    recognitionSource,
	job.KindSegmentDetection:     recognitionSource,
	job.KindTranscription:        transcriptionSource,
}

// Adding a job.Kind without a source entry fails one of these.
var (
	_ [len(sources) - int(job.NumKinds)]struct{}
	_ [int(job.NumKinds) - len(sources)]struct{}
)

// recognitionSource serves every paginated recognition kind. Each page is
// stored as canonical JSON so identical results produce identical bytes.
func recognitionSource(ctx context.Context, c external.Client, kind job.Kind, jobID, token string) (batch, error) {
	page, err := c.GetResultsPage(ctx, kind, jobID, token)
	if err != nil {
		return batch{}, err
	}
	body, err := job.CanonicalizeJSON(page.Body)
	if err != nil {
		return batch{}, fmt.Errorf("%s page: %w", kind.Info().ResultAPI, err)
	}
	return batch{
		blobs: []blob{{content: body, ext: artifact.DefaultExtension}},
		next:  page.NextToken,
	}, nil
}

// transcriptionSource yields the transcript and its subtitles as a single,
// already-complete batch. Each file keeps its own extension.
func transcriptionSource(ctx context.Context, c external.Client, _ job.Kind, jobID, _ string) (batch, error) {
	out, err := c.GetTranscriptionOutputs(ctx, jobID)
	if err != nil {
		return batch{}, err
	}
	if out.Status != "" && out.Status != "COMPLETED" {
		return batch{}, fmt.Errorf("transcription job %s is %s", jobID, out.Status)
	}

	uris := out.URIs()
	if len(uris) == 0 {
		return batch{}, fmt.Errorf("transcription job %s has no outputs", jobID)
	}

	blobs := make([]blob, 0, len(uris))
	for _, uri := range uris {
		data, err := c.Download(ctx, uri)
		if err != nil {
			return batch{}, err
		}
		ext := artifact.FileExtension(uri)
		if ext == "" {
			ext = artifact.DefaultExtension
		}
		blobs = append(blobs, blob{content: data, ext: ext})
	}
	return batch{blobs: blobs}, nil
}
