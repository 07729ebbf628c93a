package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/recon/internal/external"
	"github.com/roach88/recon/internal/job"
)

// FakeExternal is a scripted external.Client.
//
// Pages are keyed by the token that fetches them; the first page is under
// "". Each page's NextToken chains to the next. Errors registered with
// FailOn are returned instead of the page for that token.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeExternal struct {
	mu            sync.Mutex
	pages         map[string]external.ResultsPage
	errs          map[string]error
	transcription external.TranscriptionOutputs
	files         map[string][]byte
	calls         []string
}

// NewFakeExternal creates a client whose result API serves bodies as a
// chain of pages: bodies[0] under "", bodies[1] under "t2" and so on.
func NewFakeExternal(bodies ...string) *FakeExternal {
	f := &FakeExternal{
		pages: make(map[string]external.ResultsPage),
		errs:  make(map[string]error),
		files: make(map[string][]byte),
	}
	for i, b := range bodies {
		next := ""
		if i < len(bodies)-1 {
			next = pageToken(i + 1)
		}
		f.pages[pageToken(i)] = external.ResultsPage{Body: []byte(b), NextToken: next}
	}
	return f
}

func pageToken(i int) string {
	if i == 0 {
		return ""
	}
	return fmt.Sprintf("t%d", i+1)
}

// FailOn makes the fetch for token return err.
func (f *FakeExternal) FailOn(token string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[token] = err
}

// SetTranscription scripts the transcription job and its downloadable files.
func (f *FakeExternal) SetTranscription(out external.TranscriptionOutputs, files map[string][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcription = out
	for k, v := range files {
		f.files[k] = v
	}
}

// Calls returns every call made, in order, as "op:arg" strings.
func (f *FakeExternal) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// GetResultsPage implements external.Client.
func (f *FakeExternal) GetResultsPage(_ context.Context, kind job.Kind, jobID, token string) (external.ResultsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("page:%s:%s:%s", kind, jobID, token))
	if err, ok := f.errs[token]; ok {
		return external.ResultsPage{}, err
	}
	p, ok := f.pages[token]
	if !ok {
		return external.ResultsPage{}, fmt.Errorf("no page for token %q", token)
	}
	return p, nil
}

// GetTranscriptionOutputs implements external.Client.
func (f *FakeExternal) GetTranscriptionOutputs(_ context.Context, jobName string) (external.TranscriptionOutputs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "transcription:"+jobName)
	if err, ok := f.errs[jobName]; ok {
		return external.TranscriptionOutputs{}, err
	}
	return f.transcription, nil
}

// Download implements external.Client.
func (f *FakeExternal) Download(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "download:"+url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	data, ok := f.files[url]
	if !ok {
		return nil, fmt.Errorf("no file at %s", url)
	}
	return data, nil
}
