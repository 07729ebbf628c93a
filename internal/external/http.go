package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/recon/internal/job"
)

// DefaultTimeout bounds a single gateway request.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 4 << 10

// StatusError is returned for a non-2xx gateway response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// HTTPClient implements Client against a results gateway:
//
//	GET {base}/results/{ResultAPI}?JobId=&NextToken=&SortBy=TIMESTAMP
//	GET {base}/transcription-jobs/{name}
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the gateway at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetResultsPage implements Client.
func (c *HTTPClient) GetResultsPage(ctx context.Context, kind job.Kind, jobID, nextToken string) (ResultsPage, error) {
	if !kind.Valid() || kind.IsTranscription() {
		return ResultsPage{}, fmt.Errorf("get results: kind %s has no paginated results", kind)
	}
	info := kind.Info()

	q := url.Values{}
	q.Set("JobId", jobID)
	if nextToken != "" {
		q.Set("NextToken", nextToken)
	}
	if info.SortByTimestamp {
		q.Set("SortBy", "TIMESTAMP")
	}
	endpoint := c.baseURL + "/results/" + info.ResultAPI + "?" + q.Encode()

	body, err := c.get(ctx, info.ResultAPI, endpoint)
	if err != nil {
		return ResultsPage{}, err
	}

	var cursor struct {
		NextToken string `json:"NextToken"`
	}
	if err := json.Unmarshal(body, &cursor); err != nil {
		return ResultsPage{}, fmt.Errorf("%s: failed to decode response: %w", info.ResultAPI, err)
	}
	return ResultsPage{Body: json.RawMessage(body), NextToken: cursor.NextToken}, nil
}

type transcriptionJobResponse struct {
	TranscriptionJob struct {
		TranscriptionJobName   string `json:"TranscriptionJobName"`
		TranscriptionJobStatus string `json:"TranscriptionJobStatus"`
		FailureReason          string `json:"FailureReason"`
		Transcript             struct {
			TranscriptFileURI string `json:"TranscriptFileUri"`
		} `json:"Transcript"`
		Subtitles struct {
			SubtitleFileURIs []string `json:"SubtitleFileUris"`
		} `json:"Subtitles"`
	} `json:"TranscriptionJob"`
}

// GetTranscriptionOutputs implements Client.
func (c *HTTPClient) GetTranscriptionOutputs(ctx context.Context, jobName string) (TranscriptionOutputs, error) {
	endpoint := c.baseURL + "/transcription-jobs/" + url.PathEscape(jobName)

	body, err := c.get(ctx, "GetTranscriptionJob", endpoint)
	if err != nil {
		return TranscriptionOutputs{}, err
	}

	var resp transcriptionJobResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return TranscriptionOutputs{}, fmt.Errorf("GetTranscriptionJob: failed to decode response: %w", err)
	}
	tj := resp.TranscriptionJob
	name := tj.TranscriptionJobName
	if name == "" {
		name = jobName
	}
	return TranscriptionOutputs{
		JobName:       name,
		Status:        tj.TranscriptionJobStatus,
		FailureReason: tj.FailureReason,
		TranscriptURI: tj.Transcript.TranscriptFileURI,
		SubtitleURIs:  tj.Subtitles.SubtitleFileURIs,
	}, nil
}

// Download implements Client.
func (c *HTTPClient) Download(ctx context.Context, rawURL string) ([]byte, error) {
	return c.get(ctx, "download", rawURL)
}

func (c *HTTPClient) get(ctx context.Context, op, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", op, err)
	}
	return body, nil
}
