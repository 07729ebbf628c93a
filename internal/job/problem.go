package job

import "fmt"

// Problem type URIs.
const (
	ProblemTypePrefix = "uri://mcma.ebu.ch/rfc7807/aws-ai-service/"

	ProblemGenericFailure       = ProblemTypePrefix + "generic-failure"
	ProblemTranscriptionFailure = ProblemTypePrefix + "transcription-failure"
	ProblemRecognitionFailure   = ProblemTypePrefix + "rekognition-failure"
)

// ProblemDetail is the structured failure payload of a Failed assignment.
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (p ProblemDetail) Error() string {
	if p.Detail == "" {
		return p.Title
	}
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// IsDomainFailure reports whether p records a failure reported by the
// external job itself rather than an error in reconciliation.
func (p ProblemDetail) IsDomainFailure() bool {
	return p.Type == ProblemTranscriptionFailure || p.Type == ProblemRecognitionFailure
}
