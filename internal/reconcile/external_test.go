package reconcile

import "github.com/roach88/recon/internal/external"

func externalTranscript() external.TranscriptionOutputs {
	return external.TranscriptionOutputs{
		JobName:       "ext-tx",
		Status:        "COMPLETED",
		TranscriptURI: "https://files.example.com/ext-tx.json",
		SubtitleURIs:  []string{"https://files.example.com/ext-tx.vtt"},
	}
}
