package job

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the external analysis a job assignment delegated.
//
// Kinds are dense so they can index dispatch tables. The zero value is
// KindUnknown; NumKinds must stay the last constant.
type Kind int

const (
	KindUnknown Kind = iota
	KindCelebrityRecognition
	KindFaceDetection
	KindLabelDetection
	KindTextDetection
	KindContentModeration
	KindSegmentDetection
	KindTranscription

	NumKinds
)

// KindInfo describes how a kind is named by the outside world.
type KindInfo struct {
	// Name is the stable identifier used in notifications and config.
	Name string

	// StartAPI is the external operation that started the job. Recognition
	// notifications report it as the job's API.
	StartAPI string

	// ResultAPI is the external operation that returns result pages.
	ResultAPI string

	// Profile is the job-profile name the assignment was created under.
	Profile string

	// SortByTimestamp requests timestamp ordering from the result API.
	SortByTimestamp bool
}

var kindInfos = [...]KindInfo{
	KindUnknown: {Name: "unknown"},
	KindCelebrityRecognition: {
		Name:            "celebrityRecognition",
		StartAPI:        "StartCelebrityRecognition",
		ResultAPI:       "GetCelebrityRecognition",
		Profile:         "AwsCelebrityRecognition",
		SortByTimestamp: true,
	},
	KindFaceDetection: {
		Name:      "faceDetection",
		StartAPI:  "StartFaceDetection",
		ResultAPI: "GetFaceDetection",
		Profile:   "AwsFaceDetection",
	},
	KindLabelDetection: {
		Name:            "labelDetection",
		StartAPI:        "StartLabelDetection",
		ResultAPI:       "GetLabelDetection",
		Profile:         "AwsLabelDetection",
		SortByTimestamp: true,
	},
	KindTextDetection: {
		Name:      "textDetection",
		StartAPI:  "StartTextDetection",
		ResultAPI: "GetTextDetection",
		Profile:   "AwsTextDetection",
	},
	KindContentModeration: {
		Name:            "contentModeration",
		StartAPI:        "StartContentModeration",
		ResultAPI:       "GetContentModeration",
		Profile:         "AwsContentModeration",
		SortByTimestamp: true,
	},
	KindSegmentDetection: {
		Name:      "segmentDetection",
		StartAPI:  "StartSegmentDetection",
		ResultAPI: "GetSegmentDetection",
		Profile:   "AwsSegmentDetection",
	},
	KindTranscription: {
		Name:      "transcription",
		StartAPI:  "StartTranscriptionJob",
		ResultAPI: "GetTranscriptionJob",
		Profile:   "AwsTranscription",
	},
}

// Adding a Kind without describing it fails to compile.
var _ [len(kindInfos) - int(NumKinds)]struct{}
var _ [int(NumKinds) - len(kindInfos)]struct{}

// AllKinds returns every supported kind in declaration order.
func AllKinds() []Kind {
	kinds := make([]Kind, 0, NumKinds-1)
	for k := KindCelebrityRecognition; k < NumKinds; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	return k > KindUnknown && k < NumKinds
}

// Info returns the naming metadata for k. It panics on an invalid kind.
func (k Kind) Info() KindInfo {
	if !k.Valid() {
		panic(fmt.Sprintf("job: invalid kind %d", int(k)))
	}
	return kindInfos[k]
}

// IsTranscription reports whether k produces transcript outputs rather
// than paginated recognition results.
func (k Kind) IsTranscription() bool {
	return k == KindTranscription
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindInfos[k].Name
}

// ParseKind resolves a kind from its name, start API name or profile name.
func ParseKind(s string) (Kind, error) {
	for k := KindCelebrityRecognition; k < NumKinds; k++ {
		info := kindInfos[k]
		if s == info.Name || s == info.StartAPI || s == info.Profile {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unsupported job kind %q", s)
}

// MarshalJSON encodes the kind by name.
func (k Kind) MarshalJSON() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("job: invalid kind %d", int(k))
	}
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts any name ParseKind accepts. An unrecognized name
// decodes to KindUnknown, which Notification.Validate rejects.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("job kind: %w", err)
	}
	parsed, err := ParseKind(raw)
	if err != nil {
		parsed = KindUnknown
	}
	*k = parsed
	return nil
}
