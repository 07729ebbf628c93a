package job

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_IsTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusCreated:   false,
		StatusQueued:    false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCanceled:  true,
	}
	for st, want := range terminal {
		assert.Equal(t, want, st.IsTerminal(), "status %s", st)
	}
}

func TestParseStatus_CaseInsensitive(t *testing.T) {
	st, err := ParseStatus("RUNNING")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, st)

	_, err = ParseStatus("Paused")
	assert.Error(t, err)
}

func TestStatus_UnmarshalJSON(t *testing.T) {
	var st Status
	require.NoError(t, json.Unmarshal([]byte(`"completed"`), &st))
	assert.Equal(t, StatusCompleted, st)

	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &st))
	assert.Error(t, json.Unmarshal([]byte(`42`), &st))
}
