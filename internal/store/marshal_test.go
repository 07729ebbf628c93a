package store

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/job"
)

func TestMarshalBag_NilIsNull(t *testing.T) {
	ns, err := marshalBag(nil)
	require.NoError(t, err)
	assert.False(t, ns.Valid)

	bag, err := unmarshalBag(ns)
	require.NoError(t, err)
	assert.Nil(t, bag)
}

func TestMarshalBag_Canonical(t *testing.T) {
	ns, err := marshalBag(map[string]any{
		"z":         1,
		"inputFile": job.Locator{URL: "https://h/a?x=1&y=<2>"},
	})
	require.NoError(t, err)
	require.True(t, ns.Valid)
	assert.Equal(t, `{"inputFile":{"url":"https://h/a?x=1&y=<2>"},"z":1}`, ns.String)
}

func TestUnmarshalBag_PreservesNumbers(t *testing.T) {
	bag, err := unmarshalBag(sql.NullString{String: `{"big":9007199254740993,"f":1.50}`, Valid: true})
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), bag["big"])
	assert.Equal(t, json.Number("1.50"), bag["f"])
}

func TestUnmarshalBag_Invalid(t *testing.T) {
	_, err := unmarshalBag(sql.NullString{String: `{not json`, Valid: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal bag")
}

func TestMarshalProblem(t *testing.T) {
	ns, err := marshalProblem(nil)
	require.NoError(t, err)
	assert.False(t, ns.Valid)

	p := &job.ProblemDetail{Type: job.ProblemGenericFailure, Title: "Generic failure", Detail: "boom"}
	ns, err = marshalProblem(p)
	require.NoError(t, err)
	assert.Equal(t, `{"detail":"boom","title":"Generic failure","type":"`+job.ProblemGenericFailure+`"}`, ns.String)

	got, err := unmarshalProblem(ns)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestFormatTime_UTCAndSortable(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 3, 1, 14, 0, 0, 5, loc)

	s := formatTime(ts)
	assert.Equal(t, "2024-03-01T12:00:00.000000005Z", s)

	parsed, err := parseTime(s)
	require.NoError(t, err)
	assert.True(t, ts.Equal(parsed))

	_, err = parseTime("yesterday")
	require.Error(t, err)
}
