package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/recon/internal/job"
)

// timeLayout stores wall-clock timestamps as sortable UTC text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// marshalBag converts a parameter bag to canonical JSON TEXT for storage.
// A nil bag is stored as SQL NULL.
func marshalBag(bag map[string]any) (sql.NullString, error) {
	if bag == nil {
		return sql.NullString{}, nil
	}
	data, err := job.MarshalCanonical(bag)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal bag: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalBag parses JSON TEXT into a parameter bag.
// Numbers decode as json.Number to avoid float64 precision loss.
func unmarshalBag(data sql.NullString) (map[string]any, error) {
	if !data.Valid || data.String == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data.String)))
	dec.UseNumber()
	var bag map[string]any
	if err := dec.Decode(&bag); err != nil {
		return nil, fmt.Errorf("unmarshal bag: %w", err)
	}
	return bag, nil
}

func marshalProblem(p *job.ProblemDetail) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	data, err := job.MarshalCanonical(*p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal problem: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalProblem(data sql.NullString) (*job.ProblemDetail, error) {
	if !data.Valid || data.String == "" {
		return nil, nil
	}
	var p job.ProblemDetail
	if err := json.Unmarshal([]byte(data.String), &p); err != nil {
		return nil, fmt.Errorf("unmarshal problem: %w", err)
	}
	return &p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
