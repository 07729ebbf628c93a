package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/recon/internal/job"
)

// ErrExists is returned by CreateAssignment when the id is already taken.
var ErrExists = errors.New("job assignment already exists")

// terminalStatuses is the SQL list of statuses a row may never leave.
var terminalStatuses = func() string {
	var quoted []string
	for _, st := range job.AllStatuses {
		if st.IsTerminal() {
			quoted = append(quoted, "'"+string(st)+"'")
		}
	}
	return strings.Join(quoted, ", ")
}()

// CreateAssignment inserts a new job assignment.
// Returns ErrExists if a row with the same id is already present.
func (s *Store) CreateAssignment(ctx context.Context, a *job.Assignment) error {
	row, err := encodeAssignment(a)
	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO job_assignments
		(id, status, job_input, job_output, tracker, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, row.args()...)
	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create assignment: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("create assignment %s: %w", a.ID, ErrExists)
	}
	return nil
}

// GetAssignment retrieves a job assignment by id.
// Returns an error wrapping job.ErrNotFound if no row exists.
func (s *Store) GetAssignment(ctx context.Context, id string) (*job.Assignment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, job_input, job_output, tracker, error, created_at, updated_at
		FROM job_assignments
		WHERE id = ?
	`, id)

	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get assignment %s: %w", id, job.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment %s: %w", id, err)
	}
	return a, nil
}

// PutAssignment writes the full assignment record, creating it if absent.
//
// A row already in a terminal status is never overwritten: the write is
// skipped and an error wrapping job.ErrTerminal is returned.
func (s *Store) PutAssignment(ctx context.Context, a *job.Assignment) error {
	row, err := encodeAssignment(a)
	if err != nil {
		return fmt.Errorf("put assignment: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO job_assignments
		(id, status, job_input, job_output, tracker, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status     = excluded.status,
			job_input  = excluded.job_input,
			job_output = excluded.job_output,
			tracker    = excluded.tracker,
			error      = excluded.error,
			updated_at = excluded.updated_at
		WHERE job_assignments.status NOT IN (`+terminalStatuses+`)
	`, row.args()...)
	if err != nil {
		return fmt.Errorf("put assignment: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("put assignment: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("put assignment %s: %w", a.ID, job.ErrTerminal)
	}
	return nil
}

// ListAssignments returns assignments ordered by id, optionally filtered
// by status. Returns an empty slice (not nil) when nothing matches.
func (s *Store) ListAssignments(ctx context.Context, statuses ...job.Status) ([]*job.Assignment, error) {
	query := `
		SELECT id, status, job_input, job_output, tracker, error, created_at, updated_at
		FROM job_assignments`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY id COLLATE BINARY ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	assignments := []*job.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return assignments, nil
}

type assignmentRow struct {
	id        string
	status    string
	jobInput  string
	jobOutput sql.NullString
	tracker   sql.NullString
	problem   sql.NullString
	createdAt string
	updatedAt string
}

func (r assignmentRow) args() []any {
	return []any{r.id, r.status, r.jobInput, r.jobOutput, r.tracker, r.problem, r.createdAt, r.updatedAt}
}

func encodeAssignment(a *job.Assignment) (assignmentRow, error) {
	if a.ID == "" {
		return assignmentRow{}, errors.New("assignment id is required")
	}
	input := a.JobInput
	if input == nil {
		input = job.ParameterBag{}
	}
	in, err := marshalBag(input)
	if err != nil {
		return assignmentRow{}, err
	}
	out, err := marshalBag(a.JobOutput)
	if err != nil {
		return assignmentRow{}, err
	}
	tracker, err := marshalBag(a.Tracker)
	if err != nil {
		return assignmentRow{}, err
	}
	problem, err := marshalProblem(a.Error)
	if err != nil {
		return assignmentRow{}, err
	}
	return assignmentRow{
		id:        a.ID,
		status:    string(a.Status),
		jobInput:  in.String,
		jobOutput: out,
		tracker:   tracker,
		problem:   problem,
		createdAt: formatTime(a.CreatedAt),
		updatedAt: formatTime(a.UpdatedAt),
	}, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(r rowScanner) (*job.Assignment, error) {
	var row assignmentRow
	var jobInput sql.NullString
	if err := r.Scan(
		&row.id, &row.status, &jobInput, &row.jobOutput,
		&row.tracker, &row.problem, &row.createdAt, &row.updatedAt,
	); err != nil {
		return nil, err
	}

	status, err := job.ParseStatus(row.status)
	if err != nil {
		return nil, fmt.Errorf("scan assignment %s: %w", row.id, err)
	}
	input, err := unmarshalBag(jobInput)
	if err != nil {
		return nil, fmt.Errorf("scan assignment %s: %w", row.id, err)
	}
	output, err := unmarshalBag(row.jobOutput)
	if err != nil {
		return nil, fmt.Errorf("scan assignment %s: %w", row.id, err)
	}
	tracker, err := unmarshalBag(row.tracker)
	if err != nil {
		return nil, fmt.Errorf("scan assignment %s: %w", row.id, err)
	}
	problem, err := unmarshalProblem(row.problem)
	if err != nil {
		return nil, fmt.Errorf("scan assignment %s: %w", row.id, err)
	}
	createdAt, err := parseTime(row.createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan assignment %s: %w", row.id, err)
	}
	updatedAt, err := parseTime(row.updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan assignment %s: %w", row.id, err)
	}

	if input == nil {
		input = map[string]any{}
	}
	return &job.Assignment{
		ID:        row.id,
		Status:    status,
		JobInput:  input,
		JobOutput: output,
		Tracker:   tracker,
		Error:     problem,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}
