package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/CrewForge/internal/domain"
	"github.com/Strob0t/CrewForge/internal/domain/job"
)

func scanJob(row pgx.Row) (*job.Job, error) {
	var j job.Job
	err := row.Scan(&j.ID, &j.RunID, &j.Status, &j.CurrentStep, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, run_id, status, current_step, created_at, updated_at
		 FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get job %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

func (s *Store) GetJobByRun(ctx context.Context, runID string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, run_id, status, current_step, created_at, updated_at
		 FROM jobs WHERE run_id = $1`, runID)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get job for run %s: %w", runID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get job for run %s: %w", runID, err)
	}
	return j, nil
}

func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	if j.Status == "" {
		j.Status = job.StatusCreated
	}
	if j.CurrentStep == "" {
		j.CurrentStep = "created"
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (run_id, status, current_step) VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		j.RunID, j.Status, j.CurrentStep)
	if err := row.Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, current_step = $3, updated_at = now() WHERE id = $1`,
		j.ID, j.Status, j.CurrentStep)
	if err != nil {
		return fmt.Errorf("update job %s: %w", j.ID, err)
	}
	return nil
}

func (s *Store) CreateJobStep(ctx context.Context, st *job.Step) error {
	if st.Status == "" {
		st.Status = job.StatusPending
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO job_steps (job_id, name, status, attempts, started_at, ended_at, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		st.JobID, st.Name, st.Status, st.Attempts, st.StartedAt, st.EndedAt, st.Error)
	if err := row.Scan(&st.ID); err != nil {
		return fmt.Errorf("create job step: %w", err)
	}
	return nil
}

func (s *Store) UpdateJobStep(ctx context.Context, st *job.Step) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE job_steps SET status = $2, attempts = $3, started_at = $4, ended_at = $5, error = $6
		 WHERE id = $1`,
		st.ID, st.Status, st.Attempts, st.StartedAt, st.EndedAt, st.Error)
	if err != nil {
		return fmt.Errorf("update job step %s: %w", st.ID, err)
	}
	return nil
}

func (s *Store) AppendJobEvent(ctx context.Context, e *job.Event) error {
	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO job_events (job_id, step_id, type, payload)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		e.JobID, nullIfEmpty(e.StepID), e.Type, payload)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("append job event: %w", err)
	}
	return nil
}

func (s *Store) ListJobSteps(ctx context.Context, jobID string) ([]job.Step, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, name, status, attempts, started_at, ended_at, error
		 FROM job_steps WHERE job_id = $1 ORDER BY started_at ASC NULLS LAST`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job steps: %w", err)
	}
	defer rows.Close()

	var steps []job.Step
	for rows.Next() {
		var st job.Step
		err := rows.Scan(&st.ID, &st.JobID, &st.Name, &st.Status, &st.Attempts,
			&st.StartedAt, &st.EndedAt, &st.Error)
		if err != nil {
			return nil, fmt.Errorf("scan job step: %w", err)
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// nullIfEmpty maps a blank string to SQL NULL for nullable UUID columns.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
