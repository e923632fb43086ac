package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/CrewForge/internal/domain"
	"github.com/Strob0t/CrewForge/internal/domain/run"
)

const runColumns = `id, project_id, team_id, goal, status, pause_mode, paused_by,
	paused_at, token_usage, cost_usd, started_at, ended_at, created_at, updated_at`

func scanRun(row pgx.Row) (*run.Run, error) {
	var r run.Run
	err := row.Scan(&r.ID, &r.ProjectID, &r.TeamID, &r.Goal, &r.Status, &r.PauseMode,
		&r.PausedBy, &r.PausedAt, &r.TokenUsage, &r.CostUSD, &r.StartedAt, &r.EndedAt,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*run.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get run %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) LatestRunForProject(ctx context.Context, projectID string) (*run.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE project_id = $1
		 ORDER BY created_at DESC LIMIT 1`, projectID)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("latest run for %s: %w", projectID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("latest run for %s: %w", projectID, err)
	}
	return r, nil
}

func (s *Store) ListActiveRuns(ctx context.Context) ([]run.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM runs WHERE status = 'running' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active runs: %w", err)
	}
	defer rows.Close()

	var runs []run.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (s *Store) CreateRun(ctx context.Context, r *run.Run) error {
	if r.Status == "" {
		r.Status = run.StatusCreated
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO runs (project_id, team_id, goal, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, started_at, created_at, updated_at`,
		r.ProjectID, r.TeamID, r.Goal, r.Status)
	if err := row.Scan(&r.ID, &r.StartedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) UpdateRunStatus(ctx context.Context, id string, status run.Status) error {
	terminal := status == run.StatusCompleted || status == run.StatusFailed
	var err error
	if terminal {
		_, err = s.pool.Exec(ctx,
			`UPDATE runs SET status = $2, ended_at = now(), updated_at = now() WHERE id = $1`,
			id, status)
	} else {
		_, err = s.pool.Exec(ctx,
			`UPDATE runs SET status = $2, updated_at = now() WHERE id = $1`,
			id, status)
	}
	if err != nil {
		return fmt.Errorf("update run %s status: %w", id, err)
	}
	return nil
}

func (s *Store) UpdateRunPause(ctx context.Context, id string, mode run.PauseMode, by string) error {
	var err error
	if mode == run.PauseNone {
		_, err = s.pool.Exec(ctx,
			`UPDATE runs SET pause_mode = '', paused_by = '', paused_at = NULL,
			 updated_at = now() WHERE id = $1`, id)
	} else {
		_, err = s.pool.Exec(ctx,
			`UPDATE runs SET pause_mode = $2, paused_by = $3, paused_at = now(),
			 updated_at = now() WHERE id = $1`, id, mode, by)
	}
	if err != nil {
		return fmt.Errorf("update run %s pause: %w", id, err)
	}
	return nil
}
