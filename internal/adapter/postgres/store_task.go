package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/CrewForge/internal/domain"
	"github.com/Strob0t/CrewForge/internal/domain/task"
)

const taskColumns = `id, run_id, title, description, acceptance_criteria, assigned_role,
	status, attempts, failure_reason, created_at, updated_at, completed_at`

func scanTask(row pgx.Row) (*task.Task, error) {
	var t task.Task
	err := row.Scan(&t.ID, &t.RunID, &t.Title, &t.Description, &t.AcceptanceCriteria,
		&t.AssignedRole, &t.Status, &t.Attempts, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

func (s *Store) ListPendingTasks(ctx context.Context, limit int) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = 'pending'
		 ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *Store) ListTasksByRun(ctx context.Context, runID string) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE run_id = $1 ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for run %s: %w", runID, err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	if t.Status == "" {
		t.Status = task.StatusPending
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (run_id, title, description, acceptance_criteria, assigned_role, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		t.RunID, t.Title, t.Description, t.AcceptanceCriteria, t.AssignedRole, t.Status)
	if err := row.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// ClaimTask flips pending to in_progress in a single statement so two loops
// racing for the same task cannot both win. The loser sees ErrConflict.
func (s *Store) ClaimTask(ctx context.Context, id, assignedRole string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE tasks
		 SET status = 'in_progress', assigned_role = $2, attempts = attempts + 1, updated_at = now()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+taskColumns, id, assignedRole)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("claim task %s: %w", id, domain.ErrConflict)
		}
		return nil, fmt.Errorf("claim task %s: %w", id, err)
	}
	return t, nil
}

func (s *Store) CompleteTask(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = 'completed', completed_at = now(), updated_at = now()
		 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("complete task %s: %w", id, err)
	}
	return nil
}

func (s *Store) FailTask(ctx context.Context, id, reason string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = 'failed', failure_reason = $2, completed_at = now(), updated_at = now()
		 WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("fail task %s: %w", id, err)
	}
	return nil
}

// RequeueTask sends a reviewed task back to pending. Attempts are preserved
// so the retry limit still applies across requeues, and the claim-time role
// is cleared so the task returns to the manager's assignment pool.
func (s *Store) RequeueTask(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = 'pending', assigned_role = '', completed_at = NULL, updated_at = now()
		 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("requeue task %s: %w", id, err)
	}
	return nil
}
