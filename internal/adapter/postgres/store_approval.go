package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/CrewForge/internal/domain"
	"github.com/Strob0t/CrewForge/internal/domain/approval"
)

const approvalColumns = `id, run_id, job_id, actor, tool_name, risk_level, status,
	reason, decided_by, decided_at, created_at`

func scanApproval(row pgx.Row) (*approval.Approval, error) {
	var (
		a            approval.Approval
		runID, jobID *string
	)
	err := row.Scan(&a.ID, &runID, &jobID, &a.Actor, &a.ToolName, &a.RiskLevel,
		&a.Status, &a.Reason, &a.DecidedBy, &a.DecidedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if runID != nil {
		a.RunID = *runID
	}
	if jobID != nil {
		a.JobID = *jobID
	}
	return &a, nil
}

func (s *Store) GetApproval(ctx context.Context, id string) (*approval.Approval, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, id)
	a, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get approval %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get approval %s: %w", id, err)
	}
	return a, nil
}

func (s *Store) CreateApproval(ctx context.Context, a *approval.Approval) error {
	if a.Status == "" {
		a.Status = approval.StatusPending
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO approvals (run_id, job_id, actor, tool_name, risk_level, status, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		nullIfEmpty(a.RunID), nullIfEmpty(a.JobID), a.Actor, a.ToolName, a.RiskLevel,
		a.Status, a.Reason)
	if err := row.Scan(&a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

func (s *Store) DecideApproval(ctx context.Context, id string, status approval.Status, decidedBy string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE approvals SET status = $2, decided_by = $3, decided_at = now()
		 WHERE id = $1 AND status = 'pending'`,
		id, status, decidedBy)
	if err != nil {
		return fmt.Errorf("decide approval %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("decide approval %s: %w", id, domain.ErrConflict)
	}
	return nil
}

func (s *Store) ListPendingApprovals(ctx context.Context, runID string) ([]approval.Approval, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+approvalColumns+` FROM approvals
		 WHERE run_id = $1 AND status = 'pending' ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var approvals []approval.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		approvals = append(approvals, *a)
	}
	return approvals, rows.Err()
}
