package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/CrewForge/internal/domain/audit"
)

func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	request := e.Request
	if len(request) == 0 {
		request = []byte("{}")
	}
	result := e.Result
	if len(result) == 0 {
		result = []byte("{}")
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO audit_log (run_id, job_id, actor, action, tool_name, risk_level, decision, request, result)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		nullIfEmpty(e.RunID), nullIfEmpty(e.JobID), e.Actor, e.Action, e.ToolName,
		e.RiskLevel, e.Decision, request, result)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (s *Store) ListAuditByRun(ctx context.Context, runID string) ([]audit.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, job_id, actor, action, tool_name, risk_level, decision, request, result, created_at
		 FROM audit_log WHERE run_id = $1 ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list audit for run %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e        audit.Entry
			rID, jID *string
		)
		err := rows.Scan(&e.ID, &rID, &jID, &e.Actor, &e.Action, &e.ToolName,
			&e.RiskLevel, &e.Decision, &e.Request, &e.Result, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if rID != nil {
			e.RunID = *rID
		}
		if jID != nil {
			e.JobID = *jID
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
