package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/CrewForge/internal/domain"
	"github.com/Strob0t/CrewForge/internal/domain/settings"
)

const settingsColumns = `id, project_id, allow_all_tools, allow_high_risk, default_tool_scopes,
	role_tool_scopes, allow_pm_merge, auto_execute_edits, require_pr_approval,
	chat_target_policy, task_retry_limit, mcp_endpoints, created_at, updated_at`

func scanSettings(row pgx.Row) (*settings.ProjectSetting, error) {
	var ps settings.ProjectSetting
	err := row.Scan(&ps.ID, &ps.ProjectID, &ps.AllowAllTools, &ps.AllowHighRisk,
		&ps.DefaultToolScopes, &ps.RoleToolScopes, &ps.AllowPMMerge, &ps.AutoExecuteEdits,
		&ps.RequirePRApproval, &ps.ChatTargetPolicy, &ps.TaskRetryLimit, &ps.MCPEndpoints,
		&ps.CreatedAt, &ps.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

func (s *Store) GetSettings(ctx context.Context, projectID string) (*settings.ProjectSetting, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+settingsColumns+` FROM project_settings WHERE project_id = $1`, projectID)
	ps, err := scanSettings(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get settings for %s: %w", projectID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get settings for %s: %w", projectID, err)
	}
	return ps, nil
}

func (s *Store) UpsertSettings(ctx context.Context, ps *settings.ProjectSetting) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO project_settings (project_id, allow_all_tools, allow_high_risk,
			default_tool_scopes, role_tool_scopes, allow_pm_merge, auto_execute_edits,
			require_pr_approval, chat_target_policy, task_retry_limit, mcp_endpoints)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (project_id) DO UPDATE SET
			allow_all_tools = EXCLUDED.allow_all_tools,
			allow_high_risk = EXCLUDED.allow_high_risk,
			default_tool_scopes = EXCLUDED.default_tool_scopes,
			role_tool_scopes = EXCLUDED.role_tool_scopes,
			allow_pm_merge = EXCLUDED.allow_pm_merge,
			auto_execute_edits = EXCLUDED.auto_execute_edits,
			require_pr_approval = EXCLUDED.require_pr_approval,
			chat_target_policy = EXCLUDED.chat_target_policy,
			task_retry_limit = EXCLUDED.task_retry_limit,
			mcp_endpoints = EXCLUDED.mcp_endpoints,
			updated_at = now()
		 RETURNING id, created_at, updated_at`,
		ps.ProjectID, ps.AllowAllTools, ps.AllowHighRisk, ps.DefaultToolScopes,
		ps.RoleToolScopes, ps.AllowPMMerge, ps.AutoExecuteEdits, ps.RequirePRApproval,
		ps.ChatTargetPolicy, ps.TaskRetryLimit, ps.MCPEndpoints)
	if err := row.Scan(&ps.ID, &ps.CreatedAt, &ps.UpdatedAt); err != nil {
		return fmt.Errorf("upsert settings for %s: %w", ps.ProjectID, err)
	}
	return nil
}
