// Package settings defines per-project governance configuration.
package settings

import "time"

// DefaultTaskRetryLimit bounds task attempts before a force-fail.
const DefaultTaskRetryLimit = 3

// ProjectSetting is the per-project governance configuration consumed by the
// scheduler loops and the tool dispatcher.
type ProjectSetting struct {
	ID                string    `json:"id"`
	ProjectID         string    `json:"project_id"`
	AllowAllTools     bool      `json:"allow_all_tools"`
	AllowHighRisk     bool      `json:"allow_high_risk"`
	DefaultToolScopes string    `json:"default_tool_scopes,omitempty"`
	RoleToolScopes    string    `json:"role_tool_scopes,omitempty"` // JSON role→scopes override
	AllowPMMerge      bool      `json:"allow_pm_merge"`
	AutoExecuteEdits  bool      `json:"auto_execute_edits"`
	RequirePRApproval bool      `json:"require_pr_approval"`
	ChatTargetPolicy  string    `json:"chat_target_policy"` // "managers" | "team"
	TaskRetryLimit    int       `json:"task_retry_limit"`
	MCPEndpoints      string    `json:"mcp_endpoints,omitempty"` // comma-separated URLs
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Defaults returns the governance defaults applied to a new project.
func Defaults(projectID string) *ProjectSetting {
	return &ProjectSetting{
		ProjectID:         projectID,
		AutoExecuteEdits:  true,
		RequirePRApproval: true,
		ChatTargetPolicy:  "managers",
		TaskRetryLimit:    DefaultTaskRetryLimit,
	}
}

// RetryLimit returns the configured task retry limit, falling back to the
// default for unset or nonsensical values.
func (s *ProjectSetting) RetryLimit() int {
	if s == nil || s.TaskRetryLimit <= 0 {
		return DefaultTaskRetryLimit
	}
	return s.TaskRetryLimit
}
