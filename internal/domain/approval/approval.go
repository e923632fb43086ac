// Package approval defines the human decision record gating risky tool calls.
package approval

import "time"

// Status of an approval. Transitions only via an explicit external decision;
// the broker never auto-approves.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// Approval gates one risk-rated tool invocation. An approval can match at
// most the tool/risk combination it was issued for.
type Approval struct {
	ID        string     `json:"id"`
	RunID     string     `json:"run_id,omitempty"`
	JobID     string     `json:"job_id,omitempty"`
	Actor     string     `json:"actor"`
	ToolName  string     `json:"tool_name,omitempty"`
	RiskLevel string     `json:"risk_level,omitempty"`
	Status    Status     `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	DecidedBy string     `json:"decided_by,omitempty"`
}

// Matches reports whether this approval authorizes the given tool at the
// given risk. A blank tool or risk on the approval matches anything, matching
// how approvals created before classification are honored.
func (a *Approval) Matches(toolName, riskLevel string) bool {
	if a.Status != StatusApproved {
		return false
	}
	if a.ToolName != "" && toolName != "" && a.ToolName != toolName {
		return false
	}
	if a.RiskLevel != "" && riskLevel != "" && a.RiskLevel != riskLevel {
		return false
	}
	return true
}
