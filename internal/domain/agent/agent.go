// Package agent defines team-member configuration and the assignment
// heuristics shared by the scheduler loops and chat targeting.
package agent

import (
	"strings"
	"time"
)

// Agent is one configured team member. Identity is immutable; scopes and
// model may be reassigned by settings updates.
type Agent struct {
	ID            string    `json:"id"`
	TeamID        string    `json:"team_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	Role          string    `json:"role"`
	Personality   string    `json:"personality,omitempty"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	Scopes        string    `json:"scopes,omitempty"` // comma-separated grant list
	MemorySummary string    `json:"memory_summary,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Name returns the display name, falling back to the role.
func (a *Agent) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Role
}

// IsManager reports whether the agent holds a manager role.
func (a *Agent) IsManager() bool {
	return ManagerRoles[a.Role]
}

// IsEngineer reports whether the agent's role is a hands-on coding role.
// File-editing tools are only auto-executed for engineer roles.
func (a *Agent) IsEngineer() bool {
	role := strings.ToLower(a.Role)
	return strings.Contains(role, "developer") || strings.Contains(role, "engineer")
}

// ManagerRoles is the fixed subset of roles with review and assignment authority.
var ManagerRoles = map[string]bool{
	"Product Owner":    true,
	"Delivery Manager": true,
	"Release Manager":  true,
}

// managerOrder is the preference order when picking a reviewer.
var managerOrder = []string{"Product Owner", "Delivery Manager", "Release Manager"}

// RoleAliases maps short chat tags to full role names.
var RoleAliases = map[string]string{
	"po":     "Product Owner",
	"dm":     "Delivery Manager",
	"tl":     "Tech Lead",
	"dev":    "Developer",
	"qa":     "QA Engineer",
	"rm":     "Release Manager",
	"docs":   "Technical Writer",
	"devops": "DevOps Engineer",
}

// PickManager returns the preferred manager from a team: manager roles in
// preference order, then the first agent. Returns nil for an empty team.
func PickManager(agents []Agent) *Agent {
	if len(agents) == 0 {
		return nil
	}
	for _, role := range managerOrder {
		for i := range agents {
			if agents[i].Role == role {
				return &agents[i]
			}
		}
	}
	return &agents[0]
}

// PickWorker returns the agent for a pre-assigned role, else the first
// non-manager, else the first agent. Returns nil for an empty team.
func PickWorker(agents []Agent, assignedRole string) *Agent {
	if len(agents) == 0 {
		return nil
	}
	if assignedRole != "" {
		for i := range agents {
			if agents[i].Role == assignedRole {
				return &agents[i]
			}
		}
	}
	for i := range agents {
		if !agents[i].IsManager() {
			return &agents[i]
		}
	}
	return &agents[0]
}
