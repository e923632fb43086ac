// Package project defines projects, teams, team presets, and budgets.
package project

import "time"

// Project is a workspace a team delivers into.
type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	RepoURL       string    `json:"repo_url,omitempty"`
	RepoLocalPath string    `json:"repo_local_path"`
	DefaultBranch string    `json:"default_branch,omitempty"`
	Overview      string    `json:"overview,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Team is a named group of agents attached to a project.
type Team struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Template  string    `json:"template,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Budget caps LLM spend per project. Agent invocation is gated on
// Spent < Limit and incremented per call.
type Budget struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	LimitUSD  float64   `json:"usd_limit"`
	SpentUSD  float64   `json:"usd_spent"`
	CreatedAt time.Time `json:"created_at"`
}

// Exhausted reports whether the budget blocks further agent calls.
func (b *Budget) Exhausted() bool {
	return b.SpentUSD >= b.LimitUSD
}

// Presets are the built-in team templates, by size.
var Presets = map[string][]string{
	"small": {
		"Product Owner",
		"Tech Lead",
		"Developer",
		"Developer",
		"QA Engineer",
		"Release Manager",
	},
	"medium": {
		"Product Owner",
		"Delivery Manager",
		"Tech Lead",
		"Developer",
		"Developer",
		"Developer",
		"Developer",
		"QA Engineer",
		"QA Engineer",
		"Release Manager",
	},
	"large": {
		"Product Owner",
		"Delivery Manager",
		"Tech Lead",
		"Developer",
		"Developer",
		"Developer",
		"Developer",
		"Developer",
		"Developer",
		"Developer",
		"QA Engineer",
		"QA Engineer",
		"QA Engineer",
		"Release Manager",
	},
}
