// Package run defines the Run domain entity: one end-to-end delivery attempt
// toward a stakeholder goal.
package run

import (
	"fmt"
	"time"

	"github.com/Strob0t/CrewForge/internal/domain"
)

// Status represents the current state of a run.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// PauseMode suspends the scheduler's auto-chat and idle behavior for a run.
// Task claiming still proceeds while paused.
type PauseMode string

const (
	PauseNone PauseMode = ""
	PauseSoft PauseMode = "soft"
)

// Run represents a single delivery attempt by a team toward a goal.
// Status transitions are owned exclusively by the Orchestrator / JobEngine.
type Run struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	TeamID     string     `json:"team_id"`
	Goal       string     `json:"goal"`
	Status     Status     `json:"status"`
	PauseMode  PauseMode  `json:"pause_mode,omitempty"`
	PausedBy   string     `json:"paused_by,omitempty"`
	PausedAt   *time.Time `json:"paused_at,omitempty"`
	TokenUsage int64      `json:"token_usage"`
	CostUSD    float64    `json:"cost_usd"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Paused reports whether the run carries an active pause mode.
func (r *Run) Paused() bool {
	return r.PauseMode != PauseNone
}

// CreateRequest holds the fields needed to create a new run.
type CreateRequest struct {
	ProjectID string `json:"project_id"`
	TeamID    string `json:"team_id"`
	Goal      string `json:"goal"`
}

// Validate checks that the request carries everything a run needs.
func (r *CreateRequest) Validate() error {
	if r.ProjectID == "" {
		return fmt.Errorf("%w: project_id is required", domain.ErrInvalid)
	}
	if r.TeamID == "" {
		return fmt.Errorf("%w: team_id is required", domain.ErrInvalid)
	}
	if r.Goal == "" {
		return fmt.Errorf("%w: goal is required", domain.ErrInvalid)
	}
	return nil
}
