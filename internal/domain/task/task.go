// Package task defines the Task domain entity: a unit of work routed to one agent.
package task

import (
	"fmt"
	"time"

	"github.com/Strob0t/CrewForge/internal/domain"
)

// Status represents the current state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is a unit of work assignable to an agent. Created by chat intake,
// manager directives, or idle detection; mutated by the scheduler loops.
type Task struct {
	ID                 string     `json:"id"`
	RunID              string     `json:"run_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	AcceptanceCriteria string     `json:"acceptance_criteria,omitempty"`
	AssignedRole       string     `json:"assigned_role,omitempty"`
	Status             Status     `json:"status"`
	Attempts           int        `json:"attempts"`
	FailureReason      string     `json:"failure_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// CreateRequest holds the fields needed to create a new task.
type CreateRequest struct {
	RunID              string `json:"run_id"`
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	AssignedRole       string `json:"assigned_role,omitempty"`
}

// Validate checks that the request carries everything a task needs.
func (r *CreateRequest) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("%w: run_id is required", domain.ErrInvalid)
	}
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrInvalid)
	}
	return nil
}
