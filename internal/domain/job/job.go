// Package job defines the phase-execution shadow state of a run: the Job,
// its attempt-tracked JobSteps, and the persisted JobEvent trail.
package job

import (
	"encoding/json"
	"time"
)

// Status represents the state of a job or a job step.
type Status string

const (
	StatusCreated   Status = "created"
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is the 1:1 phase-execution shadow of a Run. Created once per run,
// mutated only by the JobEngine.
type Job struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Status      Status    `json:"status"`
	CurrentStep string    `json:"current_step"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Step is one attempt-tracked execution of a named phase within a job.
type Step struct {
	ID        string     `json:"id"`
	JobID     string     `json:"job_id"`
	Name      string     `json:"name"`
	Status    Status     `json:"status"`
	Attempts  int        `json:"attempts"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Event is a persisted job lifecycle event (step started/completed, job
// completed/failed). Events are also published on the in-process bus.
type Event struct {
	ID        string          `json:"id"`
	JobID     string          `json:"job_id"`
	StepID    string          `json:"step_id,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// StepResult is what a phase handler returns to the JobEngine.
type StepResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
