// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/CrewForge/internal/domain/agent"
	"github.com/Strob0t/CrewForge/internal/domain/approval"
	"github.com/Strob0t/CrewForge/internal/domain/audit"
	"github.com/Strob0t/CrewForge/internal/domain/job"
	"github.com/Strob0t/CrewForge/internal/domain/memory"
	"github.com/Strob0t/CrewForge/internal/domain/project"
	"github.com/Strob0t/CrewForge/internal/domain/run"
	"github.com/Strob0t/CrewForge/internal/domain/settings"
	"github.com/Strob0t/CrewForge/internal/domain/task"
)

// Store is the port interface for persistence. It is the single source of
// truth and the arbiter of concurrent task claims.
type Store interface {
	// Projects and teams
	GetProject(ctx context.Context, id string) (*project.Project, error)
	CreateProject(ctx context.Context, p *project.Project) error
	GetTeam(ctx context.Context, id string) (*project.Team, error)
	CreateTeam(ctx context.Context, t *project.Team) error
	GetBudget(ctx context.Context, projectID string) (*project.Budget, error)
	UpsertBudget(ctx context.Context, b *project.Budget) error
	AddBudgetSpend(ctx context.Context, projectID string, usd float64) error

	// Agents
	ListAgents(ctx context.Context, teamID string) ([]agent.Agent, error)
	GetAgent(ctx context.Context, id string) (*agent.Agent, error)
	CreateAgent(ctx context.Context, a *agent.Agent) error
	UpdateAgentScopes(ctx context.Context, id, scopes string) error
	UpdateAgentMemorySummary(ctx context.Context, id, summary string) error

	// Runs
	GetRun(ctx context.Context, id string) (*run.Run, error)
	LatestRunForProject(ctx context.Context, projectID string) (*run.Run, error)
	ListActiveRuns(ctx context.Context) ([]run.Run, error)
	CreateRun(ctx context.Context, r *run.Run) error
	UpdateRunStatus(ctx context.Context, id string, status run.Status) error
	UpdateRunPause(ctx context.Context, id string, mode run.PauseMode, by string) error

	// Jobs
	GetJob(ctx context.Context, id string) (*job.Job, error)
	GetJobByRun(ctx context.Context, runID string) (*job.Job, error)
	CreateJob(ctx context.Context, j *job.Job) error
	UpdateJob(ctx context.Context, j *job.Job) error
	CreateJobStep(ctx context.Context, s *job.Step) error
	UpdateJobStep(ctx context.Context, s *job.Step) error
	AppendJobEvent(ctx context.Context, e *job.Event) error
	ListJobSteps(ctx context.Context, jobID string) ([]job.Step, error)

	// Tasks
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListPendingTasks(ctx context.Context, limit int) ([]task.Task, error)
	ListTasksByRun(ctx context.Context, runID string) ([]task.Task, error)
	CreateTask(ctx context.Context, t *task.Task) error
	// ClaimTask atomically flips pending→in_progress, records the assigned
	// role, and increments attempts in a single statement. Returns
	// domain.ErrConflict when the task is no longer pending.
	ClaimTask(ctx context.Context, id, assignedRole string) (*task.Task, error)
	CompleteTask(ctx context.Context, id string) error
	FailTask(ctx context.Context, id, reason string) error
	RequeueTask(ctx context.Context, id string) error

	// Approvals
	GetApproval(ctx context.Context, id string) (*approval.Approval, error)
	CreateApproval(ctx context.Context, a *approval.Approval) error
	DecideApproval(ctx context.Context, id string, status approval.Status, decidedBy string) error
	ListPendingApprovals(ctx context.Context, runID string) ([]approval.Approval, error)

	// Audit
	AppendAudit(ctx context.Context, e *audit.Entry) error
	ListAuditByRun(ctx context.Context, runID string) ([]audit.Entry, error)

	// Memory
	AppendMemory(ctx context.Context, e *memory.Entry) error
	RecentMemory(ctx context.Context, runID, agentID string, limit int) ([]memory.Entry, error)
	RecentMemoryByAgent(ctx context.Context, agentID string, limit int) ([]memory.Entry, error)

	// Settings
	GetSettings(ctx context.Context, projectID string) (*settings.ProjectSetting, error)
	UpsertSettings(ctx context.Context, s *settings.ProjectSetting) error
}
