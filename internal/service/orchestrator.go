package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cfotel "github.com/Strob0t/CrewForge/internal/adapter/otel"
	"github.com/Strob0t/CrewForge/internal/domain/agent"
	"github.com/Strob0t/CrewForge/internal/domain/event"
	"github.com/Strob0t/CrewForge/internal/domain/job"
	"github.com/Strob0t/CrewForge/internal/domain/run"
	"github.com/Strob0t/CrewForge/internal/domain/settings"
	"github.com/Strob0t/CrewForge/internal/domain/task"
	"github.com/Strob0t/CrewForge/internal/port/artifact"
	"github.com/Strob0t/CrewForge/internal/port/database"
	"github.com/Strob0t/CrewForge/internal/port/eventbus"
)

// phases is the fixed delivery pipeline every run walks through.
var phases = []string{"scoping", "planning", "collaborating", "executing", "verifying"}

var phaseEvents = map[string]event.Type{
	"scoping":       event.TypePhaseScoping,
	"planning":      event.TypePhasePlanning,
	"collaborating": event.TypePhaseCollaborating,
	"executing":     event.TypePhaseExecuting,
	"verifying":     event.TypePhaseVerifying,
}

// Verifier checks a run's deliverables during the verifying phase.
// Implementations may run test suites or lint passes against the project
// repository.
type Verifier interface {
	Verify(ctx context.Context, r *run.Run) error
}

// NoopVerifier accepts every run.
type NoopVerifier struct{}

func (NoopVerifier) Verify(context.Context, *run.Run) error { return nil }

// Orchestrator owns run lifecycle: creation, the phased start pipeline via
// the JobEngine, pause and resume, and task intake.
type Orchestrator struct {
	store     database.Store
	engine    *JobEngine
	runtime   *AgentRuntime
	artifacts artifact.Store
	teams     *TeamService
	settings  *SettingsService
	bus       eventbus.Bus
	logger    *slog.Logger
	metrics   *cfotel.Metrics
	verifier  Verifier
}

// NewOrchestrator creates an Orchestrator. metrics may be nil; a nil
// verifier defaults to NoopVerifier.
func NewOrchestrator(store database.Store, engine *JobEngine, runtime *AgentRuntime, artifacts artifact.Store, teams *TeamService, settingsSvc *SettingsService, bus eventbus.Bus, logger *slog.Logger, metrics *cfotel.Metrics, verifier Verifier) *Orchestrator {
	if verifier == nil {
		verifier = NoopVerifier{}
	}
	return &Orchestrator{
		store:     store,
		engine:    engine,
		runtime:   runtime,
		artifacts: artifacts,
		teams:     teams,
		settings:  settingsSvc,
		bus:       bus,
		logger:    logger,
		metrics:   metrics,
		verifier:  verifier,
	}
}

// CreateRun records a new run in the created state.
func (o *Orchestrator) CreateRun(ctx context.Context, req *run.CreateRequest) (*run.Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r := &run.Run{
		ProjectID: req.ProjectID,
		TeamID:    req.TeamID,
		Goal:      req.Goal,
		Status:    run.StatusCreated,
	}
	if err := o.store.CreateRun(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// StartRun moves the run to running and drives it through the delivery
// phases. Safe to call again after a crash: the job create is idempotent
// and completed steps are re-run from their phase handlers, which only
// append chat and artifacts.
func (o *Orchestrator) StartRun(ctx context.Context, runID string) error {
	r, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	ctx, span := cfotel.StartRunSpan(ctx, r.ID, r.ProjectID)
	defer span.End()

	if err := o.store.UpdateRunStatus(ctx, r.ID, run.StatusRunning); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	r.Status = run.StatusRunning
	o.bus.Publish(event.New(event.TypeRunStarted, map[string]any{
		"run_id":  r.ID,
		"team_id": r.TeamID,
		"goal":    r.Goal,
	}))
	if o.metrics != nil {
		o.metrics.RunsStarted.Add(ctx, 1)
	}

	j, err := o.engine.CreateJob(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	if err := o.engine.Run(ctx, j.ID, phases, o.handlers(r)); err != nil {
		if serr := o.store.UpdateRunStatus(ctx, r.ID, run.StatusFailed); serr != nil {
			o.logger.Warn("mark run failed", "run_id", r.ID, "error", serr)
		}
		o.bus.Publish(event.New(event.TypeRunFailed, map[string]any{
			"run_id": r.ID,
			"error":  err.Error(),
		}))
		if o.metrics != nil {
			o.metrics.RunsFailed.Add(ctx, 1)
		}
		return fmt.Errorf("run %s: %w", r.ID, err)
	}
	return o.completeRun(ctx, r)
}

func (o *Orchestrator) completeRun(ctx context.Context, r *run.Run) error {
	if err := o.store.UpdateRunStatus(ctx, r.ID, run.StatusCompleted); err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}
	o.bus.Publish(event.New(event.TypeRunCompleted, map[string]any{"run_id": r.ID}))
	if o.metrics != nil {
		o.metrics.RunsCompleted.Add(ctx, 1)
		o.metrics.RunDuration.Record(ctx, time.Since(r.StartedAt).Seconds())
		if fresh, err := o.store.GetRun(ctx, r.ID); err == nil {
			o.metrics.RunCost.Record(ctx, fresh.CostUSD)
		}
	}
	return nil
}

// PauseRun suspends the run's auto-chat and idle prompting. Pending tasks
// keep executing.
func (o *Orchestrator) PauseRun(ctx context.Context, runID, by string) error {
	if err := o.store.UpdateRunPause(ctx, runID, run.PauseSoft, by); err != nil {
		return err
	}
	o.bus.Publish(event.New(event.TypeRunPaused, map[string]any{"run_id": runID, "by": by}))
	return nil
}

// ResumeRun clears the pause mode.
func (o *Orchestrator) ResumeRun(ctx context.Context, runID string) error {
	if err := o.store.UpdateRunPause(ctx, runID, run.PauseNone, ""); err != nil {
		return err
	}
	o.bus.Publish(event.New(event.TypeRunResumed, map[string]any{"run_id": runID}))
	return nil
}

// CreateTask records a task for the scheduler loops and announces it.
func (o *Orchestrator) CreateTask(ctx context.Context, req *task.CreateRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t := &task.Task{
		RunID:              req.RunID,
		Title:              req.Title,
		Description:        req.Description,
		AcceptanceCriteria: req.AcceptanceCriteria,
		AssignedRole:       req.AssignedRole,
	}
	if err := o.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	o.bus.Publish(event.New(event.TypeTaskCreated, map[string]any{
		"task_id": t.ID,
		"run_id":  t.RunID,
		"title":   t.Title,
	}))
	return t, nil
}

func (o *Orchestrator) handlers(r *run.Run) map[string]StepHandler {
	return map[string]StepHandler{
		"scoping":       o.phase("scoping", r, o.scope),
		"planning":      o.phase("planning", r, o.plan),
		"collaborating": o.phase("collaborating", r, o.introduce),
		"executing":     o.phase("executing", r, o.execute),
		"verifying":     o.phase("verifying", r, o.verify),
	}
}

// phase wraps a handler with the phase announcement and StepResult
// translation the JobEngine expects.
func (o *Orchestrator) phase(name string, r *run.Run, fn func(ctx context.Context, r *run.Run) error) StepHandler {
	return func(ctx context.Context) job.StepResult {
		if t, ok := phaseEvents[name]; ok {
			o.bus.Publish(event.New(t, map[string]any{"run_id": r.ID}))
		}
		if err := fn(ctx, r); err != nil {
			return job.StepResult{Error: err.Error()}
		}
		return job.StepResult{Success: true}
	}
}

func (o *Orchestrator) scope(ctx context.Context, r *run.Run) error {
	manager, _, ps, err := o.cast(ctx, r)
	if err != nil {
		return err
	}
	prompt := o.runtime.BuildPrompt(manager, r, ps, fmt.Sprintf(
		"Summarize the scope of this goal in a few sentences: what is in scope, what is out, and the main risks.\nGoal: %s", r.Goal))
	summary := o.runtime.Respond(ctx, r, manager, prompt)
	o.runtime.Say(ctx, r.ID, manager, summary)
	return o.artifacts.WriteArtifact(r.ID, "scope", map[string]any{
		"goal":    r.Goal,
		"summary": summary,
		"author":  manager.Name(),
	})
}

func (o *Orchestrator) plan(ctx context.Context, r *run.Run) error {
	manager, _, ps, err := o.cast(ctx, r)
	if err != nil {
		return err
	}
	prompt := o.runtime.BuildPrompt(manager, r, ps, fmt.Sprintf(
		"Write a short delivery plan for the goal as a numbered list of steps, naming the role responsible for each.\nGoal: %s", r.Goal))
	plan := o.runtime.Respond(ctx, r, manager, prompt)
	o.runtime.Say(ctx, r.ID, manager, plan)
	if err := o.artifacts.WriteArtifact(r.ID, "plan", map[string]any{
		"goal":   r.Goal,
		"plan":   plan,
		"author": manager.Name(),
	}); err != nil {
		return err
	}

	// Seed the first work item so the loops have something to pick up.
	_, err = o.CreateTask(ctx, &task.CreateRequest{
		RunID:       r.ID,
		Title:       "Deliver: " + firstLine(r.Goal),
		Description: fmt.Sprintf("Work toward the run goal.\nGoal: %s\nPlan:\n%s", r.Goal, plan),
	})
	return err
}

func (o *Orchestrator) introduce(ctx context.Context, r *run.Run) error {
	_, agents, ps, err := o.cast(ctx, r)
	if err != nil {
		return err
	}
	for i := range agents {
		a := &agents[i]
		prompt := o.runtime.BuildPrompt(a, r, ps,
			"Introduce yourself to the team in one or two sentences: your role and how you plan to contribute to the goal.")
		o.runtime.Say(ctx, r.ID, a, o.runtime.Respond(ctx, r, a, prompt))
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run.Run) error {
	_, agents, ps, err := o.cast(ctx, r)
	if err != nil {
		return err
	}
	for i := range agents {
		a := &agents[i]
		prompt := o.runtime.BuildPrompt(a, r, ps, fmt.Sprintf(
			"Begin working toward the goal from your role's perspective. State your first concrete contribution.\nGoal: %s", r.Goal))
		o.runtime.Say(ctx, r.ID, a, o.runtime.Respond(ctx, r, a, prompt))
	}
	return nil
}

func (o *Orchestrator) verify(ctx context.Context, r *run.Run) error {
	return o.verifier.Verify(ctx, r)
}

// cast loads the roster, a manager to lead with, and the project settings.
func (o *Orchestrator) cast(ctx context.Context, r *run.Run) (*agent.Agent, []agent.Agent, *settings.ProjectSetting, error) {
	agents, err := o.teams.Roster(ctx, r.TeamID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load roster: %w", err)
	}
	if len(agents) == 0 {
		return nil, nil, nil, fmt.Errorf("team %s has no agents", r.TeamID)
	}
	manager := agent.PickManager(agents)
	if manager == nil {
		manager = &agents[0]
	}
	return manager, agents, o.settings.Get(ctx, r.ProjectID), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
