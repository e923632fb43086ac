package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cfotel "github.com/Strob0t/CrewForge/internal/adapter/otel"
	"github.com/Strob0t/CrewForge/internal/config"
	"github.com/Strob0t/CrewForge/internal/domain"
	"github.com/Strob0t/CrewForge/internal/domain/agent"
	"github.com/Strob0t/CrewForge/internal/domain/event"
	"github.com/Strob0t/CrewForge/internal/domain/run"
	"github.com/Strob0t/CrewForge/internal/domain/settings"
	"github.com/Strob0t/CrewForge/internal/domain/task"
	"github.com/Strob0t/CrewForge/internal/domain/tool"
	"github.com/Strob0t/CrewForge/internal/port/database"
	"github.com/Strob0t/CrewForge/internal/port/eventbus"
)

const reviewRetryPrefix = "RETRY"

// ManagerLoop handles tasks that need delegation and review: pending tasks
// that are unassigned or addressed to a manager role. It assigns each to the
// best-scoring agent, lets the assignee work, then routes the output through
// a manager for an APPROVED / RETRY verdict.
type ManagerLoop struct {
	store      database.Store
	bus        eventbus.Bus
	runtime    *AgentRuntime
	dispatcher *Dispatcher
	settings   *SettingsService
	teams      *TeamService
	logger     *slog.Logger
	metrics    *cfotel.Metrics
	cfg        config.Scheduler
}

// NewManagerLoop creates a ManagerLoop. metrics may be nil.
func NewManagerLoop(store database.Store, bus eventbus.Bus, runtime *AgentRuntime, dispatcher *Dispatcher, settingsSvc *SettingsService, teams *TeamService, logger *slog.Logger, metrics *cfotel.Metrics, cfg config.Scheduler) *ManagerLoop {
	return &ManagerLoop{
		store:      store,
		bus:        bus,
		runtime:    runtime,
		dispatcher: dispatcher,
		settings:   settingsSvc,
		teams:      teams,
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// Run ticks until the context is canceled. Tick failures are logged, never
// fatal.
func (m *ManagerLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *ManagerLoop) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("manager tick panicked", "panic", r)
		}
	}()

	tasks, err := m.store.ListPendingTasks(ctx, m.cfg.ManagerBatch)
	if err != nil {
		m.logger.Warn("manager list tasks failed", "error", err)
		return
	}
	for i := range tasks {
		if err := m.processTask(ctx, &tasks[i]); err != nil {
			m.logger.Warn("manager task failed", "task_id", tasks[i].ID, "error", err)
		}
	}
}

func (m *ManagerLoop) processTask(ctx context.Context, t *task.Task) error {
	r, err := m.store.GetRun(ctx, t.RunID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	agents, err := m.teams.Roster(ctx, r.TeamID)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	ps := m.settings.Get(ctx, r.ProjectID)

	// The retry limit is enforced before the ownership gate so a task that
	// still carries its claim-time worker role cannot dodge the force-fail.
	if t.Attempts >= ps.RetryLimit() {
		return m.forceFail(ctx, r, t, ps.RetryLimit())
	}

	if !m.ownsTask(agents, t) {
		return nil
	}

	assignee := agent.Assign(agents, t.AssignedRole, t.Title, t.Description)
	if assignee == nil {
		return fmt.Errorf("run %s has no agents", r.ID)
	}

	claimed, err := m.store.ClaimTask(ctx, t.ID, assignee.Role)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil
		}
		return fmt.Errorf("claim task: %w", err)
	}
	if m.metrics != nil {
		m.metrics.TasksClaimed.Add(ctx, 1)
	}
	m.bus.Publish(event.New(event.TypeTaskStarted, map[string]any{
		"task_id": claimed.ID,
		"run_id":  r.ID,
		"agent":   assignee.Name(),
	}))

	output := m.executeTask(ctx, r, assignee, ps, claimed)
	m.runtime.Say(ctx, r.ID, assignee, output)

	return m.review(ctx, r, agents, ps, claimed, assignee, output)
}

// ownsTask reports whether this loop handles the task: unassigned tasks and
// tasks addressed to a manager role belong here, role-addressed worker tasks
// belong to the worker loop.
func (m *ManagerLoop) ownsTask(agents []agent.Agent, t *task.Task) bool {
	if t.AssignedRole == "" {
		return true
	}
	for i := range agents {
		if agents[i].Role == t.AssignedRole {
			return agents[i].IsManager()
		}
	}
	return true
}

func (m *ManagerLoop) executeTask(ctx context.Context, r *run.Run, a *agent.Agent, ps *settings.ProjectSetting, t *task.Task) string {
	taskText := fmt.Sprintf("Task: %s\n%s", t.Title, t.Description)
	if t.AcceptanceCriteria != "" {
		taskText += "\nAcceptance criteria: " + t.AcceptanceCriteria
	}
	prompt := m.runtime.BuildPrompt(a, r, ps, taskText)
	response := m.runtime.Respond(ctx, r, a, prompt)
	if call := tool.ExtractCall(response); call != nil {
		return m.dispatcher.Dispatch(ctx, r, a, ps, "", call)
	}
	return response
}

// review asks a manager for a verdict. A reply starting with RETRY requeues
// the task with its attempt count intact; anything else, including a
// malformed verdict, completes it.
func (m *ManagerLoop) review(ctx context.Context, r *run.Run, agents []agent.Agent, ps *settings.ProjectSetting, t *task.Task, assignee *agent.Agent, output string) error {
	reviewer := agent.PickManager(agents)
	if reviewer == nil || reviewer.ID == assignee.ID {
		return m.complete(ctx, r, t, assignee, output, "")
	}

	prompt := m.runtime.BuildPrompt(reviewer, r, ps, fmt.Sprintf(
		"Review the output below for task %q, produced by %s.\n"+
			"Reply exactly APPROVED if it satisfies the task, or RETRY <reason> if it must be redone.\n\nOutput:\n%s",
		t.Title, assignee.Name(), output))
	verdict := strings.TrimSpace(m.runtime.Respond(ctx, r, reviewer, prompt))
	m.runtime.Say(ctx, r.ID, reviewer, verdict)

	m.bus.Publish(event.New(event.TypeTaskReviewed, map[string]any{
		"task_id":  t.ID,
		"run_id":   r.ID,
		"reviewer": reviewer.Name(),
		"verdict":  verdict,
	}))

	if strings.HasPrefix(verdict, reviewRetryPrefix) {
		reason := strings.TrimSpace(strings.TrimPrefix(verdict, reviewRetryPrefix))
		if err := m.store.RequeueTask(ctx, t.ID); err != nil {
			return fmt.Errorf("requeue task: %w", err)
		}
		m.bus.Publish(event.New(event.TypeTaskRequeued, map[string]any{
			"task_id": t.ID,
			"run_id":  r.ID,
			"reason":  reason,
		}))
		return nil
	}
	return m.complete(ctx, r, t, assignee, output, verdict)
}

func (m *ManagerLoop) complete(ctx context.Context, r *run.Run, t *task.Task, assignee *agent.Agent, output, verdict string) error {
	if err := m.store.CompleteTask(ctx, t.ID); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	payload := map[string]any{
		"task_id": t.ID,
		"run_id":  r.ID,
		"agent":   assignee.Name(),
		"summary": output,
	}
	if verdict != "" {
		payload["verdict"] = verdict
	}
	m.bus.Publish(event.New(event.TypeTaskCompleted, payload))
	return nil
}

func (m *ManagerLoop) forceFail(ctx context.Context, r *run.Run, t *task.Task, limit int) error {
	reason := fmt.Sprintf("max_attempts:%d", limit)
	if err := m.store.FailTask(ctx, t.ID, reason); err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	m.bus.Publish(event.New(event.TypeTaskFailed, map[string]any{
		"task_id": t.ID,
		"run_id":  r.ID,
		"reason":  reason,
	}))
	return nil
}
