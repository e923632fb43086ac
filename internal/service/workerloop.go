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
	"github.com/Strob0t/CrewForge/internal/domain/chat"
	"github.com/Strob0t/CrewForge/internal/domain/event"
	"github.com/Strob0t/CrewForge/internal/domain/run"
	"github.com/Strob0t/CrewForge/internal/domain/settings"
	"github.com/Strob0t/CrewForge/internal/domain/task"
	"github.com/Strob0t/CrewForge/internal/domain/tool"
	"github.com/Strob0t/CrewForge/internal/port/artifact"
	"github.com/Strob0t/CrewForge/internal/port/database"
	"github.com/Strob0t/CrewForge/internal/port/eventbus"
)

// seenCacheCap bounds the worker's seen-message cache per process.
const seenCacheCap = 200

// noResponse is the protocol token an agent answers when a chat message
// needs no reply from it.
const noResponse = "NO_RESPONSE"

// idleNudgeTitle is the manager task created when enough agents sit idle.
const idleNudgeTitle = "Assign work to idle team members"

// WorkerLoop polls for pending tasks and executes them with worker agents.
// It also keeps conversation alive: idle prompting and chat fan-out for
// every running, unpaused run. All bookkeeping maps are owned by the loop
// and touched from its goroutine only.
type WorkerLoop struct {
	store      database.Store
	artifacts  artifact.Store
	bus        eventbus.Bus
	runtime    *AgentRuntime
	dispatcher *Dispatcher
	settings   *SettingsService
	teams      *TeamService
	logger     *slog.Logger
	metrics    *cfotel.Metrics
	cfg        config.Scheduler

	idlePrompted map[string]time.Time // agent id -> last idle nudge
	lastNudge    map[string]time.Time // run id -> last manager "assign work" task
	seen         map[string]bool      // message ids already fanned out
	seenOrder    []string

	now func() time.Time
}

// NewWorkerLoop creates a WorkerLoop. metrics may be nil.
func NewWorkerLoop(store database.Store, artifacts artifact.Store, bus eventbus.Bus, runtime *AgentRuntime, dispatcher *Dispatcher, settingsSvc *SettingsService, teams *TeamService, logger *slog.Logger, metrics *cfotel.Metrics, cfg config.Scheduler) *WorkerLoop {
	return &WorkerLoop{
		store:        store,
		artifacts:    artifacts,
		bus:          bus,
		runtime:      runtime,
		dispatcher:   dispatcher,
		settings:     settingsSvc,
		teams:        teams,
		logger:       logger,
		metrics:      metrics,
		cfg:          cfg,
		idlePrompted: make(map[string]time.Time),
		lastNudge:    make(map[string]time.Time),
		seen:         make(map[string]bool),
		now:          time.Now,
	}
}

// Run ticks until the context is canceled. The loop itself never dies: every
// tick failure is logged and the next tick proceeds.
func (w *WorkerLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *WorkerLoop) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Warn("worker tick panicked", "panic", r)
		}
	}()

	if err := w.processTasks(ctx); err != nil {
		w.logger.Warn("worker task pass failed", "error", err)
	}
	if err := w.tendRuns(ctx); err != nil {
		w.logger.Warn("worker chat pass failed", "error", err)
	}
}

// processTasks claims up to the batch of pending tasks in creation order and
// executes each with a worker agent. Per-task failures are logged and do not
// stop the batch.
func (w *WorkerLoop) processTasks(ctx context.Context) error {
	tasks, err := w.store.ListPendingTasks(ctx, w.cfg.WorkerBatch)
	if err != nil {
		return fmt.Errorf("list pending tasks: %w", err)
	}
	for i := range tasks {
		if err := w.processTask(ctx, &tasks[i]); err != nil {
			w.logger.Warn("worker task failed", "task_id", tasks[i].ID, "error", err)
		}
	}
	return nil
}

func (w *WorkerLoop) processTask(ctx context.Context, t *task.Task) error {
	r, err := w.store.GetRun(ctx, t.RunID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	agents, err := w.teams.Roster(ctx, r.TeamID)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	ps := w.settings.Get(ctx, r.ProjectID)

	// Claiming increments attempts, so a task already at the limit is failed
	// here instead of being run one extra time.
	if t.Attempts >= ps.RetryLimit() {
		return w.forceFail(ctx, r, t, ps.RetryLimit())
	}

	worker := agent.PickWorker(agents, t.AssignedRole)
	if worker == nil {
		return fmt.Errorf("run %s has no agents", r.ID)
	}

	claimed, err := w.store.ClaimTask(ctx, t.ID, worker.Role)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Another loop won the claim.
			return nil
		}
		return fmt.Errorf("claim task: %w", err)
	}
	if w.metrics != nil {
		w.metrics.TasksClaimed.Add(ctx, 1)
	}
	w.bus.Publish(event.New(event.TypeTaskStarted, map[string]any{
		"task_id": claimed.ID,
		"run_id":  r.ID,
		"agent":   worker.Name(),
	}))

	summary := w.executeWithAgent(ctx, r, worker, ps, claimed)
	w.runtime.Say(ctx, r.ID, worker, summary)

	if err := w.store.CompleteTask(ctx, claimed.ID); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	w.bus.Publish(event.New(event.TypeTaskCompleted, map[string]any{
		"task_id": claimed.ID,
		"run_id":  r.ID,
		"agent":   worker.Name(),
		"summary": summary,
	}))
	return nil
}

// executeWithAgent invokes the agent on the task and routes any inline tool
// call through the dispatcher. The returned text is the task summary: the
// model's prose, or the tool outcome (including blocked-tool text).
func (w *WorkerLoop) executeWithAgent(ctx context.Context, r *run.Run, a *agent.Agent, ps *settings.ProjectSetting, t *task.Task) string {
	taskText := fmt.Sprintf("Task: %s\n%s", t.Title, t.Description)
	if t.AcceptanceCriteria != "" {
		taskText += "\nAcceptance criteria: " + t.AcceptanceCriteria
	}

	prompt := w.runtime.BuildPrompt(a, r, ps, taskText)
	response := w.runtime.Respond(ctx, r, a, prompt)

	if call := tool.ExtractCall(response); call != nil {
		return w.dispatcher.Dispatch(ctx, r, a, ps, "", call)
	}
	return response
}

func (w *WorkerLoop) forceFail(ctx context.Context, r *run.Run, t *task.Task, limit int) error {
	reason := fmt.Sprintf("max_attempts:%d", limit)
	if err := w.store.FailTask(ctx, t.ID, reason); err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	w.bus.Publish(event.New(event.TypeTaskFailed, map[string]any{
		"task_id": t.ID,
		"run_id":  r.ID,
		"reason":  reason,
	}))
	return nil
}

// tendRuns performs the auxiliary duties for every running run: chat fan-out
// and idle prompting. Paused runs are skipped entirely: the pause mode
// silences auto-chat while task claiming continues.
func (w *WorkerLoop) tendRuns(ctx context.Context) error {
	runs, err := w.store.ListActiveRuns(ctx)
	if err != nil {
		return fmt.Errorf("list active runs: %w", err)
	}
	for i := range runs {
		r := &runs[i]
		if r.Paused() {
			continue
		}
		msgs, err := w.artifacts.ReadChats(r.ID)
		if err != nil {
			w.logger.Warn("read chat log", "run_id", r.ID, "error", err)
			continue
		}
		w.fanOutChat(ctx, r, msgs)
		w.promptIdle(ctx, r, msgs)
	}
	return nil
}

// fanOutChat delivers unseen chat messages to their resolved targets and
// lets each decide whether to reply. Replies are capped per agent per tick
// and an agent never replies to itself.
func (w *WorkerLoop) fanOutChat(ctx context.Context, r *run.Run, msgs []chat.Message) {
	agents, err := w.teams.Roster(ctx, r.TeamID)
	if err != nil {
		w.logger.Warn("load roster for chat", "run_id", r.ID, "error", err)
		return
	}
	ps := w.settings.Get(ctx, r.ProjectID)
	policy := chat.TargetPolicy(ps.ChatTargetPolicy)

	replies := make(map[string]int)
	for i := range msgs {
		msg := &msgs[i]
		if msg.MessageID == "" || w.seen[msg.MessageID] {
			continue
		}
		w.markSeen(msg.MessageID)

		for _, target := range chat.ResolveTargets(agents, msg.Content, policy) {
			if target.Name() == msg.Agent {
				continue
			}
			if replies[target.ID] >= w.cfg.ChatRepliesPerTick {
				continue
			}
			replies[target.ID]++
			w.reply(ctx, r, target, ps, msg)
		}
	}
}

func (w *WorkerLoop) reply(ctx context.Context, r *run.Run, target agent.Agent, ps *settings.ProjectSetting, msg *chat.Message) {
	prompt := w.runtime.BuildPrompt(&target, r, ps, fmt.Sprintf(
		"New chat message from %s: %q\nReply briefly if you have something to add. If no reply is needed, answer exactly %s.",
		msg.Agent, msg.Content, noResponse))
	response := w.runtime.Respond(ctx, r, &target, prompt)
	if strings.Contains(response, noResponse) {
		return
	}
	if call := tool.ExtractCall(response); call != nil {
		response = w.dispatcher.Dispatch(ctx, r, &target, ps, "", call)
	}
	w.runtime.Say(ctx, r.ID, &target, response)
}

// promptIdle nudges non-manager agents that have been silent past the
// cooldown, and rate-limits a manager "assign work" task per run when more
// than one agent idles at once.
func (w *WorkerLoop) promptIdle(ctx context.Context, r *run.Run, msgs []chat.Message) {
	agents, err := w.teams.Roster(ctx, r.TeamID)
	if err != nil {
		w.logger.Warn("load roster for idle pass", "run_id", r.ID, "error", err)
		return
	}
	ps := w.settings.Get(ctx, r.ProjectID)

	lastSpoke := make(map[string]time.Time)
	for i := range msgs {
		if ts, err := time.Parse(time.RFC3339Nano, msgs[i].Timestamp); err == nil {
			lastSpoke[msgs[i].Agent] = ts
		}
	}

	now := w.now()
	idle := 0
	for i := range agents {
		a := &agents[i]
		if a.IsManager() {
			continue
		}
		if spoke, ok := lastSpoke[a.Name()]; ok && now.Sub(spoke) < w.cfg.IdleCooldown {
			continue
		}
		if nudged, ok := w.idlePrompted[a.ID]; ok && now.Sub(nudged) < w.cfg.IdleCooldown {
			continue
		}
		w.idlePrompted[a.ID] = now
		idle++

		prompt := w.runtime.BuildPrompt(a, r, ps,
			"You have been quiet for a while. Briefly announce what you are working on or what you could pick up next. "+
				"If you are waiting on someone, say so. Answer exactly "+noResponse+" to stay silent.")
		response := w.runtime.Respond(ctx, r, a, prompt)
		if strings.Contains(response, noResponse) {
			continue
		}
		w.runtime.Say(ctx, r.ID, a, response)
	}

	if idle < 2 {
		return
	}
	if last, ok := w.lastNudge[r.ID]; ok && now.Sub(last) < w.cfg.IdleCooldown {
		return
	}
	manager := agent.PickManager(agents)
	if manager == nil {
		return
	}
	w.lastNudge[r.ID] = now
	nudge := &task.Task{
		RunID:        r.ID,
		Title:        idleNudgeTitle,
		Description:  fmt.Sprintf("%d team members reported no active work. Review the chat and create or assign tasks.", idle),
		AssignedRole: manager.Role,
	}
	if err := w.store.CreateTask(ctx, nudge); err != nil {
		w.logger.Warn("create idle nudge task", "run_id", r.ID, "error", err)
		return
	}
	w.bus.Publish(event.New(event.TypeTaskCreated, map[string]any{
		"task_id": nudge.ID,
		"run_id":  r.ID,
		"title":   nudge.Title,
	}))
}

// markSeen records a processed message id, evicting oldest-first at the cap.
func (w *WorkerLoop) markSeen(id string) {
	w.seen[id] = true
	w.seenOrder = append(w.seenOrder, id)
	for len(w.seenOrder) > seenCacheCap {
		delete(w.seen, w.seenOrder[0])
		w.seenOrder = w.seenOrder[1:]
	}
}
