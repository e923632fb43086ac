package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Strob0t/CrewForge/internal/adapter/bus"
	"github.com/Strob0t/CrewForge/internal/config"
	"github.com/Strob0t/CrewForge/internal/domain/agent"
	"github.com/Strob0t/CrewForge/internal/domain/project"
	"github.com/Strob0t/CrewForge/internal/domain/run"
	"github.com/Strob0t/CrewForge/internal/git"
)

// env wires the services against the in-memory fakes. Every test gets a
// fresh one.
type env struct {
	store      *fakeStore
	artifacts  *fakeArtifacts
	invoker    *fakeInvoker
	bus        *bus.Bus
	logger     *slog.Logger
	settings   *SettingsService
	teams      *TeamService
	memories   *MemoryService
	runtime    *AgentRuntime
	broker     *ToolBroker
	dispatcher *Dispatcher
	engine     *JobEngine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:     newFakeStore(),
		artifacts: newFakeArtifacts(),
		invoker:   &fakeInvoker{},
		bus:       bus.New(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	e.settings = NewSettingsService(e.store, nil, e.logger)
	e.teams = NewTeamService(e.store, nil, e.logger)
	e.memories = NewMemoryService(e.store, e.bus, e.logger)
	e.runtime = NewAgentRuntime(e.store, e.invoker, e.artifacts, e.memories, e.bus, e.logger, 0.01)
	e.broker = NewToolBroker(e.store, e.bus, e.logger, nil)
	e.dispatcher = NewDispatcher(e.store, e.broker, e.bus, e.logger, git.NewPool(1), e.artifacts, nil)
	e.engine = NewJobEngine(e.store, e.bus, e.logger, 3, time.Second)
	e.engine.sleep = func(context.Context, time.Duration) {}
	return e
}

func schedulerConfig() config.Scheduler {
	return config.Scheduler{
		TickInterval:       time.Second,
		WorkerBatch:        5,
		ManagerBatch:       3,
		IdleCooldown:       3 * time.Minute,
		ChatRepliesPerTick: 2,
	}
}

// seedRun creates a project, a three-agent team, and a running run. The
// roster sorts dev, po, qa by id; Dana is the only engineer and Priya the
// only manager.
func (e *env) seedRun(t *testing.T) *run.Run {
	t.Helper()
	ctx := t.Context()

	p := &project.Project{ID: "project-a", Name: "demo"}
	if err := e.store.CreateProject(ctx, p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	team := &project.Team{ID: "team-a", ProjectID: p.ID, Name: "core"}
	if err := e.store.CreateTeam(ctx, team); err != nil {
		t.Fatalf("create team: %v", err)
	}
	for _, a := range []agent.Agent{
		{ID: "dev", TeamID: team.ID, DisplayName: "Dana", Role: "Developer", Provider: "litellm", Model: "gpt-4o"},
		{ID: "po", TeamID: team.ID, DisplayName: "Priya", Role: "Product Owner", Provider: "litellm", Model: "gpt-4o"},
		{ID: "qa", TeamID: team.ID, DisplayName: "Quentin", Role: "QA Engineer", Provider: "litellm", Model: "gpt-4o"},
	} {
		cp := a
		if err := e.store.CreateAgent(ctx, &cp); err != nil {
			t.Fatalf("create agent: %v", err)
		}
	}

	r := &run.Run{ProjectID: p.ID, TeamID: team.ID, Goal: "Ship the demo", Status: run.StatusRunning}
	if err := e.store.CreateRun(ctx, r); err != nil {
		t.Fatalf("create run: %v", err)
	}
	return r
}

func (e *env) agentByID(t *testing.T, id string) *agent.Agent {
	t.Helper()
	a, err := e.store.GetAgent(t.Context(), id)
	if err != nil {
		t.Fatalf("get agent %s: %v", id, err)
	}
	return a
}
