package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/CrewForge/internal/domain"
	"github.com/Strob0t/CrewForge/internal/domain/agent"
	"github.com/Strob0t/CrewForge/internal/domain/approval"
	"github.com/Strob0t/CrewForge/internal/domain/audit"
	"github.com/Strob0t/CrewForge/internal/domain/chat"
	"github.com/Strob0t/CrewForge/internal/domain/event"
	"github.com/Strob0t/CrewForge/internal/domain/job"
	"github.com/Strob0t/CrewForge/internal/domain/memory"
	"github.com/Strob0t/CrewForge/internal/domain/project"
	"github.com/Strob0t/CrewForge/internal/domain/run"
	"github.com/Strob0t/CrewForge/internal/domain/settings"
	"github.com/Strob0t/CrewForge/internal/domain/task"
	"github.com/Strob0t/CrewForge/internal/port/provider"
)

// fakeStore is an in-memory database.Store for service tests. It applies the
// same transition rules the SQL store enforces (claim conflicts, decided
// approvals) so the loops can be tested without Postgres.
type fakeStore struct {
	mu        sync.Mutex
	seq       int
	projects  map[string]*project.Project
	teams     map[string]*project.Team
	budgets   map[string]*project.Budget // by project id
	agents    map[string]*agent.Agent
	runs      map[string]*run.Run
	jobs      map[string]*job.Job
	steps     map[string]*job.Step
	jobEvents []job.Event
	tasks     map[string]*task.Task
	taskOrder []string
	approvals map[string]*approval.Approval
	audits    []audit.Entry
	memories  []memory.Entry
	settings  map[string]*settings.ProjectSetting // by project id
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects:  make(map[string]*project.Project),
		teams:     make(map[string]*project.Team),
		budgets:   make(map[string]*project.Budget),
		agents:    make(map[string]*agent.Agent),
		runs:      make(map[string]*run.Run),
		jobs:      make(map[string]*job.Job),
		steps:     make(map[string]*job.Step),
		tasks:     make(map[string]*task.Task),
		approvals: make(map[string]*approval.Approval),
		settings:  make(map[string]*settings.ProjectSetting),
	}
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// --- Projects and teams ---

func (s *fakeStore) GetProject(_ context.Context, id string) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) CreateProject(_ context.Context, p *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = s.nextID("project")
	}
	p.CreatedAt = time.Now()
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *fakeStore) GetTeam(_ context.Context, id string) (*project.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", id, domain.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) CreateTeam(_ context.Context, t *project.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = s.nextID("team")
	}
	cp := *t
	s.teams[t.ID] = &cp
	return nil
}

func (s *fakeStore) GetBudget(_ context.Context, projectID string) (*project.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[projectID]
	if !ok {
		return nil, fmt.Errorf("budget for %s: %w", projectID, domain.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (s *fakeStore) UpsertBudget(_ context.Context, b *project.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.budgets[b.ProjectID]; ok {
		existing.LimitUSD = b.LimitUSD
		b.SpentUSD = existing.SpentUSD
		b.ID = existing.ID
		return nil
	}
	if b.ID == "" {
		b.ID = s.nextID("budget")
	}
	cp := *b
	s.budgets[b.ProjectID] = &cp
	return nil
}

func (s *fakeStore) AddBudgetSpend(_ context.Context, projectID string, usd float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.budgets[projectID]; ok {
		b.SpentUSD += usd
	}
	return nil
}

// --- Agents ---

func (s *fakeStore) ListAgents(_ context.Context, teamID string) ([]agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []agent.Agent
	for _, a := range s.agents {
		if a.TeamID == teamID {
			out = append(out, *a)
		}
	}
	// Stable order by id for deterministic tests.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].ID < out[i].ID {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *fakeStore) GetAgent(_ context.Context, id string) (*agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) CreateAgent(_ context.Context, a *agent.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = s.nextID("agent")
	}
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateAgentScopes(_ context.Context, id, scopes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.agents[id]; ok {
		a.Scopes = scopes
	}
	return nil
}

func (s *fakeStore) UpdateAgentMemorySummary(_ context.Context, id, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.agents[id]; ok {
		a.MemorySummary = summary
	}
	return nil
}

// --- Runs ---

func (s *fakeStore) GetRun(_ context.Context, id string) (*run.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) LatestRunForProject(_ context.Context, projectID string) (*run.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *run.Run
	for _, r := range s.runs {
		if r.ProjectID != projectID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("latest run for %s: %w", projectID, domain.ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

func (s *fakeStore) ListActiveRuns(_ context.Context) ([]run.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []run.Run
	for _, r := range s.runs {
		if r.Status == run.StatusRunning {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateRun(_ context.Context, r *run.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = s.nextID("run")
	}
	now := time.Now()
	r.CreatedAt = now
	r.StartedAt = now
	cp := *r
	s.runs[r.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateRunStatus(_ context.Context, id string, status run.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	r.Status = status
	return nil
}

func (s *fakeStore) UpdateRunPause(_ context.Context, id string, mode run.PauseMode, by string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	r.PauseMode = mode
	r.PausedBy = by
	return nil
}

// --- Jobs ---

func (s *fakeStore) GetJob(_ context.Context, id string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (s *fakeStore) GetJobByRun(_ context.Context, runID string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.RunID == runID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("job for run %s: %w", runID, domain.ErrNotFound)
}

func (s *fakeStore) CreateJob(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == "" {
		j.ID = s.nextID("job")
	}
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateJob(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *fakeStore) CreateJobStep(_ context.Context, st *job.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == "" {
		st.ID = s.nextID("step")
	}
	cp := *st
	s.steps[st.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateJobStep(_ context.Context, st *job.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.steps[st.ID] = &cp
	return nil
}

func (s *fakeStore) AppendJobEvent(_ context.Context, e *job.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = s.nextID("jobevent")
	}
	s.jobEvents = append(s.jobEvents, *e)
	return nil
}

func (s *fakeStore) ListJobSteps(_ context.Context, jobID string) ([]job.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []job.Step
	for _, st := range s.steps {
		if st.JobID == jobID {
			out = append(out, *st)
		}
	}
	return out, nil
}

// --- Tasks ---

func (s *fakeStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) ListPendingTasks(_ context.Context, limit int) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []task.Task
	for _, id := range s.taskOrder {
		t := s.tasks[id]
		if t.Status != task.StatusPending {
			continue
		}
		out = append(out, *t)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) ListTasksByRun(_ context.Context, runID string) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []task.Task
	for _, id := range s.taskOrder {
		if s.tasks[id].RunID == runID {
			out = append(out, *s.tasks[id])
		}
	}
	return out, nil
}

func (s *fakeStore) CreateTask(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = s.nextID("task")
	}
	if t.Status == "" {
		t.Status = task.StatusPending
	}
	t.CreatedAt = time.Now()
	cp := *t
	s.tasks[t.ID] = &cp
	s.taskOrder = append(s.taskOrder, t.ID)
	return nil
}

func (s *fakeStore) ClaimTask(_ context.Context, id, assignedRole string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != task.StatusPending {
		return nil, fmt.Errorf("claim task %s: %w", id, domain.ErrConflict)
	}
	t.Status = task.StatusInProgress
	t.AssignedRole = assignedRole
	t.Attempts++
	cp := *t
	return &cp, nil
}

func (s *fakeStore) CompleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.Status = task.StatusCompleted
	}
	return nil
}

func (s *fakeStore) FailTask(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.Status = task.StatusFailed
		t.FailureReason = reason
	}
	return nil
}

func (s *fakeStore) RequeueTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.Status = task.StatusPending
		t.AssignedRole = ""
	}
	return nil
}

// --- Approvals ---

func (s *fakeStore) GetApproval(_ context.Context, id string) (*approval.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[id]
	if !ok {
		return nil, fmt.Errorf("approval %s: %w", id, domain.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) CreateApproval(_ context.Context, a *approval.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = s.nextID("approval")
	}
	cp := *a
	s.approvals[a.ID] = &cp
	return nil
}

func (s *fakeStore) DecideApproval(_ context.Context, id string, status approval.Status, decidedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[id]
	if !ok || a.Status != approval.StatusPending {
		return fmt.Errorf("decide approval %s: %w", id, domain.ErrConflict)
	}
	a.Status = status
	a.DecidedBy = decidedBy
	now := time.Now()
	a.DecidedAt = &now
	return nil
}

func (s *fakeStore) ListPendingApprovals(_ context.Context, runID string) ([]approval.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []approval.Approval
	for _, a := range s.approvals {
		if a.RunID == runID && a.Status == approval.StatusPending {
			out = append(out, *a)
		}
	}
	return out, nil
}

// --- Audit ---

func (s *fakeStore) AppendAudit(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = s.nextID("audit")
	}
	e.CreatedAt = time.Now()
	s.audits = append(s.audits, *e)
	return nil
}

func (s *fakeStore) ListAuditByRun(_ context.Context, runID string) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Entry
	for _, e := range s.audits {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- Memory ---

func (s *fakeStore) AppendMemory(_ context.Context, e *memory.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = s.nextID("memory")
	}
	e.Content = memory.Cap(e.Content)
	e.CreatedAt = time.Now()
	s.memories = append(s.memories, *e)
	return nil
}

func (s *fakeStore) RecentMemory(_ context.Context, runID, agentID string, limit int) ([]memory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.Entry
	for i := len(s.memories) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.memories[i]
		if e.RunID == runID && e.AgentID == agentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) RecentMemoryByAgent(_ context.Context, agentID string, limit int) ([]memory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.Entry
	for i := len(s.memories) - 1; i >= 0 && len(out) < limit; i-- {
		if s.memories[i].AgentID == agentID {
			out = append(out, s.memories[i])
		}
	}
	return out, nil
}

// --- Settings ---

func (s *fakeStore) GetSettings(_ context.Context, projectID string) (*settings.ProjectSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.settings[projectID]
	if !ok {
		return nil, fmt.Errorf("settings for %s: %w", projectID, domain.ErrNotFound)
	}
	cp := *ps
	return &cp, nil
}

func (s *fakeStore) UpsertSettings(_ context.Context, ps *settings.ProjectSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ps.ID == "" {
		ps.ID = s.nextID("settings")
	}
	cp := *ps
	s.settings[ps.ProjectID] = &cp
	return nil
}

// fakeInvoker returns scripted responses in order, then repeats the last.
type fakeInvoker struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (f *fakeInvoker) Invoke(_ context.Context, _, _ string, req provider.Request) (*provider.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &provider.Response{Content: "ok"}, nil
	}
	content := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return &provider.Response{Content: content}, nil
}

// fakeArtifacts is an in-memory artifact.Store.
type fakeArtifacts struct {
	mu        sync.Mutex
	chats     map[string][]chat.Message // by run id
	events    map[string][]event.Event
	artifacts map[string]map[string]map[string]any
	snapshots map[string]string
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{
		chats:     make(map[string][]chat.Message),
		events:    make(map[string][]event.Event),
		artifacts: make(map[string]map[string]map[string]any),
		snapshots: make(map[string]string),
	}
}

func (f *fakeArtifacts) WriteChat(runID, _ string, msg chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats[runID] = append(f.chats[runID], msg)
	return nil
}

func (f *fakeArtifacts) WriteEvent(runID string, ev event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[runID] = append(f.events[runID], ev)
	return nil
}

func (f *fakeArtifacts) ReadChats(runID string) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chat.Message, len(f.chats[runID]))
	copy(out, f.chats[runID])
	return out, nil
}

func (f *fakeArtifacts) WriteArtifact(runID, name string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.artifacts[runID] == nil {
		f.artifacts[runID] = make(map[string]map[string]any)
	}
	f.artifacts[runID][name] = payload
	return nil
}

func (f *fakeArtifacts) WriteSnapshot(runID, filePath, contents string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[runID+":"+filePath] = contents
	return nil
}

// fakeCache is a map-backed cache.Cache.
type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}
