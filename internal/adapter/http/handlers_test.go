package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	cfhttp "github.com/Strob0t/CrewForge/internal/adapter/http"
	"github.com/Strob0t/CrewForge/internal/adapter/bus"
	"github.com/Strob0t/CrewForge/internal/domain"
	"github.com/Strob0t/CrewForge/internal/domain/agent"
	"github.com/Strob0t/CrewForge/internal/domain/approval"
	"github.com/Strob0t/CrewForge/internal/domain/audit"
	"github.com/Strob0t/CrewForge/internal/domain/job"
	"github.com/Strob0t/CrewForge/internal/domain/memory"
	"github.com/Strob0t/CrewForge/internal/domain/project"
	"github.com/Strob0t/CrewForge/internal/domain/run"
	"github.com/Strob0t/CrewForge/internal/domain/settings"
	"github.com/Strob0t/CrewForge/internal/domain/task"
	"github.com/Strob0t/CrewForge/internal/service"
)

// mockStore implements database.Store for handler tests.
type mockStore struct {
	seq       int
	projects  map[string]*project.Project
	teams     map[string]*project.Team
	budgets   map[string]*project.Budget
	agents    map[string]*agent.Agent
	agentSeq  []string
	runs      map[string]*run.Run
	tasks     map[string]*task.Task
	taskSeq   []string
	approvals map[string]*approval.Approval
	audits    []audit.Entry
	settings  map[string]*settings.ProjectSetting
}

func newMockStore() *mockStore {
	return &mockStore{
		projects:  make(map[string]*project.Project),
		teams:     make(map[string]*project.Team),
		budgets:   make(map[string]*project.Budget),
		agents:    make(map[string]*agent.Agent),
		runs:      make(map[string]*run.Run),
		tasks:     make(map[string]*task.Task),
		approvals: make(map[string]*approval.Approval),
		settings:  make(map[string]*settings.ProjectSetting),
	}
}

func (m *mockStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *mockStore) GetProject(_ context.Context, id string) (*project.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (m *mockStore) CreateProject(_ context.Context, p *project.Project) error {
	if p.ID == "" {
		p.ID = m.nextID("project")
	}
	p.CreatedAt = time.Now()
	m.projects[p.ID] = p
	return nil
}

func (m *mockStore) GetTeam(_ context.Context, id string) (*project.Team, error) {
	t, ok := m.teams[id]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

func (m *mockStore) CreateTeam(_ context.Context, t *project.Team) error {
	if t.ID == "" {
		t.ID = m.nextID("team")
	}
	m.teams[t.ID] = t
	return nil
}

func (m *mockStore) GetBudget(_ context.Context, projectID string) (*project.Budget, error) {
	b, ok := m.budgets[projectID]
	if !ok {
		return nil, fmt.Errorf("budget for %s: %w", projectID, domain.ErrNotFound)
	}
	return b, nil
}

func (m *mockStore) UpsertBudget(_ context.Context, b *project.Budget) error {
	if existing, ok := m.budgets[b.ProjectID]; ok {
		existing.LimitUSD = b.LimitUSD
		b.SpentUSD = existing.SpentUSD
		b.ID = existing.ID
		return nil
	}
	if b.ID == "" {
		b.ID = m.nextID("budget")
	}
	m.budgets[b.ProjectID] = b
	return nil
}

func (m *mockStore) AddBudgetSpend(_ context.Context, projectID string, usd float64) error {
	if b, ok := m.budgets[projectID]; ok {
		b.SpentUSD += usd
	}
	return nil
}

func (m *mockStore) ListAgents(_ context.Context, teamID string) ([]agent.Agent, error) {
	var out []agent.Agent
	for _, id := range m.agentSeq {
		if a := m.agents[id]; a.TeamID == teamID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockStore) GetAgent(_ context.Context, id string) (*agent.Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

func (m *mockStore) CreateAgent(_ context.Context, a *agent.Agent) error {
	if a.ID == "" {
		a.ID = m.nextID("agent")
	}
	m.agents[a.ID] = a
	m.agentSeq = append(m.agentSeq, a.ID)
	return nil
}

func (m *mockStore) UpdateAgentScopes(_ context.Context, id, scopes string) error {
	a, ok := m.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	a.Scopes = scopes
	return nil
}

func (m *mockStore) UpdateAgentMemorySummary(_ context.Context, id, summary string) error {
	a, ok := m.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	a.MemorySummary = summary
	return nil
}

func (m *mockStore) GetRun(_ context.Context, id string) (*run.Run, error) {
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

func (m *mockStore) LatestRunForProject(_ context.Context, projectID string) (*run.Run, error) {
	for _, r := range m.runs {
		if r.ProjectID == projectID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("run for %s: %w", projectID, domain.ErrNotFound)
}

func (m *mockStore) ListActiveRuns(_ context.Context) ([]run.Run, error) {
	var out []run.Run
	for _, r := range m.runs {
		if r.Status == run.StatusRunning {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockStore) CreateRun(_ context.Context, r *run.Run) error {
	if r.ID == "" {
		r.ID = m.nextID("run")
	}
	r.CreatedAt = time.Now()
	m.runs[r.ID] = r
	return nil
}

func (m *mockStore) UpdateRunStatus(_ context.Context, id string, status run.Status) error {
	r, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	r.Status = status
	return nil
}

func (m *mockStore) UpdateRunPause(_ context.Context, id string, mode run.PauseMode, by string) error {
	r, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	r.PauseMode = mode
	r.PausedBy = by
	return nil
}

func (m *mockStore) GetJob(_ context.Context, id string) (*job.Job, error) {
	return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
}

func (m *mockStore) GetJobByRun(_ context.Context, runID string) (*job.Job, error) {
	return nil, fmt.Errorf("job for run %s: %w", runID, domain.ErrNotFound)
}

func (m *mockStore) CreateJob(_ context.Context, _ *job.Job) error      { return nil }
func (m *mockStore) UpdateJob(_ context.Context, _ *job.Job) error      { return nil }
func (m *mockStore) CreateJobStep(_ context.Context, _ *job.Step) error { return nil }
func (m *mockStore) UpdateJobStep(_ context.Context, _ *job.Step) error { return nil }
func (m *mockStore) AppendJobEvent(_ context.Context, _ *job.Event) error {
	return nil
}

func (m *mockStore) ListJobSteps(_ context.Context, _ string) ([]job.Step, error) {
	return nil, nil
}

func (m *mockStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

func (m *mockStore) ListPendingTasks(_ context.Context, limit int) ([]task.Task, error) {
	var out []task.Task
	for _, id := range m.taskSeq {
		if len(out) == limit {
			break
		}
		if t := m.tasks[id]; t.Status == task.StatusPending {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockStore) ListTasksByRun(_ context.Context, runID string) ([]task.Task, error) {
	var out []task.Task
	for _, id := range m.taskSeq {
		if t := m.tasks[id]; t.RunID == runID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockStore) CreateTask(_ context.Context, t *task.Task) error {
	if t.ID == "" {
		t.ID = m.nextID("task")
	}
	if t.Status == "" {
		t.Status = task.StatusPending
	}
	m.tasks[t.ID] = t
	m.taskSeq = append(m.taskSeq, t.ID)
	return nil
}

func (m *mockStore) ClaimTask(_ context.Context, id, assignedRole string) (*task.Task, error) {
	t, ok := m.tasks[id]
	if !ok || t.Status != task.StatusPending {
		return nil, fmt.Errorf("claim task %s: %w", id, domain.ErrConflict)
	}
	t.Status = task.StatusInProgress
	t.AssignedRole = assignedRole
	t.Attempts++
	return t, nil
}

func (m *mockStore) CompleteTask(_ context.Context, id string) error {
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	t.Status = task.StatusCompleted
	return nil
}

func (m *mockStore) FailTask(_ context.Context, id, reason string) error {
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	t.Status = task.StatusFailed
	t.FailureReason = reason
	return nil
}

func (m *mockStore) RequeueTask(_ context.Context, id string) error {
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	t.Status = task.StatusPending
	return nil
}

func (m *mockStore) GetApproval(_ context.Context, id string) (*approval.Approval, error) {
	a, ok := m.approvals[id]
	if !ok {
		return nil, fmt.Errorf("approval %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

func (m *mockStore) CreateApproval(_ context.Context, a *approval.Approval) error {
	if a.ID == "" {
		a.ID = m.nextID("approval")
	}
	m.approvals[a.ID] = a
	return nil
}

func (m *mockStore) DecideApproval(_ context.Context, id string, status approval.Status, decidedBy string) error {
	a, ok := m.approvals[id]
	if !ok || a.Status != approval.StatusPending {
		return fmt.Errorf("decide approval %s: %w", id, domain.ErrConflict)
	}
	a.Status = status
	a.DecidedBy = decidedBy
	now := time.Now()
	a.DecidedAt = &now
	return nil
}

func (m *mockStore) ListPendingApprovals(_ context.Context, runID string) ([]approval.Approval, error) {
	var out []approval.Approval
	for _, a := range m.approvals {
		if a.RunID == runID && a.Status == approval.StatusPending {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockStore) AppendAudit(_ context.Context, e *audit.Entry) error {
	m.audits = append(m.audits, *e)
	return nil
}

func (m *mockStore) ListAuditByRun(_ context.Context, runID string) ([]audit.Entry, error) {
	var out []audit.Entry
	for _, e := range m.audits {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) AppendMemory(_ context.Context, _ *memory.Entry) error { return nil }

func (m *mockStore) RecentMemory(_ context.Context, _, _ string, _ int) ([]memory.Entry, error) {
	return nil, nil
}

func (m *mockStore) RecentMemoryByAgent(_ context.Context, _ string, _ int) ([]memory.Entry, error) {
	return nil, nil
}

func (m *mockStore) GetSettings(_ context.Context, projectID string) (*settings.ProjectSetting, error) {
	ps, ok := m.settings[projectID]
	if !ok {
		return nil, fmt.Errorf("settings for %s: %w", projectID, domain.ErrNotFound)
	}
	return ps, nil
}

func (m *mockStore) UpsertSettings(_ context.Context, ps *settings.ProjectSetting) error {
	if ps.ID == "" {
		ps.ID = m.nextID("settings")
	}
	m.settings[ps.ProjectID] = ps
	return nil
}

// newRouter wires handlers against the mock store with real services. The
// chat service stays nil, so chat tests cover validation paths only.
func newRouter(store *mockStore) chi.Router {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := bus.New()

	settingsSvc := service.NewSettingsService(store, nil, log)
	teams := service.NewTeamService(store, nil, log)
	approvals := service.NewApprovalService(store, b, log)
	orch := service.NewOrchestrator(store, nil, nil, nil, teams, settingsSvc, b, log, nil, nil)

	h := &cfhttp.Handlers{
		Store:        store,
		Orchestrator: orch,
		Approvals:    approvals,
		Settings:     settingsSvc,
		Teams:        teams,
		Logger:       log,
	}

	r := chi.NewRouter()
	cfhttp.MountRoutes(r, h, func(http.ResponseWriter, *http.Request) {})
	return r
}

func doRequest(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		buf = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		buf = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodGet, "/healthz", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %q", body["status"])
	}
}

func TestCreateAndGetProject(t *testing.T) {
	r := newRouter(newMockStore())

	rec := doRequest(t, r, http.MethodPost, "/api/v1/projects", map[string]string{
		"name":            "demo",
		"repo_local_path": "/srv/repos/demo",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	created := decodeBody[project.Project](t, rec)
	if created.ID == "" {
		t.Fatal("expected assigned project ID")
	}

	rec = doRequest(t, r, http.MethodGet, "/api/v1/projects/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decodeBody[project.Project](t, rec)
	if got.Name != "demo" {
		t.Fatalf("expected demo, got %q", got.Name)
	}
}

func TestCreateProjectMissingName(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodPost, "/api/v1/projects", map[string]string{
		"repo_local_path": "/srv/repos/demo",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["error"] != "name is required" {
		t.Fatalf("unexpected error message %q", body["error"])
	}
}

func TestCreateProjectMissingRepoPath(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodPost, "/api/v1/projects", map[string]string{"name": "demo"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateProjectInvalidBody(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodPost, "/api/v1/projects", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["error"] != "invalid request body" {
		t.Fatalf("unexpected error message %q", body["error"])
	}
}

func TestCreateProjectBodyTooLarge(t *testing.T) {
	r := newRouter(newMockStore())
	huge := `{"name":"` + strings.Repeat("x", 2<<20) + `"}`
	rec := doRequest(t, r, http.MethodPost, "/api/v1/projects", huge)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodGet, "/api/v1/projects/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSetAndGetBudget(t *testing.T) {
	store := newMockStore()
	store.projects["p1"] = &project.Project{ID: "p1", Name: "demo"}
	r := newRouter(store)

	rec := doRequest(t, r, http.MethodPut, "/api/v1/projects/p1/budget", map[string]float64{"usd_limit": 25})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, r, http.MethodGet, "/api/v1/projects/p1/budget", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	b := decodeBody[project.Budget](t, rec)
	if b.LimitUSD != 25 {
		t.Fatalf("expected limit 25, got %v", b.LimitUSD)
	}
}

func TestSetBudgetRejectsNonPositive(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodPut, "/api/v1/projects/p1/budget", map[string]float64{"usd_limit": 0})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateTeamFromPreset(t *testing.T) {
	store := newMockStore()
	store.projects["p1"] = &project.Project{ID: "p1", Name: "demo"}
	r := newRouter(store)

	rec := doRequest(t, r, http.MethodPost, "/api/v1/projects/p1/teams", map[string]string{
		"name":     "core",
		"preset":   "small",
		"provider": "litellm",
		"model":    "gpt-4o",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	body := decodeBody[struct {
		Team   project.Team  `json:"team"`
		Agents []agent.Agent `json:"agents"`
	}](t, rec)
	if body.Team.ID == "" {
		t.Fatal("expected assigned team ID")
	}
	if len(body.Agents) == 0 {
		t.Fatal("expected preset to create agents")
	}

	rec = doRequest(t, r, http.MethodGet, "/api/v1/teams/"+body.Team.ID+"/agents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	roster := decodeBody[[]agent.Agent](t, rec)
	if len(roster) != len(body.Agents) {
		t.Fatalf("expected roster of %d, got %d", len(body.Agents), len(roster))
	}
}

func TestCreateTeamUnknownPreset(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodPost, "/api/v1/projects/p1/teams", map[string]string{
		"name":   "core",
		"preset": "galactic",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetAgentNotFound(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodGet, "/api/v1/agents/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateAndGetRun(t *testing.T) {
	r := newRouter(newMockStore())

	rec := doRequest(t, r, http.MethodPost, "/api/v1/runs", map[string]string{
		"project_id": "p1",
		"team_id":    "t1",
		"goal":       "Ship the demo",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	created := decodeBody[run.Run](t, rec)
	if created.Status != run.StatusCreated {
		t.Fatalf("expected created status, got %q", created.Status)
	}

	rec = doRequest(t, r, http.MethodGet, "/api/v1/runs/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreateRunMissingGoal(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodPost, "/api/v1/runs", map[string]string{
		"project_id": "p1",
		"team_id":    "t1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["error"] != "goal is required" {
		t.Fatalf("unexpected error message %q", body["error"])
	}
}

func TestStartRunNotFound(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodPost, "/api/v1/runs/nope/start", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPauseAndResumeRun(t *testing.T) {
	store := newMockStore()
	store.runs["r1"] = &run.Run{ID: "r1", Status: run.StatusRunning}
	r := newRouter(store)

	rec := doRequest(t, r, http.MethodPost, "/api/v1/runs/r1/pause", map[string]string{"by": "sam"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if store.runs["r1"].PauseMode != run.PauseSoft {
		t.Fatalf("expected soft pause, got %q", store.runs["r1"].PauseMode)
	}

	rec = doRequest(t, r, http.MethodPost, "/api/v1/runs/r1/resume", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if store.runs["r1"].PauseMode != run.PauseNone {
		t.Fatalf("expected pause cleared, got %q", store.runs["r1"].PauseMode)
	}
}

func TestPauseRunNotFound(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodPost, "/api/v1/runs/nope/pause", map[string]string{"by": "sam"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateAndListTasks(t *testing.T) {
	store := newMockStore()
	store.runs["r1"] = &run.Run{ID: "r1", Status: run.StatusRunning}
	r := newRouter(store)

	rec := doRequest(t, r, http.MethodPost, "/api/v1/runs/r1/tasks", map[string]string{
		"title": "Implement the login API",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	created := decodeBody[task.Task](t, rec)
	if created.Status != task.StatusPending {
		t.Fatalf("expected pending, got %q", created.Status)
	}
	if created.RunID != "r1" {
		t.Fatalf("expected run id from URL, got %q", created.RunID)
	}

	rec = doRequest(t, r, http.MethodGet, "/api/v1/runs/r1/tasks", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	tasks := decodeBody[[]task.Task](t, rec)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
}

func TestCreateTaskMissingTitle(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodPost, "/api/v1/runs/r1/tasks", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["error"] != "title is required" {
		t.Fatalf("unexpected error message %q", body["error"])
	}
}

func TestGetTaskNotFound(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodGet, "/api/v1/tasks/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListAuditByRun(t *testing.T) {
	store := newMockStore()
	store.audits = append(store.audits, audit.Entry{ID: "a1", RunID: "r1", Actor: "dev", Action: "tool_request", Decision: "allowed"})
	r := newRouter(store)

	rec := doRequest(t, r, http.MethodGet, "/api/v1/runs/r1/audit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	entries := decodeBody[[]audit.Entry](t, rec)
	if len(entries) != 1 || entries[0].Decision != "allowed" {
		t.Fatalf("unexpected audit entries %+v", entries)
	}
}

func TestApprovalDecideFlow(t *testing.T) {
	store := newMockStore()
	store.approvals["ap1"] = &approval.Approval{
		ID: "ap1", RunID: "r1", Actor: "dev",
		ToolName: "system.run", RiskLevel: "critical",
		Status: approval.StatusPending,
	}
	r := newRouter(store)

	rec := doRequest(t, r, http.MethodGet, "/api/v1/runs/r1/approvals", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	pending := decodeBody[[]approval.Approval](t, rec)
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending approval, got %d", len(pending))
	}

	rec = doRequest(t, r, http.MethodPost, "/api/v1/approvals/ap1/decide", map[string]any{
		"approve":    true,
		"decided_by": "sam",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body)
	}
	if store.approvals["ap1"].Status != approval.StatusApproved {
		t.Fatalf("expected approved, got %q", store.approvals["ap1"].Status)
	}

	// Deciding twice conflicts.
	rec = doRequest(t, r, http.MethodPost, "/api/v1/approvals/ap1/decide", map[string]any{
		"approve":    false,
		"decided_by": "sam",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestDecideApprovalMissingDecidedBy(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodPost, "/api/v1/approvals/ap1/decide", map[string]any{"approve": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPostChatMissingContent(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodPost, "/api/v1/runs/r1/chat", map[string]string{"author": "sam"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetSettingsFallsBackToDefaults(t *testing.T) {
	r := newRouter(newMockStore())
	rec := doRequest(t, r, http.MethodGet, "/api/v1/projects/p1/settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	ps := decodeBody[settings.ProjectSetting](t, rec)
	if ps.ChatTargetPolicy != "managers" {
		t.Fatalf("expected managers policy, got %q", ps.ChatTargetPolicy)
	}
	if !ps.RequirePRApproval {
		t.Fatal("expected require_pr_approval default of true")
	}
}

func TestUpdateSettings(t *testing.T) {
	store := newMockStore()
	r := newRouter(store)

	rec := doRequest(t, r, http.MethodPut, "/api/v1/projects/p1/settings", map[string]any{
		"allow_high_risk":    true,
		"chat_target_policy": "team",
		"task_retry_limit":   5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, r, http.MethodGet, "/api/v1/projects/p1/settings", nil)
	ps := decodeBody[settings.ProjectSetting](t, rec)
	if !ps.AllowHighRisk || ps.ChatTargetPolicy != "team" || ps.TaskRetryLimit != 5 {
		t.Fatalf("unexpected settings after update: %+v", ps)
	}
}
