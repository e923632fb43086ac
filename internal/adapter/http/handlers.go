package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Strob0t/CrewForge/internal/domain/project"
	"github.com/Strob0t/CrewForge/internal/domain/run"
	"github.com/Strob0t/CrewForge/internal/domain/settings"
	"github.com/Strob0t/CrewForge/internal/domain/task"
	"github.com/Strob0t/CrewForge/internal/port/database"
	"github.com/Strob0t/CrewForge/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Store        database.Store
	Orchestrator *service.Orchestrator
	Chat         *service.ChatService
	Approvals    *service.ApprovalService
	Settings     *service.SettingsService
	Teams        *service.TeamService
	Logger       *slog.Logger
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

type createProjectRequest struct {
	Name          string `json:"name"`
	RepoURL       string `json:"repo_url"`
	RepoLocalPath string `json:"repo_local_path"`
	DefaultBranch string `json:"default_branch"`
	Overview      string `json:"overview"`
}

func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createProjectRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Name, "name") || !requireField(w, req.RepoLocalPath, "repo_local_path") {
		return
	}
	p := &project.Project{
		Name:          req.Name,
		RepoURL:       req.RepoURL,
		RepoLocalPath: req.RepoLocalPath,
		DefaultBranch: req.DefaultBranch,
		Overview:      req.Overview,
	}
	if err := h.Store.CreateProject(r.Context(), p); err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetProject(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type setBudgetRequest struct {
	LimitUSD float64 `json:"usd_limit"`
}

func (h *Handlers) SetBudget(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[setBudgetRequest](w, r)
	if !ok {
		return
	}
	if req.LimitUSD <= 0 {
		writeError(w, http.StatusBadRequest, "usd_limit must be positive")
		return
	}
	b := &project.Budget{ProjectID: urlParam(r, "id"), LimitUSD: req.LimitUSD}
	if err := h.Store.UpsertBudget(r.Context(), b); err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handlers) GetBudget(w http.ResponseWriter, r *http.Request) {
	b, err := h.Store.GetBudget(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "budget not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ---------------------------------------------------------------------------
// Teams and agents
// ---------------------------------------------------------------------------

type createTeamRequest struct {
	Name     string `json:"name"`
	Preset   string `json:"preset"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (h *Handlers) CreateTeam(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createTeamRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Name, "name") || !requireField(w, req.Preset, "preset") {
		return
	}
	team, agents, err := h.Teams.CreateFromPreset(r.Context(), urlParam(r, "id"), req.Name, req.Preset, req.Provider, req.Model)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"team": team, "agents": agents})
}

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Teams.Roster(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "team not found")
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.Store.GetAgent(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[run.CreateRequest](w, r)
	if !ok {
		return
	}
	created, err := h.Orchestrator.CreateRun(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "project or team not found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	got, err := h.Store.GetRun(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, got)
}

// StartRun kicks off the phased pipeline in the background and returns
// immediately. Progress is observable via the run status, events, and the
// websocket feed.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, err := h.Store.GetRun(r.Context(), id); err != nil {
		writeDomainError(w, err, "run not found")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := h.Orchestrator.StartRun(ctx, id); err != nil {
			h.Logger.Warn("run pipeline failed", "run_id", id, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(run.StatusRunning)})
}

type pauseRequest struct {
	By string `json:"by"`
}

func (h *Handlers) PauseRun(w http.ResponseWriter, r *http.Request) {
	// Body is optional, a bare POST pauses as an anonymous user.
	var req pauseRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if err := h.Orchestrator.PauseRun(r.Context(), urlParam(r, "id"), req.By); err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ResumeRun(w http.ResponseWriter, r *http.Request) {
	if err := h.Orchestrator.ResumeRun(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.CreateRequest](w, r)
	if !ok {
		return
	}
	req.RunID = urlParam(r, "id")
	t, err := h.Orchestrator.CreateTask(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Store.ListTasksByRun(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Store.GetTask(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ---------------------------------------------------------------------------
// Approvals
// ---------------------------------------------------------------------------

func (h *Handlers) ListApprovals(w http.ResponseWriter, r *http.Request) {
	approvals, err := h.Approvals.Pending(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, approvals)
}

type decideRequest struct {
	Approve   bool   `json:"approve"`
	DecidedBy string `json:"decided_by"`
}

func (h *Handlers) DecideApproval(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[decideRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.DecidedBy, "decided_by") {
		return
	}
	if err := h.Approvals.Decide(r.Context(), urlParam(r, "id"), req.Approve, req.DecidedBy); err != nil {
		writeDomainError(w, err, "approval not found or already decided")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Settings.Get(r.Context(), urlParam(r, "id")))
}

func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[settings.ProjectSetting](w, r)
	if !ok {
		return
	}
	req.ProjectID = urlParam(r, "id")
	if err := h.Settings.Update(r.Context(), &req); err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, &req)
}

// ---------------------------------------------------------------------------
// Chat and audit
// ---------------------------------------------------------------------------

type postChatRequest struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

func (h *Handlers) PostChat(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[postChatRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Content, "content") {
		return
	}
	if req.Author == "" {
		req.Author = "user"
	}
	replies, err := h.Chat.Post(r.Context(), urlParam(r, "id"), req.Author, req.Content)
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"replies": replies})
}

func (h *Handlers) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.ListAuditByRun(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
