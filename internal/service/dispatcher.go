package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Strob0t/CrewForge/internal/adapter/gitlocal"
	"github.com/Strob0t/CrewForge/internal/adapter/localfs"
	"github.com/Strob0t/CrewForge/internal/adapter/shellexec"
	"github.com/Strob0t/CrewForge/internal/domain/agent"
	"github.com/Strob0t/CrewForge/internal/domain/approval"
	"github.com/Strob0t/CrewForge/internal/domain/event"
	"github.com/Strob0t/CrewForge/internal/domain/policy"
	"github.com/Strob0t/CrewForge/internal/domain/run"
	"github.com/Strob0t/CrewForge/internal/domain/settings"
	"github.com/Strob0t/CrewForge/internal/domain/tool"
	"github.com/Strob0t/CrewForge/internal/git"
	"github.com/Strob0t/CrewForge/internal/port/database"
	"github.com/Strob0t/CrewForge/internal/port/eventbus"
	"github.com/Strob0t/CrewForge/internal/port/toolexec"
)

// rootTools is the executor set bound to one repository working copy.
type rootTools struct {
	shell *shellexec.Executor
	files *localfs.Files
	repo  *gitlocal.Repo
}

// Dispatcher turns an inline tool call parsed from agent output into a
// broker execution and renders the outcome as chat-visible text. It owns
// tool classification (required scopes + risk), the file-edit and PR
// approval gates, and lazy executor registration on the broker.
type Dispatcher struct {
	store   database.Store
	broker  *ToolBroker
	bus     eventbus.Bus
	logger  *slog.Logger
	gitPool *git.Pool
	snaps   localfs.Snapshotter
	mcpExec toolexec.Executor

	registerOnce sync.Once

	mu    sync.Mutex
	roots map[string]*rootTools
}

// NewDispatcher creates a Dispatcher. mcpExec serves mcp.call and may be nil
// when no MCP support is configured.
func NewDispatcher(store database.Store, broker *ToolBroker, bus eventbus.Bus, logger *slog.Logger, gitPool *git.Pool, snaps localfs.Snapshotter, mcpExec toolexec.Executor) *Dispatcher {
	return &Dispatcher{
		store:   store,
		broker:  broker,
		bus:     bus,
		logger:  logger,
		gitPool: gitPool,
		snaps:   snaps,
		mcpExec: mcpExec,
		roots:   make(map[string]*rootTools),
	}
}

// Dispatch executes one parsed tool call on behalf of an agent and returns
// the text to append to the run's chat.
func (d *Dispatcher) Dispatch(ctx context.Context, r *run.Run, a *agent.Agent, ps *settings.ProjectSetting, jobID string, call *tool.Call) string {
	d.ensureRegistered()

	required, risk, known := classifyTool(call)
	if !known {
		return fmt.Sprintf("Tool execution blocked: unknown tool %q.", call.Tool)
	}

	if isFileEdit(call.Tool) {
		if !ps.AutoExecuteEdits {
			return "Tool execution blocked: automatic file edits are disabled for this project."
		}
		if !a.IsEngineer() {
			return "Tool execution blocked: file editing tools are reserved for engineering roles."
		}
	}

	if call.Tool == "mcp.call" {
		endpoint, _ := call.Arguments["endpoint"].(string)
		if !mcpEndpointAllowed(ps, endpoint) {
			return fmt.Sprintf("Tool execution blocked: MCP endpoint %q is not configured for this project.", endpoint)
		}
	}

	actorScopes := policy.ParseScopes(a.Scopes)
	if len(actorScopes) == 0 {
		actorScopes = policy.ParseScopes(policy.ResolveRoleScopes(a.Role, policy.RoleScopeConfig{
			DefaultToolScopes: ps.DefaultToolScopes,
			RoleToolScopes:    ps.RoleToolScopes,
			AllowPMMerge:      ps.AllowPMMerge,
		}))
	}
	if ps.AllowAllTools {
		actorScopes = required
	}

	req := tool.Request{
		Tool:           call.Tool,
		Arguments:      call.Arguments,
		Risk:           risk,
		RequiredScopes: required,
		Actor:          a.Name(),
		ApprovalID:     call.ApprovalID,
		RunID:          r.ID,
		JobID:          jobID,
	}

	result := d.broker.Execute(ctx, req, actorScopes, ps.AllowHighRisk)

	if result.Error == policy.ReasonApprovalRequired {
		id := d.requestApproval(ctx, r, a, call.Tool, risk,
			fmt.Sprintf("%s requested %s at %s risk", a.Name(), call.Tool, risk))
		if id == "" {
			return fmt.Sprintf("Tool execution blocked: %s requires approval, but the approval request could not be recorded.", call.Tool)
		}
		return fmt.Sprintf("Tool execution blocked: %s requires approval (approval id: %s). Resubmit the call with \"approval_id\" once approved.", call.Tool, id)
	}

	text := renderResult(call.Tool, result)

	// A proposed PR still needs a manager-approved merge when the project
	// requires review before landing.
	if call.Tool == "git.create_pr" && result.Success && ps.RequirePRApproval {
		id := d.requestApproval(ctx, r, a, "git.merge", policy.RiskHigh,
			fmt.Sprintf("merge requested by %s for PR %v", a.Name(), call.Arguments["title"]))
		d.bus.Publish(event.New(event.TypePRRequested, map[string]any{
			"run_id": r.ID,
			"actor":  a.Name(),
			"title":  call.Arguments["title"],
		}))
		if id != "" {
			text += fmt.Sprintf(" Merge is pending approval (approval id: %s).", id)
		}
	}

	return text
}

// requestApproval records a pending approval and announces it. Returns the
// approval id, or empty when persistence failed.
func (d *Dispatcher) requestApproval(ctx context.Context, r *run.Run, a *agent.Agent, toolName string, risk policy.RiskLevel, reason string) string {
	ap := &approval.Approval{
		RunID:     r.ID,
		Actor:     a.Name(),
		ToolName:  toolName,
		RiskLevel: string(risk),
		Status:    approval.StatusPending,
		Reason:    reason,
	}
	if err := d.store.CreateApproval(ctx, ap); err != nil {
		d.logger.Warn("create approval", "tool", toolName, "error", err)
		return ""
	}
	d.bus.Publish(event.New(event.TypeApprovalRequested, map[string]any{
		"approval_id": ap.ID,
		"run_id":      r.ID,
		"tool":        toolName,
		"risk":        string(risk),
		"actor":       a.Name(),
	}))
	return ap.ID
}

// ensureRegistered installs the router executors on the broker. Routing
// resolves the repository root per run at call time, so one registration
// serves every project.
func (d *Dispatcher) ensureRegistered() {
	d.registerOnce.Do(func() {
		d.broker.Register("system.run", d.route(func(t *rootTools) toolexec.Executor { return t.shell }))

		d.broker.Register("file.read", d.route(func(t *rootTools) toolexec.Executor { return toolexec.Func(t.files.Read()) }))
		d.broker.Register("file.write", d.route(func(t *rootTools) toolexec.Executor { return toolexec.Func(t.files.Write()) }))
		d.broker.Register("file.append", d.route(func(t *rootTools) toolexec.Executor { return toolexec.Func(t.files.Append()) }))
		d.broker.Register("file.replace", d.route(func(t *rootTools) toolexec.Executor { return toolexec.Func(t.files.Replace()) }))

		d.broker.Register("git.status", d.route(func(t *rootTools) toolexec.Executor { return toolexec.Func(t.repo.Status()) }))
		d.broker.Register("git.diff", d.route(func(t *rootTools) toolexec.Executor { return toolexec.Func(t.repo.Diff()) }))
		d.broker.Register("git.branch", d.route(func(t *rootTools) toolexec.Executor { return toolexec.Func(t.repo.Branch()) }))
		d.broker.Register("git.commit", d.route(func(t *rootTools) toolexec.Executor { return toolexec.Func(t.repo.Commit()) }))
		d.broker.Register("git.merge", d.route(func(t *rootTools) toolexec.Executor { return toolexec.Func(t.repo.Merge()) }))
		d.broker.Register("git.create_pr", d.route(func(t *rootTools) toolexec.Executor { return toolexec.Func(t.repo.CreatePR()) }))

		if d.mcpExec != nil {
			d.broker.Register("mcp.call", d.mcpExec)
		}
	})
}

// route wraps an executor selector with repository-root resolution.
func (d *Dispatcher) route(pick func(*rootTools) toolexec.Executor) toolexec.Executor {
	return toolexec.Func(func(ctx context.Context, req tool.Request) (tool.Result, error) {
		tools, err := d.toolsFor(ctx, req.RunID)
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		return pick(tools).Execute(ctx, req)
	})
}

func (d *Dispatcher) toolsFor(ctx context.Context, runID string) (*rootTools, error) {
	r, err := d.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("resolve run for tool call: %w", err)
	}
	p, err := d.store.GetProject(ctx, r.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("resolve project for tool call: %w", err)
	}
	root := p.RepoLocalPath
	if root == "" {
		return nil, fmt.Errorf("project %s has no local repository path", p.ID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if tools, ok := d.roots[root]; ok {
		return tools, nil
	}
	tools := &rootTools{
		shell: shellexec.New(root),
		files: localfs.New(root, d.snaps),
		repo:  gitlocal.NewRepo(root, d.gitPool),
	}
	d.roots[root] = tools
	return tools, nil
}

// classifyTool maps a tool name to its required scopes and risk level.
func classifyTool(call *tool.Call) (scopes []string, risk policy.RiskLevel, known bool) {
	switch call.Tool {
	case "system.run":
		command, _ := call.Arguments["command"].(string)
		return []string{"system:run"}, tool.ClassifyShell(command), true
	case "file.read":
		return []string{"file:read"}, policy.RiskLow, true
	case "file.write", "file.append", "file.replace":
		return []string{"file:write"}, policy.RiskMedium, true
	case "git.status", "git.diff", "git.branch", "git.commit":
		verb := strings.TrimPrefix(call.Tool, "git.")
		return []string{"git:" + verb}, policy.RiskLow, true
	case "git.merge":
		return []string{"git:merge"}, policy.RiskHigh, true
	case "git.create_pr":
		return []string{"git:pr"}, policy.RiskLow, true
	case "mcp.call":
		return []string{"mcp:call"}, policy.RiskMedium, true
	}
	return nil, "", false
}

func isFileEdit(name string) bool {
	switch name {
	case "file.write", "file.append", "file.replace":
		return true
	}
	return false
}

func mcpEndpointAllowed(ps *settings.ProjectSetting, endpoint string) bool {
	if endpoint == "" {
		return false
	}
	for _, ep := range strings.Split(ps.MCPEndpoints, ",") {
		if strings.TrimSpace(ep) == endpoint {
			return true
		}
	}
	return false
}

// renderResult converts a broker result into chat text the rest of the team
// can read.
func renderResult(toolName string, result tool.Result) string {
	if result.Success {
		if len(result.Output) == 0 {
			return fmt.Sprintf("Tool %s succeeded.", toolName)
		}
		data, err := json.Marshal(result.Output)
		if err != nil {
			return fmt.Sprintf("Tool %s succeeded.", toolName)
		}
		return fmt.Sprintf("Tool %s result: %s", toolName, truncate(string(data), 2000))
	}

	switch result.Error {
	case policy.ReasonMissingScopes:
		return fmt.Sprintf("Tool execution blocked: you lack the scopes required for %s.", toolName)
	case tool.ErrNotRegistered:
		return fmt.Sprintf("Tool execution blocked: tool %q is not available.", toolName)
	default:
		return fmt.Sprintf("Tool %s failed: %s", toolName, result.Error)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
