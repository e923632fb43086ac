package service

import (
	"context"
	"strings"
	"testing"

	"github.com/Strob0t/CrewForge/internal/domain/approval"
	"github.com/Strob0t/CrewForge/internal/domain/policy"
	"github.com/Strob0t/CrewForge/internal/domain/settings"
	"github.com/Strob0t/CrewForge/internal/domain/tool"
	"github.com/Strob0t/CrewForge/internal/port/toolexec"
)

func TestDispatchUnknownTool(t *testing.T) {
	e := newEnv(t)
	r := e.seedRun(t)
	dev := e.agentByID(t, "dev")
	ps := settings.Defaults(r.ProjectID)

	text := e.dispatcher.Dispatch(t.Context(), r, dev, ps, "", &tool.Call{Tool: "deploy.everything"})
	want := `Tool execution blocked: unknown tool "deploy.everything".`
	if text != want {
		t.Fatalf("Dispatch = %q, want %q", text, want)
	}
}

func TestDispatchFileEditGates(t *testing.T) {
	e := newEnv(t)
	r := e.seedRun(t)
	ps := settings.Defaults(r.ProjectID)
	call := &tool.Call{Tool: "file.write", Arguments: map[string]any{"path": "a.txt", "content": "x"}}

	ps.AutoExecuteEdits = false
	text := e.dispatcher.Dispatch(t.Context(), r, e.agentByID(t, "dev"), ps, "", call)
	if text != "Tool execution blocked: automatic file edits are disabled for this project." {
		t.Fatalf("edits disabled: %q", text)
	}

	ps.AutoExecuteEdits = true
	text = e.dispatcher.Dispatch(t.Context(), r, e.agentByID(t, "po"), ps, "", call)
	if text != "Tool execution blocked: file editing tools are reserved for engineering roles." {
		t.Fatalf("non-engineer: %q", text)
	}
}

func TestDispatchMissingScopes(t *testing.T) {
	e := newEnv(t)
	r := e.seedRun(t)
	dev := e.agentByID(t, "dev")
	dev.Scopes = "file:read"
	ps := settings.Defaults(r.ProjectID)

	text := e.dispatcher.Dispatch(t.Context(), r, dev, ps, "", &tool.Call{
		Tool:      "system.run",
		Arguments: map[string]any{"command": "ls"},
	})
	if text != "Tool execution blocked: you lack the scopes required for system.run." {
		t.Fatalf("Dispatch = %q", text)
	}
}

func TestDispatchDestructiveCommandNeedsApproval(t *testing.T) {
	e := newEnv(t)
	r := e.seedRun(t)
	dev := e.agentByID(t, "dev")
	ps := settings.Defaults(r.ProjectID)
	ps.AllowAllTools = true

	text := e.dispatcher.Dispatch(t.Context(), r, dev, ps, "", &tool.Call{
		Tool:      "system.run",
		Arguments: map[string]any{"command": "rm -rf build"},
	})
	if !strings.HasPrefix(text, "Tool execution blocked: system.run requires approval (approval id: ") {
		t.Fatalf("Dispatch = %q", text)
	}

	pending, _ := e.store.ListPendingApprovals(t.Context(), r.ID)
	if len(pending) != 1 {
		t.Fatalf("pending approvals = %d, want 1", len(pending))
	}
	if pending[0].ToolName != "system.run" || pending[0].RiskLevel != string(policy.RiskCritical) {
		t.Fatalf("approval = %+v", pending[0])
	}
}

func TestDispatchApprovedDestructiveCommandExecutes(t *testing.T) {
	e := newEnv(t)
	r := e.seedRun(t)
	dev := e.agentByID(t, "dev")
	ps := settings.Defaults(r.ProjectID)
	ps.AllowAllTools = true

	call := &tool.Call{Tool: "system.run", Arguments: map[string]any{"command": "rm -rf build"}}
	e.dispatcher.Dispatch(t.Context(), r, dev, ps, "", call)
	pending, _ := e.store.ListPendingApprovals(t.Context(), r.ID)
	if len(pending) != 1 {
		t.Fatalf("pending approvals = %d", len(pending))
	}
	if err := e.store.DecideApproval(t.Context(), pending[0].ID, approval.StatusApproved, "ops"); err != nil {
		t.Fatalf("decide: %v", err)
	}

	// Swap in a recording executor so the resubmitted call does not spawn a
	// real shell.
	var executed bool
	e.broker.Register("system.run", toolexec.Func(func(context.Context, tool.Request) (tool.Result, error) {
		executed = true
		return tool.Result{Success: true}, nil
	}))

	call.ApprovalID = pending[0].ID
	text := e.dispatcher.Dispatch(t.Context(), r, dev, ps, "", call)
	if text != "Tool system.run succeeded." {
		t.Fatalf("Dispatch = %q", text)
	}
	if !executed {
		t.Fatal("executor never ran")
	}
}

func TestDispatchPRRequiresMergeApproval(t *testing.T) {
	e := newEnv(t)
	r := e.seedRun(t)
	dev := e.agentByID(t, "dev")
	ps := settings.Defaults(r.ProjectID)
	ps.AllowAllTools = true
	ps.RequirePRApproval = true

	// Trigger registration once, then override git.create_pr so no real git
	// repo is needed.
	e.dispatcher.ensureRegistered()
	e.broker.Register("git.create_pr", okExecutor(nil))

	text := e.dispatcher.Dispatch(t.Context(), r, dev, ps, "", &tool.Call{
		Tool:      "git.create_pr",
		Arguments: map[string]any{"title": "Add login page"},
	})
	if !strings.HasPrefix(text, "Tool git.create_pr succeeded. Merge is pending approval (approval id: ") {
		t.Fatalf("Dispatch = %q", text)
	}

	pending, _ := e.store.ListPendingApprovals(t.Context(), r.ID)
	if len(pending) != 1 {
		t.Fatalf("pending approvals = %d, want 1", len(pending))
	}
	if pending[0].ToolName != "git.merge" || pending[0].RiskLevel != string(policy.RiskHigh) {
		t.Fatalf("merge approval = %+v", pending[0])
	}
}

func TestDispatchMCPEndpointGate(t *testing.T) {
	e := newEnv(t)
	r := e.seedRun(t)
	dev := e.agentByID(t, "dev")
	ps := settings.Defaults(r.ProjectID)
	ps.AllowAllTools = true
	ps.MCPEndpoints = "https://tools.internal/mcp"

	text := e.dispatcher.Dispatch(t.Context(), r, dev, ps, "", &tool.Call{
		Tool:      "mcp.call",
		Arguments: map[string]any{"endpoint": "https://evil.example/mcp"},
	})
	if text != `Tool execution blocked: MCP endpoint "https://evil.example/mcp" is not configured for this project.` {
		t.Fatalf("Dispatch = %q", text)
	}
}

func TestClassifyTool(t *testing.T) {
	tests := []struct {
		call   tool.Call
		scopes string
		risk   policy.RiskLevel
	}{
		{tool.Call{Tool: "system.run", Arguments: map[string]any{"command": "ls"}}, "system:run", policy.RiskLow},
		{tool.Call{Tool: "system.run", Arguments: map[string]any{"command": "rm -rf /tmp/x"}}, "system:run", policy.RiskCritical},
		{tool.Call{Tool: "file.read"}, "file:read", policy.RiskLow},
		{tool.Call{Tool: "file.replace"}, "file:write", policy.RiskMedium},
		{tool.Call{Tool: "git.commit"}, "git:commit", policy.RiskLow},
		{tool.Call{Tool: "git.merge"}, "git:merge", policy.RiskHigh},
		{tool.Call{Tool: "git.create_pr"}, "git:pr", policy.RiskLow},
		{tool.Call{Tool: "mcp.call"}, "mcp:call", policy.RiskMedium},
	}
	for _, tt := range tests {
		scopes, risk, known := classifyTool(&tt.call)
		if !known {
			t.Errorf("%s: not known", tt.call.Tool)
			continue
		}
		if len(scopes) != 1 || scopes[0] != tt.scopes {
			t.Errorf("%s: scopes = %v, want [%s]", tt.call.Tool, scopes, tt.scopes)
		}
		if risk != tt.risk {
			t.Errorf("%s: risk = %s, want %s", tt.call.Tool, risk, tt.risk)
		}
	}

	if _, _, known := classifyTool(&tool.Call{Tool: "nope"}); known {
		t.Error("unknown tool classified")
	}
}

func TestRenderResultTruncatesLongOutput(t *testing.T) {
	long := strings.Repeat("x", 3000)
	text := renderResult("system.run", tool.Result{Success: true, Output: map[string]any{"stdout": long}})
	if !strings.HasPrefix(text, "Tool system.run result: ") {
		t.Fatalf("text = %q", text[:40])
	}
	if !strings.HasSuffix(text, "…") {
		t.Fatal("long output not truncated")
	}
	if len(text) > len("Tool system.run result: ")+2010 {
		t.Fatalf("text too long: %d", len(text))
	}
}

func TestRenderResultNotAvailable(t *testing.T) {
	text := renderResult("mcp.call", tool.Result{Error: tool.ErrNotRegistered})
	if text != `Tool execution blocked: tool "mcp.call" is not available.` {
		t.Fatalf("text = %q", text)
	}
}
