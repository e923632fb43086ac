package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/CrewForge/internal/domain"
	"github.com/Strob0t/CrewForge/internal/domain/agent"
	"github.com/Strob0t/CrewForge/internal/domain/chat"
	"github.com/Strob0t/CrewForge/internal/domain/event"
	"github.com/Strob0t/CrewForge/internal/domain/run"
	"github.com/Strob0t/CrewForge/internal/domain/settings"
	"github.com/Strob0t/CrewForge/internal/port/artifact"
	"github.com/Strob0t/CrewForge/internal/port/database"
	"github.com/Strob0t/CrewForge/internal/port/eventbus"
	"github.com/Strob0t/CrewForge/internal/port/provider"
)

// AgentRuntime invokes language models on behalf of agents: prompt assembly,
// budget gating, visible error reporting, and memory upkeep.
type AgentRuntime struct {
	store     database.Store
	invoker   provider.Invoker
	artifacts artifact.Store
	memories  *MemoryService
	bus       eventbus.Bus
	logger    *slog.Logger

	costPerCall float64
}

// NewAgentRuntime creates an AgentRuntime. costPerCall is the flat budget
// increment charged per provider invocation.
func NewAgentRuntime(store database.Store, invoker provider.Invoker, artifacts artifact.Store, memories *MemoryService, bus eventbus.Bus, logger *slog.Logger, costPerCall float64) *AgentRuntime {
	return &AgentRuntime{
		store:       store,
		invoker:     invoker,
		artifacts:   artifacts,
		memories:    memories,
		bus:         bus,
		logger:      logger,
		costPerCall: costPerCall,
	}
}

// Respond invokes the agent's model with the prompt and returns the reply as
// chat-visible text. Provider failures and an exhausted budget come back as
// text, never as an error: a speaking failure must not kill a scheduler loop.
func (rt *AgentRuntime) Respond(ctx context.Context, r *run.Run, a *agent.Agent, prompt string) string {
	if blocked := rt.budgetBlocked(ctx, r); blocked != "" {
		return blocked
	}

	resp, err := rt.invoker.Invoke(ctx, a.Provider, a.Model, provider.Request{
		Prompt: prompt,
		Role:   a.Role,
	})
	content := ""
	if err != nil {
		rt.logger.Warn("provider invocation failed",
			"agent", a.Name(), "provider", a.Provider, "model", a.Model, "error", err)
		content = fmt.Sprintf("(provider error: %v)", err)
	} else {
		content = resp.Content
	}

	if err := rt.store.AddBudgetSpend(ctx, r.ProjectID, rt.costPerCall); err != nil {
		rt.logger.Warn("record budget spend", "project_id", r.ProjectID, "error", err)
	}

	if err := rt.memories.Remember(ctx, r.ID, a, content); err != nil {
		rt.logger.Warn("record agent memory", "agent", a.Name(), "error", err)
	}

	return content
}

// Say appends a message from the agent to the run's chat log and announces it.
func (rt *AgentRuntime) Say(ctx context.Context, runID string, a *agent.Agent, content string) chat.Message {
	msg := chat.Message{
		MessageID: uuid.NewString(),
		Agent:     a.Name(),
		Role:      a.Role,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := rt.artifacts.WriteChat(runID, a.Role, msg); err != nil {
		rt.logger.Warn("write chat message", "run_id", runID, "agent", a.Name(), "error", err)
	}
	rt.bus.Publish(event.New(event.TypeAgentResponse, map[string]any{
		"run_id":  runID,
		"agent":   a.Name(),
		"role":    a.Role,
		"content": content,
	}))
	return msg
}

// budgetBlocked returns a chat-visible refusal when the project budget is
// spent. Projects without a budget row are unmetered.
func (rt *AgentRuntime) budgetBlocked(ctx context.Context, r *run.Run) string {
	budget, err := rt.store.GetBudget(ctx, r.ProjectID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			rt.logger.Warn("budget lookup failed", "project_id", r.ProjectID, "error", err)
		}
		return ""
	}
	if budget.Exhausted() {
		return fmt.Sprintf("(budget exhausted: %.2f of %.2f USD spent; agent calls are paused)",
			budget.SpentUSD, budget.LimitUSD)
	}
	return ""
}

// BuildPrompt assembles the standard agent prompt: identity, goal, tool
// instructions, and the agent's rolling memory.
func (rt *AgentRuntime) BuildPrompt(a *agent.Agent, r *run.Run, ps *settings.ProjectSetting, taskText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, the %s on this delivery team.\n", a.Name(), a.Role)
	if a.Personality != "" {
		fmt.Fprintf(&b, "Personality: %s\n", a.Personality)
	}
	fmt.Fprintf(&b, "Team goal: %s\n", r.Goal)

	if a.MemorySummary != "" {
		fmt.Fprintf(&b, "Your recent memory: %s\n", a.MemorySummary)
	}

	b.WriteString("\nTo use a tool, reply with inline JSON: " +
		`{"tool": "<name>", "arguments": {...}}` + ".\n")
	b.WriteString("Available tools: system.run (shell), git.status, git.diff, git.branch, git.commit, git.create_pr.\n")
	if a.IsEngineer() {
		b.WriteString("As an engineer you may also edit files: file.read, file.write, file.append, file.replace.\n")
	}
	if ps != nil && strings.TrimSpace(ps.MCPEndpoints) != "" {
		b.WriteString("External MCP tools are reachable via mcp.call with an \"endpoint\" argument.\n")
	}

	if taskText != "" {
		fmt.Fprintf(&b, "\n%s\n", taskText)
	}
	return b.String()
}
