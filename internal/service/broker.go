package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	cfotel "github.com/Strob0t/CrewForge/internal/adapter/otel"
	"github.com/Strob0t/CrewForge/internal/domain/audit"
	"github.com/Strob0t/CrewForge/internal/domain/event"
	"github.com/Strob0t/CrewForge/internal/domain/policy"
	"github.com/Strob0t/CrewForge/internal/domain/tool"
	"github.com/Strob0t/CrewForge/internal/port/database"
	"github.com/Strob0t/CrewForge/internal/port/eventbus"
	"github.com/Strob0t/CrewForge/internal/port/toolexec"
)

// ToolBroker is the single gate every agent-initiated tool call passes
// through: approval resolution, policy evaluation, audit, then execution.
// Executors live in a broker-owned registry keyed by exact tool name.
type ToolBroker struct {
	store   database.Store
	bus     eventbus.Bus
	logger  *slog.Logger
	metrics *cfotel.Metrics

	mu        sync.RWMutex
	executors map[string]toolexec.Executor
}

// NewToolBroker creates a broker with an empty executor registry. metrics
// may be nil.
func NewToolBroker(store database.Store, bus eventbus.Bus, logger *slog.Logger, metrics *cfotel.Metrics) *ToolBroker {
	return &ToolBroker{
		store:     store,
		bus:       bus,
		logger:    logger,
		metrics:   metrics,
		executors: make(map[string]toolexec.Executor),
	}
}

// Register binds an executor to a tool name, replacing any previous binding.
func (b *ToolBroker) Register(name string, exec toolexec.Executor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.executors[name] = exec
}

// Registered reports whether a tool has an executor.
func (b *ToolBroker) Registered(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.executors[name]
	return ok
}

// Execute runs one tool request end to end. The audit "tool.request" entry
// and the tool.requested event are written before any execution, whatever
// the decision. Policy denials come back as Result errors, not Go errors.
func (b *ToolBroker) Execute(ctx context.Context, req tool.Request, actorScopes []string, allowHighRisk bool) tool.Result {
	ctx, span := cfotel.StartToolCallSpan(ctx, req.Tool, req.Actor)
	defer span.End()

	approved := req.Approved
	if !approved && req.ApprovalID != "" {
		if a, err := b.store.GetApproval(ctx, req.ApprovalID); err == nil {
			approved = a.Matches(req.Tool, string(req.Risk))
		} else {
			b.logger.Warn("approval lookup failed", "approval_id", req.ApprovalID, "error", err)
		}
	}

	decision := policy.Evaluate(policy.Input{
		ActorScopes:    actorScopes,
		RequiredScopes: req.RequiredScopes,
		Risk:           req.Risk,
		Approved:       approved,
		AllowHighRisk:  allowHighRisk,
	})

	b.audit(ctx, req, audit.ActionToolRequest, decision.Reason, req.Arguments, nil)
	b.bus.Publish(event.New(event.TypeToolRequested, map[string]any{
		"tool":     req.Tool,
		"actor":    req.Actor,
		"risk":     string(req.Risk),
		"decision": decision.Reason,
		"run_id":   req.RunID,
	}))
	if b.metrics != nil {
		b.metrics.ToolCalls.Add(ctx, 1)
	}

	if !decision.Allowed {
		if b.metrics != nil {
			b.metrics.ToolBlocked.Add(ctx, 1)
		}
		return tool.Result{Success: false, Error: decision.Reason}
	}

	b.mu.RLock()
	exec, ok := b.executors[req.Tool]
	b.mu.RUnlock()
	if !ok {
		return tool.Result{Success: false, Error: tool.ErrNotRegistered}
	}

	result, err := exec.Execute(ctx, req)
	if err != nil {
		result = tool.Result{Success: false, Error: err.Error()}
	}

	b.audit(ctx, req, audit.ActionToolResult, resultDecision(result), nil, &result)
	b.bus.Publish(event.New(event.TypeToolCompleted, map[string]any{
		"tool":    req.Tool,
		"actor":   req.Actor,
		"success": result.Success,
		"run_id":  req.RunID,
	}))
	return result
}

func (b *ToolBroker) audit(ctx context.Context, req tool.Request, action, decision string, args map[string]any, result *tool.Result) {
	entry := &audit.Entry{
		RunID:     req.RunID,
		JobID:     req.JobID,
		Actor:     req.Actor,
		Action:    action,
		ToolName:  req.Tool,
		RiskLevel: string(req.Risk),
		Decision:  decision,
	}
	if args != nil {
		if data, err := json.Marshal(args); err == nil {
			entry.Request = data
		}
	}
	if result != nil {
		if data, err := json.Marshal(result); err == nil {
			entry.Result = data
		}
	}
	if err := b.store.AppendAudit(ctx, entry); err != nil {
		b.logger.Warn("append audit", "tool", req.Tool, "action", action, "error", err)
	}
}

func resultDecision(r tool.Result) string {
	if r.Success {
		return "executed"
	}
	return "failed"
}
