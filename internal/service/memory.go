package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/CrewForge/internal/domain/agent"
	"github.com/Strob0t/CrewForge/internal/domain/event"
	"github.com/Strob0t/CrewForge/internal/domain/memory"
	"github.com/Strob0t/CrewForge/internal/port/database"
	"github.com/Strob0t/CrewForge/internal/port/eventbus"
)

// MemoryService appends per-agent memory entries and keeps each agent's
// rolling summary current.
type MemoryService struct {
	store  database.Store
	bus    eventbus.Bus
	logger *slog.Logger
}

// NewMemoryService creates a MemoryService.
func NewMemoryService(store database.Store, bus eventbus.Bus, logger *slog.Logger) *MemoryService {
	return &MemoryService{store: store, bus: bus, logger: logger}
}

// Remember appends one memory entry for the agent within the run and
// refreshes the agent's rolling summary from the most recent entries.
func (s *MemoryService) Remember(ctx context.Context, runID string, a *agent.Agent, content string) error {
	entry := &memory.Entry{
		RunID:   runID,
		AgentID: a.ID,
		Role:    a.Role,
		Content: memory.Cap(content),
	}
	if err := s.store.AppendMemory(ctx, entry); err != nil {
		return fmt.Errorf("append memory for %s: %w", a.Name(), err)
	}

	recent, err := s.store.RecentMemory(ctx, runID, a.ID, memory.SummaryEntries)
	if err != nil {
		return fmt.Errorf("load recent memory for %s: %w", a.Name(), err)
	}
	summary := memory.Summarize(recent)
	if err := s.store.UpdateAgentMemorySummary(ctx, a.ID, summary); err != nil {
		return fmt.Errorf("update memory summary for %s: %w", a.Name(), err)
	}
	a.MemorySummary = summary

	s.bus.Publish(event.New(event.TypeMemoryUpdated, map[string]any{
		"run_id":   runID,
		"agent_id": a.ID,
		"role":     a.Role,
	}))
	return nil
}

// Recent returns the newest entries first for an agent within a run.
func (s *MemoryService) Recent(ctx context.Context, runID, agentID string, limit int) ([]memory.Entry, error) {
	return s.store.RecentMemory(ctx, runID, agentID, limit)
}
