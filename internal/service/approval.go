package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/CrewForge/internal/domain/approval"
	"github.com/Strob0t/CrewForge/internal/domain/event"
	"github.com/Strob0t/CrewForge/internal/port/database"
	"github.com/Strob0t/CrewForge/internal/port/eventbus"
)

// ApprovalService records approval requests and applies the one external
// transition an approval has: a human decision.
type ApprovalService struct {
	store  database.Store
	bus    eventbus.Bus
	logger *slog.Logger
}

// NewApprovalService creates an ApprovalService.
func NewApprovalService(store database.Store, bus eventbus.Bus, logger *slog.Logger) *ApprovalService {
	return &ApprovalService{store: store, bus: bus, logger: logger}
}

// Request records a pending approval and announces it.
func (s *ApprovalService) Request(ctx context.Context, a *approval.Approval) error {
	a.Status = approval.StatusPending
	if err := s.store.CreateApproval(ctx, a); err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	s.bus.Publish(event.New(event.TypeApprovalRequested, map[string]any{
		"approval_id": a.ID,
		"run_id":      a.RunID,
		"tool":        a.ToolName,
		"risk":        a.RiskLevel,
		"actor":       a.Actor,
	}))
	return nil
}

// Decide applies a human decision to a pending approval. Deciding a
// non-pending approval returns ErrConflict from the store.
func (s *ApprovalService) Decide(ctx context.Context, id string, approve bool, decidedBy string) error {
	status := approval.StatusDenied
	if approve {
		status = approval.StatusApproved
	}
	if err := s.store.DecideApproval(ctx, id, status, decidedBy); err != nil {
		return fmt.Errorf("decide approval %s: %w", id, err)
	}
	s.bus.Publish(event.New(event.TypeApprovalDecided, map[string]any{
		"approval_id": id,
		"status":      string(status),
		"decided_by":  decidedBy,
	}))
	return nil
}

// Pending lists the run's undecided approvals.
func (s *ApprovalService) Pending(ctx context.Context, runID string) ([]approval.Approval, error) {
	return s.store.ListPendingApprovals(ctx, runID)
}
