package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/CrewForge/internal/domain/memory"
)

func (s *Store) AppendMemory(ctx context.Context, e *memory.Entry) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO agent_memory (run_id, agent_id, role, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		e.RunID, e.AgentID, e.Role, memory.Cap(e.Content))
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("append memory: %w", err)
	}
	return nil
}

// RecentMemory returns the newest entries first for an agent within a run.
func (s *Store) RecentMemory(ctx context.Context, runID, agentID string, limit int) ([]memory.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, agent_id, role, content, created_at
		 FROM agent_memory WHERE run_id = $1 AND agent_id = $2
		 ORDER BY created_at DESC LIMIT $3`, runID, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent memory: %w", err)
	}
	return collectMemory(rows)
}

// RecentMemoryByAgent returns the newest entries first across all runs.
func (s *Store) RecentMemoryByAgent(ctx context.Context, agentID string, limit int) ([]memory.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, agent_id, role, content, created_at
		 FROM agent_memory WHERE agent_id = $1
		 ORDER BY created_at DESC LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent memory by agent: %w", err)
	}
	return collectMemory(rows)
}

func collectMemory(rows pgx.Rows) ([]memory.Entry, error) {
	defer rows.Close()
	var entries []memory.Entry
	for rows.Next() {
		var e memory.Entry
		err := rows.Scan(&e.ID, &e.RunID, &e.AgentID, &e.Role, &e.Content, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan memory entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
