package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/CrewForge/internal/domain"
	"github.com/Strob0t/CrewForge/internal/domain/agent"
)

const agentColumns = `id, team_id, display_name, role, personality, provider, model,
	scopes, memory_summary, created_at, updated_at`

func scanAgent(row pgx.Row) (*agent.Agent, error) {
	var a agent.Agent
	err := row.Scan(&a.ID, &a.TeamID, &a.DisplayName, &a.Role, &a.Personality,
		&a.Provider, &a.Model, &a.Scopes, &a.MemorySummary, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListAgents(ctx context.Context, teamID string) ([]agent.Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE team_id = $1 ORDER BY created_at ASC`,
		teamID)
	if err != nil {
		return nil, fmt.Errorf("list agents for team %s: %w", teamID, err)
	}
	defer rows.Close()

	var agents []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

func (s *Store) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get agent %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return a, nil
}

func (s *Store) CreateAgent(ctx context.Context, a *agent.Agent) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO agents (team_id, display_name, role, personality, provider, model, scopes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		a.TeamID, a.DisplayName, a.Role, a.Personality, a.Provider, a.Model, a.Scopes)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (s *Store) UpdateAgentScopes(ctx context.Context, id, scopes string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE agents SET scopes = $2, updated_at = now() WHERE id = $1`, id, scopes)
	if err != nil {
		return fmt.Errorf("update agent %s scopes: %w", id, err)
	}
	return nil
}

func (s *Store) UpdateAgentMemorySummary(ctx context.Context, id, summary string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE agents SET memory_summary = $2, updated_at = now() WHERE id = $1`, id, summary)
	if err != nil {
		return fmt.Errorf("update agent %s memory summary: %w", id, err)
	}
	return nil
}
