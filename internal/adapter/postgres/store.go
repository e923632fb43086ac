package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/CrewForge/internal/domain"
	"github.com/Strob0t/CrewForge/internal/domain/project"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Projects and teams ---

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, repo_url, repo_local_path, default_branch, overview, created_at
		 FROM projects WHERE id = $1`, id)

	var p project.Project
	err := row.Scan(&p.ID, &p.Name, &p.RepoURL, &p.RepoLocalPath, &p.DefaultBranch, &p.Overview, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get project %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) CreateProject(ctx context.Context, p *project.Project) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO projects (name, repo_url, repo_local_path, default_branch, overview)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		p.Name, p.RepoURL, p.RepoLocalPath, p.DefaultBranch, p.Overview)
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *Store) GetTeam(ctx context.Context, id string) (*project.Team, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, name, template, created_at FROM teams WHERE id = $1`, id)

	var t project.Team
	err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Template, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get team %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get team %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) CreateTeam(ctx context.Context, t *project.Team) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO teams (project_id, name, template) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		t.ProjectID, t.Name, t.Template)
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

// --- Budgets ---

func (s *Store) GetBudget(ctx context.Context, projectID string) (*project.Budget, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, usd_limit, usd_spent, created_at
		 FROM project_budgets WHERE project_id = $1`, projectID)

	var b project.Budget
	err := row.Scan(&b.ID, &b.ProjectID, &b.LimitUSD, &b.SpentUSD, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get budget for %s: %w", projectID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get budget for %s: %w", projectID, err)
	}
	return &b, nil
}

func (s *Store) UpsertBudget(ctx context.Context, b *project.Budget) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO project_budgets (project_id, usd_limit)
		 VALUES ($1, $2)
		 ON CONFLICT (project_id) DO UPDATE SET usd_limit = EXCLUDED.usd_limit
		 RETURNING id, usd_spent, created_at`,
		b.ProjectID, b.LimitUSD)
	if err := row.Scan(&b.ID, &b.SpentUSD, &b.CreatedAt); err != nil {
		return fmt.Errorf("upsert budget for %s: %w", b.ProjectID, err)
	}
	return nil
}

func (s *Store) AddBudgetSpend(ctx context.Context, projectID string, usd float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE project_budgets SET usd_spent = usd_spent + $2 WHERE project_id = $1`,
		projectID, usd)
	if err != nil {
		return fmt.Errorf("add budget spend for %s: %w", projectID, err)
	}
	return nil
}
