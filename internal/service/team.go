package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/CrewForge/internal/domain"
	"github.com/Strob0t/CrewForge/internal/domain/agent"
	"github.com/Strob0t/CrewForge/internal/domain/policy"
	"github.com/Strob0t/CrewForge/internal/domain/project"
	"github.com/Strob0t/CrewForge/internal/port/cache"
	"github.com/Strob0t/CrewForge/internal/port/database"
)

// rosterTTL bounds staleness of cached team rosters read every tick.
const rosterTTL = 30 * time.Second

// TeamService creates teams, expands presets into agents, and serves cached
// team rosters to the scheduler loops.
type TeamService struct {
	store  database.Store
	cache  cache.Cache
	logger *slog.Logger
}

// NewTeamService creates a TeamService. cache may be nil.
func NewTeamService(store database.Store, c cache.Cache, logger *slog.Logger) *TeamService {
	return &TeamService{store: store, cache: c, logger: logger}
}

// CreateFromPreset creates a team and populates it with agents for every
// role in the named preset (small, medium, large). Duplicate roles get
// numbered display names.
func (s *TeamService) CreateFromPreset(ctx context.Context, projectID, name, preset, providerName, model string) (*project.Team, []agent.Agent, error) {
	roles, ok := project.Presets[preset]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown team preset %q", domain.ErrInvalid, preset)
	}

	team := &project.Team{ProjectID: projectID, Name: name, Template: preset}
	if err := s.store.CreateTeam(ctx, team); err != nil {
		return nil, nil, fmt.Errorf("create team: %w", err)
	}

	counts := make(map[string]int)
	agents := make([]agent.Agent, 0, len(roles))
	for _, role := range roles {
		counts[role]++
		display := role
		if counts[role] > 1 {
			display = fmt.Sprintf("%s %d", role, counts[role])
		}
		a := agent.Agent{
			TeamID:      team.ID,
			DisplayName: display,
			Role:        role,
			Provider:    providerName,
			Model:       model,
			Scopes:      policy.ResolveRoleScopes(role, policy.RoleScopeConfig{}),
		}
		if err := s.store.CreateAgent(ctx, &a); err != nil {
			return nil, nil, fmt.Errorf("create agent %s: %w", display, err)
		}
		agents = append(agents, a)
	}
	return team, agents, nil
}

// Roster returns the team's agents, cached briefly for the per-tick readers.
func (s *TeamService) Roster(ctx context.Context, teamID string) ([]agent.Agent, error) {
	key := "roster:" + teamID
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var agents []agent.Agent
			if json.Unmarshal(data, &agents) == nil {
				return agents, nil
			}
		}
	}

	agents, err := s.store.ListAgents(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list agents for team %s: %w", teamID, err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(agents); err == nil {
			_ = s.cache.Set(ctx, key, data, rosterTTL)
		}
	}
	return agents, nil
}

// Invalidate drops the cached roster after a membership or scope change.
func (s *TeamService) Invalidate(ctx context.Context, teamID string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "roster:"+teamID)
	}
}
