package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/CrewForge/internal/domain"
	"github.com/Strob0t/CrewForge/internal/domain/settings"
	"github.com/Strob0t/CrewForge/internal/port/cache"
	"github.com/Strob0t/CrewForge/internal/port/database"
)

// settingsTTL bounds how stale a cached ProjectSetting can get. The
// scheduler loops read settings every tick, so this is the knob that keeps
// those reads off the database.
const settingsTTL = 30 * time.Second

// SettingsService serves per-project governance settings through a
// read-through cache.
type SettingsService struct {
	store  database.Store
	cache  cache.Cache
	logger *slog.Logger
}

// NewSettingsService creates a SettingsService. cache may be nil; reads then
// always hit the store.
func NewSettingsService(store database.Store, c cache.Cache, logger *slog.Logger) *SettingsService {
	return &SettingsService{store: store, cache: c, logger: logger}
}

// Get returns the project's settings, falling back to defaults when the
// project has never been configured.
func (s *SettingsService) Get(ctx context.Context, projectID string) *settings.ProjectSetting {
	key := "settings:" + projectID
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var ps settings.ProjectSetting
			if json.Unmarshal(data, &ps) == nil {
				return &ps
			}
		}
	}

	ps, err := s.store.GetSettings(ctx, projectID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("settings lookup failed", "project_id", projectID, "error", err)
		}
		ps = settings.Defaults(projectID)
	}

	if s.cache != nil {
		if data, err := json.Marshal(ps); err == nil {
			_ = s.cache.Set(ctx, key, data, settingsTTL)
		}
	}
	return ps
}

// Update persists new settings and invalidates the cache entry.
func (s *SettingsService) Update(ctx context.Context, ps *settings.ProjectSetting) error {
	if ps.ChatTargetPolicy == "" {
		ps.ChatTargetPolicy = "managers"
	}
	if ps.TaskRetryLimit <= 0 {
		ps.TaskRetryLimit = settings.DefaultTaskRetryLimit
	}
	if err := s.store.UpsertSettings(ctx, ps); err != nil {
		return fmt.Errorf("update settings for %s: %w", ps.ProjectID, err)
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "settings:"+ps.ProjectID)
	}
	return nil
}
