package policy

import (
	"encoding/json"
	"strings"
)

// DefaultRoleScopes is the built-in capability grant per role, used when a
// project carries no override.
var DefaultRoleScopes = map[string]string{
	"Product Owner":    "system:run,file:read,file:write,git:status,git:diff,git:branch,git:commit,git:pr",
	"Delivery Manager": "system:run,file:read,file:write,git:status,git:diff,git:branch,git:commit,git:pr",
	"Tech Lead":        "system:run,file:read,file:write,git:status,git:diff,git:branch,git:commit,git:pr",
	"Developer":        "system:run,file:read,file:write,git:status,git:diff,git:branch,git:commit,git:pr",
	"QA Engineer":      "system:run,file:read,git:status,git:diff",
	"Release Manager":  "system:run,file:read,file:write,git:status,git:diff,git:branch,git:commit,git:pr",
}

// ParseScopes splits a comma-separated grant list into trimmed tokens.
func ParseScopes(raw string) []string {
	parts := strings.Split(raw, ",")
	scopes := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			scopes = append(scopes, p)
		}
	}
	return scopes
}

// NormalizeScopes deduplicates a comma-separated grant list, preserving order.
func NormalizeScopes(raw string) string {
	seen := make(map[string]bool)
	var cleaned []string
	for _, s := range ParseScopes(raw) {
		if seen[s] {
			continue
		}
		seen[s] = true
		cleaned = append(cleaned, s)
	}
	return strings.Join(cleaned, ",")
}

// ParseRoleScopeOverrides decodes the per-project role→scopes JSON override.
// Malformed input yields an empty map; governance falls back to defaults.
func ParseRoleScopeOverrides(raw string) map[string]string {
	out := make(map[string]string)
	if raw == "" {
		return out
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return out
	}
	for key, val := range data {
		if s, ok := val.(string); ok {
			out[key] = s
		}
	}
	return out
}

// RoleScopeConfig is the slice of ProjectSetting that scope resolution needs.
type RoleScopeConfig struct {
	DefaultToolScopes string
	RoleToolScopes    string
	AllowPMMerge      bool
}

// ResolveRoleScopes returns the normalized grant list for a role: project
// override, else built-in default, else the project-wide default, else bare
// system:run. AllowPMMerge additionally grants git:merge to the Product Owner.
func ResolveRoleScopes(role string, cfg RoleScopeConfig) string {
	override := ParseRoleScopeOverrides(cfg.RoleToolScopes)
	scopes := override[role]
	if scopes == "" {
		scopes = DefaultRoleScopes[role]
	}
	if scopes == "" {
		scopes = cfg.DefaultToolScopes
	}
	if scopes == "" {
		scopes = "system:run"
	}
	scopes = NormalizeScopes(scopes)
	if cfg.AllowPMMerge && role == "Product Owner" {
		scopes = NormalizeScopes(scopes + ",git:merge")
	}
	return scopes
}
