// Package chat defines chat messages and the mention-based routing logic
// that decides which agents a free-text message addresses.
package chat

import (
	"regexp"
	"strings"

	"github.com/Strob0t/CrewForge/internal/domain/agent"
)

// Message is one entry in a run's chat log. The chat log is the canonical
// "who said what" record consumed by the idle, mention, and review logic.
type Message struct {
	MessageID string `json:"message_id,omitempty"`
	Agent     string `json:"agent"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// TargetPolicy is the fallback audience when a message mentions nobody.
type TargetPolicy string

const (
	PolicyManagers TargetPolicy = "managers"
	PolicyTeam     TargetPolicy = "team"
)

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9\-]+)`)

// broadcastMentions address the whole team regardless of policy.
var broadcastMentions = map[string]bool{"team": true, "all": true, "everyone": true}

// Mentions extracts all @token mentions from a message, lowercased.
func Mentions(message string) []string {
	matches := mentionPattern.FindAllStringSubmatch(message, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, strings.ToLower(m[1]))
	}
	return tokens
}

// ResolveTargets returns the agents a message addresses. Any broadcast
// mention (team/all/everyone) selects the whole team. Otherwise each mention
// is resolved against display names, space-stripped roles, and the role-alias
// table, and the union of matches is returned. With no resolvable mention the
// project's chat policy decides: "team" selects everyone, anything else the
// manager subset.
func ResolveTargets(agents []agent.Agent, message string, policy TargetPolicy) []agent.Agent {
	mentions := Mentions(message)

	var targets []agent.Agent
	seen := make(map[string]bool)
	for _, mention := range mentions {
		if broadcastMentions[mention] {
			return agents
		}
		for i := range agents {
			if !matchesMention(&agents[i], mention) || seen[agents[i].ID] {
				continue
			}
			seen[agents[i].ID] = true
			targets = append(targets, agents[i])
		}
	}
	if len(targets) > 0 {
		return targets
	}

	if policy == PolicyTeam {
		return agents
	}
	var managers []agent.Agent
	for i := range agents {
		if agents[i].IsManager() {
			managers = append(managers, agents[i])
		}
	}
	return managers
}

func matchesMention(a *agent.Agent, mention string) bool {
	if strings.ToLower(a.DisplayName) == mention {
		return true
	}
	role := strings.ToLower(a.Role)
	if strings.ReplaceAll(role, " ", "") == mention {
		return true
	}
	if alias, ok := agent.RoleAliases[mention]; ok && alias == a.Role {
		return true
	}
	return false
}
