package agent

import "strings"

// keyword buckets scored against task text. A bucket whose name appears in
// the candidate's role string counts double.
var assignKeywords = map[string][]string{
	"qa":     {"test", "bug", "regression", "qa", "verify"},
	"devops": {"deploy", "ci", "pipeline", "infra", "release"},
	"docs":   {"docs", "documentation", "readme", "guide"},
	"dev":    {"code", "implement", "fix", "refactor", "build"},
	"pm":     {"scope", "plan", "requirements", "roadmap"},
}

// Assign picks the best agent for a task by keyword-weighted role matching
// against the task text. A pre-assigned role wins outright if present on the
// team. Falls back to the first agent when every score is zero.
func Assign(agents []Agent, assignedRole, title, description string) *Agent {
	if len(agents) == 0 {
		return nil
	}
	if assignedRole != "" {
		for i := range agents {
			if agents[i].Role == assignedRole {
				return &agents[i]
			}
		}
	}

	text := strings.ToLower(title + " " + description)
	best := 0
	bestIdx := -1
	for i := range agents {
		score := scoreAgent(&agents[i], text)
		if score > best {
			best = score
			bestIdx = i
		}
	}
	if bestIdx >= 0 {
		return &agents[bestIdx]
	}
	return &agents[0]
}

func scoreAgent(a *Agent, text string) int {
	role := strings.ToLower(a.Role)
	score := 0
	for bucket, words := range assignKeywords {
		hits := 0
		for _, w := range words {
			if strings.Contains(text, w) {
				hits++
			}
		}
		if strings.Contains(role, bucket) {
			score += hits * 2
		} else {
			score += hits
		}
	}
	return score
}
