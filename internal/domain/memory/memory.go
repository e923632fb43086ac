// Package memory defines per-agent, per-run memory entries and the rolling
// summary derived from them.
package memory

import (
	"strings"
	"time"
)

const (
	// EntryCap is the stored length limit per memory entry.
	EntryCap = 1000
	// SummaryEntries is how many recent entries feed the rolling summary.
	SummaryEntries = 5
	// summarySnippet is the per-entry length limit inside the summary.
	summarySnippet = 160
)

// Entry is one append-only memory record for an agent within a run.
type Entry struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	AgentID   string    `json:"agent_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Cap truncates content to the stored entry limit.
func Cap(content string) string {
	if len(content) > EntryCap {
		return content[:EntryCap]
	}
	return content
}

// Summarize folds recent entries (newest-first input) into the agent's
// rolling memory summary, oldest to newest.
func Summarize(recent []Entry) string {
	parts := make([]string, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		content := recent[i].Content
		if len(content) > summarySnippet {
			content = content[:summarySnippet]
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, " | ")
}
