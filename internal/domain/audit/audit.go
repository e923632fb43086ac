// Package audit defines the append-only decision trail written by the broker.
package audit

import (
	"encoding/json"
	"time"
)

// Actions recorded per tool call: exactly one request entry before any
// execution, and one result entry per executed tool.
const (
	ActionToolRequest = "tool.request"
	ActionToolResult  = "tool.result"
)

// Entry is one row in the audit trail. Request and Result are JSON snapshots
// of the tool arguments and outcome so every effect is replayable.
type Entry struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id,omitempty"`
	JobID     string          `json:"job_id,omitempty"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	ToolName  string          `json:"tool_name,omitempty"`
	RiskLevel string          `json:"risk_level,omitempty"`
	Decision  string          `json:"decision"`
	Request   json.RawMessage `json:"request,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
