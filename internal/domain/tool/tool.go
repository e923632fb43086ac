// Package tool defines the tool-call wire contract: requests and results
// flowing through the broker, the inline-JSON call parser, and the
// destructive-command classifier.
package tool

import (
	"github.com/Strob0t/CrewForge/internal/domain/policy"
)

// Request is one tool invocation submitted to the broker.
type Request struct {
	Tool           string           `json:"tool"`
	Arguments      map[string]any   `json:"arguments"`
	Risk           policy.RiskLevel `json:"risk_level"`
	RequiredScopes []string         `json:"required_scopes,omitempty"`
	Actor          string           `json:"actor"`
	Approved       bool             `json:"approved,omitempty"`
	ApprovalID     string           `json:"approval_id,omitempty"`
	RunID          string           `json:"run_id,omitempty"`
	JobID          string           `json:"job_id,omitempty"`
}

// Result is the outcome of a tool invocation. A policy denial is reported
// here as an error string, never as a Go error. The loops surface it as
// chat text and keep going.
type Result struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Well-known broker error strings.
const (
	ErrNotRegistered = "tool_not_registered"
)
