// Package policy implements the pure decision function that gates every
// agent-initiated tool call: capability scopes plus risk-driven approval.
package policy

import "strings"

// RiskLevel classifies a tool's blast radius.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Elevated reports whether the level requires approval absent a global override.
func (r RiskLevel) Elevated() bool {
	switch RiskLevel(strings.ToLower(string(r))) {
	case RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Decision reasons returned by Evaluate. Missing scopes are a hard denial,
// never escalated to approval.
const (
	ReasonAllowed          = "allowed"
	ReasonMissingScopes    = "missing_required_scopes"
	ReasonApprovalRequired = "approval_required"
)

// Decision is the outcome of evaluating one tool request.
type Decision struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason"`
	RequiresApproval bool   `json:"requires_approval,omitempty"`
}

// Input carries everything Evaluate needs. Evaluate is a pure function:
// identical inputs always yield identical decisions.
type Input struct {
	ActorScopes    []string
	RequiredScopes []string
	Risk           RiskLevel
	Approved       bool
	AllowHighRisk  bool
}

// Evaluate decides whether an actor may perform a risk-rated action.
// Required scopes must be a subset of the actor's scopes or the request is
// denied outright. High and critical risk additionally require either the
// global high-risk override or an explicit per-request approval.
func Evaluate(in Input) Decision {
	actor := toSet(in.ActorScopes)
	for _, req := range in.RequiredScopes {
		req = strings.TrimSpace(req)
		if req == "" {
			continue
		}
		if !actor[req] {
			return Decision{Allowed: false, Reason: ReasonMissingScopes}
		}
	}

	if in.Risk.Elevated() && !in.AllowHighRisk && !in.Approved {
		return Decision{Allowed: false, Reason: ReasonApprovalRequired, RequiresApproval: true}
	}

	return Decision{Allowed: true, Reason: ReasonAllowed}
}

func toSet(scopes []string) map[string]bool {
	set := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s != "" {
			set[s] = true
		}
	}
	return set
}
