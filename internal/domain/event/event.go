// Package event defines the in-process event envelope and type constants.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	TypeRunStarted   Type = "run.started"
	TypeRunCompleted Type = "run.completed"
	TypeRunFailed    Type = "run.failed"
	TypeRunPaused    Type = "run.paused"
	TypeRunResumed   Type = "run.resumed"

	TypeJobStepStarted   Type = "job.step.started"
	TypeJobStepCompleted Type = "job.step.completed"
	TypeJobCompleted     Type = "job.completed"
	TypeJobFailed        Type = "job.failed"

	TypeTaskCreated   Type = "task.created"
	TypeTaskStarted   Type = "task.started"
	TypeTaskCompleted Type = "task.completed"
	TypeTaskFailed    Type = "task.failed"
	TypeTaskRequeued  Type = "task.requeued"
	TypeTaskReviewed  Type = "task.reviewed"

	TypeToolRequested     Type = "tool.requested"
	TypeToolCompleted     Type = "tool.completed"
	TypeApprovalRequested Type = "approval.requested"
	TypeApprovalDecided   Type = "approval.decided"
	TypePRRequested       Type = "pr.requested"

	TypeChatMessage   Type = "chat.message"
	TypeAgentResponse Type = "agent.response"
	TypeMemoryUpdated Type = "memory.updated"

	TypePhaseScoping       Type = "phase.scoping"
	TypePhasePlanning      Type = "phase.planning"
	TypePhaseCollaborating Type = "phase.collaborating"
	TypePhaseExecuting     Type = "phase.executing"
	TypePhaseVerifying     Type = "phase.verifying"
)

// Event is the envelope published on the bus and mirrored to external sinks.
type Event struct {
	Type      Type           `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// New builds an event stamped with the current time.
func New(t Type, payload map[string]any) Event {
	return Event{Type: t, Payload: payload, Timestamp: time.Now().UTC()}
}

// JSON renders the event for wire sinks (websocket, JSONL files).
func (e Event) JSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return []byte(`{"type":"` + string(e.Type) + `"}`)
	}
	return data
}
