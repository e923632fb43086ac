// Package artifact defines the port for the per-run file sink: chat logs,
// event trails, artifacts, and file snapshots.
package artifact

import (
	"github.com/Strob0t/CrewForge/internal/domain/chat"
	"github.com/Strob0t/CrewForge/internal/domain/event"
)

// Store is the per-run artifact and chat sink. Chat history read back from
// here is the canonical "who said what" log for the idle, mention, and
// review logic.
type Store interface {
	// WriteChat appends a message to the run's chat log for the given role.
	WriteChat(runID, role string, msg chat.Message) error

	// WriteEvent appends an event to the run's event trail.
	WriteEvent(runID string, ev event.Event) error

	// ReadChats returns the run's full chat history ordered by timestamp.
	ReadChats(runID string) ([]chat.Message, error)

	// WriteArtifact stores a named artifact document for the run.
	WriteArtifact(runID, name string, payload map[string]any) error

	// WriteSnapshot stores a point-in-time copy of a file touched during the run.
	WriteSnapshot(runID, filePath, contents string) error
}
