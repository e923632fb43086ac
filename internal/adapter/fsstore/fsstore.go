// Package fsstore implements the artifact port on the local filesystem.
// Each run owns a directory tree:
//
//	<root>/runs/<run-id>/chats/<role>.jsonl
//	<root>/runs/<run-id>/events.jsonl
//	<root>/runs/<run-id>/artifacts/<name>.json
//	<root>/runs/<run-id>/snapshots/<path>
package fsstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Strob0t/CrewForge/internal/domain/chat"
	"github.com/Strob0t/CrewForge/internal/domain/event"
)

// Store writes per-run chat logs, event trails, artifacts, and snapshots
// under a single root directory.
type Store struct {
	root string
	mu   sync.Mutex
}

// New creates a Store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.root, "runs", sanitize(runID))
}

// WriteChat appends one message to the run's chat log for the given role.
func (s *Store) WriteChat(runID, role string, msg chat.Message) error {
	dir := filepath.Join(s.runDir(runID), "chats")
	return s.appendJSONL(filepath.Join(dir, sanitize(role)+".jsonl"), msg)
}

// WriteEvent appends one event to the run's event trail.
func (s *Store) WriteEvent(runID string, ev event.Event) error {
	return s.appendJSONL(filepath.Join(s.runDir(runID), "events.jsonl"), ev)
}

// ReadChats returns the run's full chat history across all roles, ordered by
// timestamp. A run with no chat yet yields an empty history, not an error.
func (s *Store) ReadChats(runID string) ([]chat.Message, error) {
	dir := filepath.Join(s.runDir(runID), "chats")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read chat dir: %w", err)
	}

	var messages []chat.Message
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read chat log %s: %w", entry.Name(), err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var msg chat.Message
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				// Tolerate a torn trailing line from a crashed writer.
				continue
			}
			messages = append(messages, msg)
		}
	}

	// RFC 3339 timestamps sort lexically.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp < messages[j].Timestamp
	})
	return messages, nil
}

// WriteArtifact stores a named artifact document for the run.
func (s *Store) WriteArtifact(runID, name string, payload map[string]any) error {
	dir := filepath.Join(s.runDir(runID), "artifacts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", name, err)
	}
	path := filepath.Join(dir, sanitize(name)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	return nil
}

// WriteSnapshot stores a point-in-time copy of a repo file touched during
// the run. The file path is flattened into the snapshot name.
func (s *Store) WriteSnapshot(runID, filePath, contents string) error {
	dir := filepath.Join(s.runDir(runID), "snapshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, sanitize(filePath))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", filePath, err)
	}
	return nil
}

func (s *Store) appendJSONL(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal jsonl record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append to %s: %w", path, err)
	}
	return nil
}

// sanitize flattens a name into a single safe path component.
func sanitize(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", " ", "_", ":", "_")
	out := replacer.Replace(name)
	if out == "" {
		return "_"
	}
	return out
}
