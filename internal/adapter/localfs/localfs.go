// Package localfs implements the file tool executors (file.read, file.write,
// file.append, file.replace) against a jailed repository root.
package localfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Strob0t/CrewForge/internal/domain/tool"
)

// Snapshotter receives a pre-change copy of every file about to be modified.
type Snapshotter interface {
	WriteSnapshot(runID, filePath, contents string) error
}

// Files serves the file.* tools. Every path argument is resolved inside the
// root; escapes are rejected before any filesystem call.
type Files struct {
	root      string
	snapshots Snapshotter
}

// New creates a Files executor set rooted at dir.
func New(root string, snapshots Snapshotter) *Files {
	return &Files{root: root, snapshots: snapshots}
}

// Read returns the executor for file.read.
func (f *Files) Read() func(ctx context.Context, req tool.Request) (tool.Result, error) {
	return func(_ context.Context, req tool.Request) (tool.Result, error) {
		path, err := f.resolve(req)
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		return tool.Result{Success: true, Output: map[string]any{"content": string(data)}}, nil
	}
}

// Write returns the executor for file.write. The previous contents, if any,
// are snapshotted before the overwrite.
func (f *Files) Write() func(ctx context.Context, req tool.Request) (tool.Result, error) {
	return func(_ context.Context, req tool.Request) (tool.Result, error) {
		path, err := f.resolve(req)
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		content, _ := req.Arguments["content"].(string)

		f.snapshot(req, path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		return tool.Result{Success: true, Output: map[string]any{"bytes_written": len(content)}}, nil
	}
}

// Append returns the executor for file.append.
func (f *Files) Append() func(ctx context.Context, req tool.Request) (tool.Result, error) {
	return func(_ context.Context, req tool.Request) (tool.Result, error) {
		path, err := f.resolve(req)
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		content, _ := req.Arguments["content"].(string)

		f.snapshot(req, path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		fh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		defer func() { _ = fh.Close() }()
		if _, err := fh.WriteString(content); err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		return tool.Result{Success: true, Output: map[string]any{"bytes_written": len(content)}}, nil
	}
}

// Replace returns the executor for file.replace: substitute the first
// occurrence of "search" with "replace" in the file.
func (f *Files) Replace() func(ctx context.Context, req tool.Request) (tool.Result, error) {
	return func(_ context.Context, req tool.Request) (tool.Result, error) {
		path, err := f.resolve(req)
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		search, _ := req.Arguments["search"].(string)
		replace, _ := req.Arguments["replace"].(string)
		if search == "" {
			return tool.Result{Success: false, Error: "search is required"}, nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		content := string(data)
		if !strings.Contains(content, search) {
			return tool.Result{Success: false, Error: "search text not found"}, nil
		}

		f.snapshot(req, path)
		updated := strings.Replace(content, search, replace, 1)
		if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		return tool.Result{Success: true, Output: map[string]any{"replaced": true}}, nil
	}
}

func (f *Files) resolve(req tool.Request) (string, error) {
	rel, _ := req.Arguments["path"].(string)
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("path is required")
	}
	abs := filepath.Join(f.root, filepath.Clean("/"+rel))
	if abs != f.root && !strings.HasPrefix(abs, f.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the repository root", rel)
	}
	return abs, nil
}

// snapshot stores the current contents before a mutation. Missing files and
// snapshot failures do not block the edit.
func (f *Files) snapshot(req tool.Request, path string) {
	if f.snapshots == nil || req.RunID == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	rel, _ := filepath.Rel(f.root, path)
	_ = f.snapshots.WriteSnapshot(req.RunID, rel, string(data))
}
