// Package shellexec implements the "system.run" tool executor on top of
// os/exec, jailed to a working directory.
package shellexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Strob0t/CrewForge/internal/domain/tool"
)

// DefaultTimeout bounds a single shell command.
const DefaultTimeout = 2 * time.Minute

// Executor runs shell commands inside a repository working directory.
type Executor struct {
	root    string
	timeout time.Duration
}

// New creates an Executor rooted at dir.
func New(root string) *Executor {
	return &Executor{root: root, timeout: DefaultTimeout}
}

// SetTimeout overrides the per-command timeout.
func (e *Executor) SetTimeout(d time.Duration) {
	e.timeout = d
}

// Execute runs the "command" argument via sh -c in the jail root. The command
// never escapes the root: the working directory is forced and cwd arguments
// are resolved inside it.
func (e *Executor) Execute(ctx context.Context, req tool.Request) (tool.Result, error) {
	command, _ := req.Arguments["command"].(string)
	if strings.TrimSpace(command) == "" {
		return tool.Result{Success: false, Error: "command is required"}, nil
	}

	dir := e.root
	if cwd, ok := req.Arguments["cwd"].(string); ok && cwd != "" {
		resolved, err := e.resolve(cwd)
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		dir = resolved
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return tool.Result{Success: false, Error: runErr.Error()}, nil
		}
	}

	return tool.Result{
		Success: exitCode == 0,
		Output: map[string]any{
			"stdout":    stdout.String(),
			"stderr":    stderr.String(),
			"exit_code": exitCode,
		},
	}, nil
}

func (e *Executor) resolve(rel string) (string, error) {
	abs := filepath.Join(e.root, filepath.Clean("/"+rel))
	if abs != e.root && !strings.HasPrefix(abs, e.root+string(filepath.Separator)) {
		return "", fmt.Errorf("cwd %q escapes the working root", rel)
	}
	return abs, nil
}
