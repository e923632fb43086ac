// Package gitlocal implements the git tool executors using local git CLI
// commands, serialized through a shared concurrency pool.
package gitlocal

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Strob0t/CrewForge/internal/domain/tool"
	"github.com/Strob0t/CrewForge/internal/git"
)

// Repo serves the git.* tools against one repository working copy.
type Repo struct {
	path string
	pool *git.Pool
}

// NewRepo creates a Repo executor set for the working copy at path. The pool
// bounds concurrent git invocations across all repos sharing it.
func NewRepo(path string, pool *git.Pool) *Repo {
	return &Repo{path: path, pool: pool}
}

// Status returns the executor for git.status.
func (r *Repo) Status() func(ctx context.Context, req tool.Request) (tool.Result, error) {
	return func(ctx context.Context, _ tool.Request) (tool.Result, error) {
		release, err := r.pool.Acquire(ctx)
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		defer release()

		branch, err := r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		porcelain, err := r.git(ctx, "status", "--porcelain")
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		var modified, untracked []string
		for _, line := range strings.Split(porcelain, "\n") {
			if len(line) < 3 {
				continue
			}
			file := strings.TrimSpace(line[3:])
			if strings.HasPrefix(line, "??") {
				untracked = append(untracked, file)
			} else {
				modified = append(modified, file)
			}
		}
		return tool.Result{Success: true, Output: map[string]any{
			"branch":    strings.TrimSpace(branch),
			"modified":  modified,
			"untracked": untracked,
			"dirty":     len(modified)+len(untracked) > 0,
		}}, nil
	}
}

// Diff returns the executor for git.diff. An optional "path" argument narrows
// the diff to one file.
func (r *Repo) Diff() func(ctx context.Context, req tool.Request) (tool.Result, error) {
	return func(ctx context.Context, req tool.Request) (tool.Result, error) {
		args := []string{"diff"}
		if path, ok := req.Arguments["path"].(string); ok && path != "" {
			args = append(args, "--", path)
		}

		release, err := r.pool.Acquire(ctx)
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		defer release()

		diff, err := r.git(ctx, args...)
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		return tool.Result{Success: true, Output: map[string]any{"diff": diff}}, nil
	}
}

// Branch returns the executor for git.branch: list branches, or create and
// switch to the "name" argument when present.
func (r *Repo) Branch() func(ctx context.Context, req tool.Request) (tool.Result, error) {
	return func(ctx context.Context, req tool.Request) (tool.Result, error) {
		name, _ := req.Arguments["name"].(string)

		release, err := r.pool.Acquire(ctx)
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		defer release()

		if name != "" {
			if _, err := r.git(ctx, "checkout", "-B", name); err != nil {
				return tool.Result{Success: false, Error: err.Error()}, nil
			}
			return tool.Result{Success: true, Output: map[string]any{"branch": name, "created": true}}, nil
		}

		listed, err := r.git(ctx, "branch", "--list", "--format=%(refname:short)")
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		var branches []string
		for _, b := range strings.Split(listed, "\n") {
			if b = strings.TrimSpace(b); b != "" {
				branches = append(branches, b)
			}
		}
		return tool.Result{Success: true, Output: map[string]any{"branches": branches}}, nil
	}
}

// Commit returns the executor for git.commit: stage everything and commit
// with the "message" argument.
func (r *Repo) Commit() func(ctx context.Context, req tool.Request) (tool.Result, error) {
	return func(ctx context.Context, req tool.Request) (tool.Result, error) {
		message, _ := req.Arguments["message"].(string)
		if strings.TrimSpace(message) == "" {
			return tool.Result{Success: false, Error: "message is required"}, nil
		}

		release, err := r.pool.Acquire(ctx)
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		defer release()

		if _, err := r.git(ctx, "add", "-A"); err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		if _, err := r.git(ctx, "commit", "-m", message); err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		out, err := r.git(ctx, "rev-parse", "HEAD")
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		return tool.Result{Success: true, Output: map[string]any{"commit": strings.TrimSpace(out)}}, nil
	}
}

// Merge returns the executor for git.merge: merge the "branch" argument into
// the current branch.
func (r *Repo) Merge() func(ctx context.Context, req tool.Request) (tool.Result, error) {
	return func(ctx context.Context, req tool.Request) (tool.Result, error) {
		branch, _ := req.Arguments["branch"].(string)
		if strings.TrimSpace(branch) == "" {
			return tool.Result{Success: false, Error: "branch is required"}, nil
		}

		release, err := r.pool.Acquire(ctx)
		if err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		defer release()

		if _, err := r.git(ctx, "merge", "--no-ff", branch); err != nil {
			return tool.Result{Success: false, Error: err.Error()}, nil
		}
		return tool.Result{Success: true, Output: map[string]any{"merged": branch}}, nil
	}
}

// CreatePR returns the executor for git.create_pr. There is no remote forge
// here: the executor records the proposed merge so a manager can approve it,
// after which git.merge lands the branch.
func (r *Repo) CreatePR() func(ctx context.Context, req tool.Request) (tool.Result, error) {
	return func(ctx context.Context, req tool.Request) (tool.Result, error) {
		title, _ := req.Arguments["title"].(string)
		branch, _ := req.Arguments["branch"].(string)
		if branch == "" {
			release, err := r.pool.Acquire(ctx)
			if err != nil {
				return tool.Result{Success: false, Error: err.Error()}, nil
			}
			out, gitErr := r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
			release()
			if gitErr != nil {
				return tool.Result{Success: false, Error: gitErr.Error()}, nil
			}
			branch = strings.TrimSpace(out)
		}
		return tool.Result{Success: true, Output: map[string]any{
			"title":  title,
			"branch": branch,
			"status": "proposed",
		}}, nil
	}
}

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.path

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.String(), nil
}
