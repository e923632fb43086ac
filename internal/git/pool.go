// Package git provides shared utilities for git CLI operations.
package git

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many git subprocesses run at once across all working
// copies. A tool executor holds one slot for its whole operation, which may
// span several git commands, so multi-command operations never interleave
// with each other under load.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool that allows at most limit concurrent git operations.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Acquire blocks until a slot is free and returns the function that gives
// it back. The caller must invoke release exactly once, usually via defer.
// Returns ctx.Err() if the context is cancelled while waiting. A nil pool
// hands out a no-op release so executors keep working without one.
func (p *Pool) Acquire(ctx context.Context) (release func(), err error) {
	if p == nil || p.sem == nil {
		return func() {}, nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { p.sem.Release(1) }, nil
}
