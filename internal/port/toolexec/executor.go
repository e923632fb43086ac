// Package toolexec defines the pluggable tool executor port.
package toolexec

import (
	"context"

	"github.com/Strob0t/CrewForge/internal/domain/tool"
)

// Executor runs one tool. Implementations are registered on the broker by
// exact tool name (e.g. "system.run", "git.merge", "file.write", "mcp.call")
// and may block or suspend on the context.
type Executor interface {
	Execute(ctx context.Context, req tool.Request) (tool.Result, error)
}

// Func adapts a plain function to the Executor interface.
type Func func(ctx context.Context, req tool.Request) (tool.Result, error)

// Execute implements Executor.
func (f Func) Execute(ctx context.Context, req tool.Request) (tool.Result, error) {
	return f(ctx, req)
}
