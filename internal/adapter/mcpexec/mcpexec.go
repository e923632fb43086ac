// Package mcpexec implements the "mcp.call" tool executor: it forwards a
// tool invocation to an external MCP server over streamable HTTP.
package mcpexec

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpprotocol "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/CrewForge/internal/domain/tool"
)

// CallTimeout bounds one forwarded MCP invocation, handshake included.
const CallTimeout = 60 * time.Second

// Executor forwards mcp.call requests to configured MCP endpoints. Clients
// are created per endpoint on first use and reused across calls.
type Executor struct {
	endpoints []string

	mu      sync.Mutex
	clients map[string]*mcpclient.Client
}

// New creates an Executor restricted to the given endpoint allowlist. An
// empty allowlist defers endpoint vetting to the caller.
func New(endpoints []string) *Executor {
	return &Executor{
		endpoints: endpoints,
		clients:   make(map[string]*mcpclient.Client),
	}
}

// Execute implements toolexec.Executor. The request names the target
// endpoint, the remote tool, and the arguments to forward. Endpoints outside
// the allowlist are rejected.
func (e *Executor) Execute(ctx context.Context, req tool.Request) (tool.Result, error) {
	endpoint, _ := req.Arguments["endpoint"].(string)
	remoteTool, _ := req.Arguments["tool"].(string)
	if endpoint == "" || remoteTool == "" {
		return tool.Result{Success: false, Error: "endpoint and tool are required"}, nil
	}
	if !e.allowed(endpoint) {
		return tool.Result{Success: false, Error: fmt.Sprintf("mcp endpoint %s is not configured", endpoint)}, nil
	}

	args, _ := req.Arguments["arguments"].(map[string]any)

	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	client, err := e.client(ctx, endpoint)
	if err != nil {
		return tool.Result{Success: false, Error: err.Error()}, nil
	}

	callReq := mcpprotocol.CallToolRequest{}
	callReq.Params.Name = remoteTool
	callReq.Params.Arguments = args

	callResult, err := client.CallTool(ctx, callReq)
	if err != nil {
		e.evict(endpoint)
		return tool.Result{Success: false, Error: fmt.Sprintf("mcp call failed: %v", err)}, nil
	}

	var parts []string
	for _, content := range callResult.Content {
		if text, ok := content.(mcpprotocol.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	output := map[string]any{"content": strings.Join(parts, "\n")}
	if callResult.IsError {
		return tool.Result{Success: false, Output: output, Error: "mcp tool reported an error"}, nil
	}
	return tool.Result{Success: true, Output: output}, nil
}

func (e *Executor) allowed(endpoint string) bool {
	if len(e.endpoints) == 0 {
		return true
	}
	for _, ep := range e.endpoints {
		if ep == endpoint {
			return true
		}
	}
	return false
}

func (e *Executor) client(ctx context.Context, endpoint string) (*mcpclient.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.clients[endpoint]; ok {
		return c, nil
	}

	c, err := mcpclient.NewStreamableHttpClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("create mcp client for %s: %w", endpoint, err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start mcp client for %s: %w", endpoint, err)
	}

	initReq := mcpprotocol.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpprotocol.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpprotocol.Implementation{
		Name:    "crewforge",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp initialize for %s: %w", endpoint, err)
	}

	e.clients[endpoint] = c
	return c, nil
}

func (e *Executor) evict(endpoint string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.clients[endpoint]; ok {
		_ = c.Close()
		delete(e.clients, endpoint)
	}
}

// Close shuts down every cached client.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ep, c := range e.clients {
		_ = c.Close()
		delete(e.clients, ep)
	}
}
