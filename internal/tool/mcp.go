package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voxgate/voxgate/pkg/provider/llm"
)

// MCPTransport selects how to reach an external MCP tool server.
type MCPTransport string

const (
	// MCPTransportStdio launches the server as a subprocess and speaks the
	// protocol over its stdin/stdout.
	MCPTransportStdio MCPTransport = "stdio"

	// MCPTransportStreamableHTTP connects to a remote server over HTTP.
	MCPTransportStreamableHTTP MCPTransport = "streamable-http"
)

// IsValid reports whether t is a recognised MCP transport.
func (t MCPTransport) IsValid() bool {
	return t == MCPTransportStdio || t == MCPTransportStreamableHTTP
}

// MCPServerConfig describes how to connect to a single MCP tool server.
type MCPServerConfig struct {
	// Name is a unique human-readable identifier for this server (used in logs).
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism.
	Transport MCPTransport `yaml:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio". Ignored for streamable-http transport.
	Command string `yaml:"command"`

	// URL is the MCP endpoint address used when Transport is "streamable-http".
	URL string `yaml:"url"`
}

// mcpClient is shared across all server connections; the official SDK allows a
// single Client to manage multiple sessions concurrently.
var mcpClient = mcpsdk.NewClient(
	&mcpsdk.Implementation{Name: "voxgate", Version: "1.0.0"},
	nil,
)

// RegisterMCPServer connects to the MCP server described by cfg, discovers its
// tool catalogue, and registers every discovered tool in r. Each registered
// handler routes invocations through the live session; the returned shutdown
// function closes the session.
//
// Returns an error if the transport cannot be established or the initial tool
// listing fails.
func (r *Registry) RegisterMCPServer(ctx context.Context, cfg MCPServerConfig) (shutdown func() error, err error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tool: mcp server config must have a non-empty name")
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case MCPTransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return nil, fmt.Errorf("tool: mcp stdio server %q requires a non-empty command", cfg.Name)
		}
		transport = &mcpsdk.CommandTransport{Command: exec.CommandContext(ctx, executable, args...)}

	case MCPTransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("tool: mcp streamable-http server %q requires a non-empty url", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}

	default:
		return nil, fmt.Errorf("tool: unknown mcp transport %q for server %q", cfg.Transport, cfg.Name)
	}

	session, err := mcpClient.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("tool: connect to mcp server %q: %w", cfg.Name, err)
	}

	// Discover tools using the iterator.
	var discovered []mcpsdk.Tool
	for t, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("tool: list tools for mcp server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, *t)
	}

	for _, mcpTool := range discovered {
		def := llm.ToolDefinition{
			Name:        mcpTool.Name,
			Description: mcpTool.Description,
			Parameters:  schemaToMap(mcpTool.InputSchema),
		}
		if err := r.Register(Tool{Definition: def, Handler: mcpHandler(session, mcpTool.Name)}); err != nil {
			_ = session.Close()
			return nil, err
		}
	}

	return session.Close, nil
}

// mcpHandler builds a [Handler] that routes an invocation through the session.
func mcpHandler(session *mcpsdk.ClientSession, name string) Handler {
	return func(ctx context.Context, args string) (string, error) {
		var argsMap map[string]any
		if args != "" && args != "{}" {
			if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
				return "", fmt.Errorf("tool: invalid args JSON for mcp tool %q: %w", name, err)
			}
		}

		result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      name,
			Arguments: argsMap,
		})
		if err != nil {
			return "", fmt.Errorf("tool: call to mcp tool %q failed: %w", name, err)
		}

		// Concatenate all text content from the result.
		var sb strings.Builder
		for _, c := range result.Content {
			if tc, ok := c.(*mcpsdk.TextContent); ok {
				sb.WriteString(tc.Text)
			}
		}
		if result.IsError {
			return "", fmt.Errorf("tool: mcp tool %q reported an error: %s", name, sb.String())
		}
		return sb.String(), nil
	}
}

// splitCommand splits a command line on spaces into executable + args.
// Quoting is not supported; arguments with spaces require a wrapper script.
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}
