// Package mcppool opens sessions to MCP tool servers for the duration of one
// task and routes tool calls back to the session that owns each tool.
package mcppool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lydakis/mcpxagent/internal/config"
	"github.com/mark3labs/mcp-go/mcp"
)

const protocolVersion = "2025-11-25"

// ClientName and ClientVersion identify this client in the MCP handshake.
var (
	ClientName    = "mcpxagent"
	ClientVersion = "0.1.0"
)

// connection wraps an initialized MCP client with its transport.
type connection struct {
	listTools func(ctx context.Context) ([]mcp.Tool, error)
	callTool  func(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	close     func() error
}

// connectFunc opens and initializes a connection to one server.
type connectFunc func(ctx context.Context, server string, scfg config.ServerConfig) (*connection, error)

func connect(ctx context.Context, server string, scfg config.ServerConfig) (*connection, error) {
	switch {
	case scfg.IsStdio():
		return connectStdio(ctx, scfg)
	case scfg.IsHTTP():
		return connectHTTP(ctx, scfg)
	default:
		return nil, fmt.Errorf("server %s: no command or url configured", server)
	}
}

func initializeRequest() mcp.InitializeRequest {
	return mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: protocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    ClientName,
				Version: ClientVersion,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}
}

type mcpClient interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

func newConnection(c mcpClient, closeFn func() error) *connection {
	return &connection{
		listTools: func(ctx context.Context) ([]mcp.Tool, error) {
			result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
			if err != nil {
				return nil, err
			}
			return result.Tools, nil
		},
		callTool: func(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
			return c.CallTool(ctx, mcp.CallToolRequest{
				Params: mcp.CallToolParams{
					Name:      name,
					Arguments: args,
				},
			})
		},
		close: closeFn,
	}
}

// inputSchema returns the tool's input schema as a generic JSON object.
func inputSchema(t mcp.Tool) (map[string]any, error) {
	raw := t.RawInputSchema
	if len(raw) == 0 {
		b, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("parsing input schema: %w", err)
	}
	if schema == nil {
		schema = map[string]any{}
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	if schema["type"] == "object" {
		if _, ok := schema["properties"]; !ok {
			schema["properties"] = map[string]any{}
		}
	}
	return schema, nil
}
