package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// serverConn is one live connection to a tool server. The binder depends on
// this interface so tests can substitute fakes for real processes.
type serverConn interface {
	Handles(ctx context.Context) ([]Handle, error)
	Close() error
}

// connectFunc establishes a connection for one descriptor.
type connectFunc func(ctx context.Context, desc Descriptor) (serverConn, error)

// mcpConn wraps an MCP SDK client session for a single stdio server.
type mcpConn struct {
	desc    Descriptor
	session *mcpsdk.ClientSession
}

// connectMCP spawns the server process and performs the MCP handshake.
func connectMCP(ctx context.Context, desc Descriptor) (serverConn, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	impl := &mcpsdk.Implementation{
		Name:    "warden",
		Version: "0.1.0",
	}
	client := mcpsdk.NewClient(impl, nil)

	cmd := exec.CommandContext(ctx, desc.Command, desc.Args...)
	if len(desc.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range desc.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	session, err := client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to tool server %s: %w", desc.ID, err)
	}

	return &mcpConn{desc: desc, session: session}, nil
}

// Handles lists the server's tools as invokable handles bound to this
// connection.
func (c *mcpConn) Handles(ctx context.Context) ([]Handle, error) {
	var handles []Handle
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("list tools on %s: %w", c.desc.ID, err)
		}

		schema := inputSchemaMap(tool.InputSchema)
		name := tool.Name
		handles = append(handles, Handle{
			ServerID:    c.desc.ID,
			Name:        name,
			Description: tool.Description,
			InputSchema: schema,
			invoke: func(ctx context.Context, args map[string]interface{}) (string, error) {
				return c.callTool(ctx, name, args)
			},
		})
	}
	return handles, nil
}

// inputSchemaMap converts a tool's advertised JSON schema to the map form
// the backend providers expect. Servers that advertise no schema get a bare
// object so the tool is still callable without arguments.
func inputSchemaMap(schema any) map[string]interface{} {
	fallback := map[string]interface{}{"type": "object"}
	if schema == nil {
		return fallback
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return fallback
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil || len(m) == 0 {
		return fallback
	}
	if _, ok := m["type"]; !ok {
		m["type"] = "object"
	}
	return m
}

func (c *mcpConn) callTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("call tool %s on %s: %w", name, c.desc.ID, err)
	}
	if result.IsError {
		return "", fmt.Errorf("tool %s on %s returned an error", name, c.desc.ID)
	}

	var text string
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			if text != "" {
				text += "\n"
			}
			text += tc.Text
		}
	}
	return text, nil
}

// Close shuts the session down, which also reaps the server process.
func (c *mcpConn) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}
