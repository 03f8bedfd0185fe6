package toolserver

import (
	"context"
	"fmt"
)

// Descriptor holds the configuration for one external tool server.
type Descriptor struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Transport string            `json:"transport"` // only "stdio" today
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// Validate checks that a descriptor is runnable.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("tool server descriptor requires an id")
	}
	if d.Transport != "" && d.Transport != "stdio" {
		return fmt.Errorf("unsupported tool server transport: %s", d.Transport)
	}
	if d.Command == "" {
		return fmt.Errorf("tool server %s requires a command", d.ID)
	}
	return nil
}

// Handle is one invokable tool exposed by a bound server.
type Handle struct {
	ServerID    string                 `json:"server_id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`

	invoke func(ctx context.Context, args map[string]interface{}) (string, error)
}

// Call invokes the tool on its server.
func (h Handle) Call(ctx context.Context, args map[string]interface{}) (string, error) {
	if h.invoke == nil {
		return "", fmt.Errorf("tool %s is not bound", h.Name)
	}
	return h.invoke(ctx, args)
}

// NewHandle builds a Handle with an explicit invoke function. Intended for
// tests and for adapters that expose tools without an MCP server behind them.
func NewHandle(serverID, name, description string, schema map[string]interface{}, invoke func(ctx context.Context, args map[string]interface{}) (string, error)) Handle {
	return Handle{
		ServerID:    serverID,
		Name:        name,
		Description: description,
		InputSchema: schema,
		invoke:      invoke,
	}
}
