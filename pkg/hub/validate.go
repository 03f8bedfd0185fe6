package hub

import (
	"fmt"

	"github.com/hanif/warden/pkg/backend"
)

// SessionConfig is the input to CreateSession and RestoreSession.
type SessionConfig struct {
	OwnerID       string         `json:"owner_id"`
	ToolServerIDs []string       `json:"tool_server_ids"`
	Backend       backend.Config `json:"backend"`
}

// Validate checks the config before any side effect. An empty tool-server
// list is valid; a session can run on retrieval alone.
func (c SessionConfig) Validate() ValidationResult {
	var errs []string

	if c.OwnerID == "" {
		errs = append(errs, "owner id is required")
	}
	for i, id := range c.ToolServerIDs {
		if id == "" {
			errs = append(errs, fmt.Sprintf("tool server id at index %d is empty", i))
		}
	}
	if err := c.Backend.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}
