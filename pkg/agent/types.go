package agent

import (
	"strings"
	"time"

	"github.com/hanif/warden/pkg/backend"
)

// EventType identifies a turn event.
type EventType string

const (
	EventToken     EventType = "token"
	EventToolStart EventType = "tool_start"
	EventToolEnd   EventType = "tool_end"
)

// Event is one element of a turn's event stream.
type Event struct {
	Type   EventType `json:"type"`
	Text   string    `json:"text,omitempty"`    // token payload
	Tool   string    `json:"tool,omitempty"`    // tool name for tool events
	CallID string    `json:"call_id,omitempty"` // tool call id
	Error  string    `json:"error,omitempty"`   // tool_end failure, if any
	At     time.Time `json:"at"`
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	Response   string              `json:"response"`
	Transcript []ThreadMessage     `json:"transcript"`
	ToolCalls  []backend.ToolCall  `json:"tool_calls,omitempty"`
	Usage      *backend.TokenUsage `json:"usage,omitempty"`
}

// ThreadMessage is one stored conversation turn.
type ThreadMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// IsRetryableError checks if a backend error should be retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	// Network errors
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "timeout") {
		return true
	}

	// Rate limits
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") {
		return true
	}

	// Server errors
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}

	return false
}
