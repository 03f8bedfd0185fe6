package hub

import (
	"time"

	"github.com/hanif/warden/pkg/agent"
	"github.com/hanif/warden/pkg/backend"
)

// ValidationResult reports config validation findings.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// QueryOptions modifies a single ExecuteQuery call.
type QueryOptions struct {
	// ConversationID keys conversational memory inside the agent. Empty means
	// the session id is used, so all traffic on the session shares one thread.
	ConversationID string `json:"conversation_id,omitempty"`

	// UseRetrieval asks for context injection before the turn runs.
	UseRetrieval bool `json:"use_retrieval,omitempty"`

	// RetrievalID identifies the document scope for the lookup.
	RetrievalID string `json:"retrieval_id,omitempty"`
}

// TranscriptMessage is the caller-facing shape of one conversation turn.
type TranscriptMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// QueryResult is the outcome of one ExecuteQuery call. Errors are carried in
// the value; the call itself never panics.
type QueryResult struct {
	Success  bool                `json:"success"`
	Result   string              `json:"result,omitempty"`
	Messages []TranscriptMessage `json:"messages,omitempty"`
	Events   []agent.Event       `json:"events,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// Status describes a session id's current standing in a registry.
type Status struct {
	Success       bool                `json:"success"`
	Active        bool                `json:"active"`
	Message       string              `json:"message"`
	BackendConfig *backend.Config     `json:"backend_config,omitempty"`
	Messages      []TranscriptMessage `json:"messages,omitempty"`
	NeedsRestore  bool                `json:"needs_restore"`
}

// RegistryStats summarizes a registry for status reporting.
type RegistryStats struct {
	Type       string        `json:"type"`
	Live       int           `json:"live"`
	OldestIdle time.Duration `json:"oldest_idle"`
}
