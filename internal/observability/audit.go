package observability

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Audit event types emitted by the session hub.
const (
	EventSessionStart = "session_start"
	EventSessionEnd   = "session_end"
)

// AuditEvent represents a structured event for the audit log
type AuditEvent struct {
	ID        string                 `json:"event_id"`
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	OwnerID   string                 `json:"owner_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Status    string                 `json:"status"` // "success", "failure"
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Auditor records audit events. The hub depends on this interface so tests
// can capture events in memory.
type Auditor interface {
	Record(ctx context.Context, event AuditEvent)
}

// AuditLogger handles recording and persisting audit events
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

// NewAuditLogger creates an audit logger writing JSON lines to path.
// An empty path falls back to stderr.
func NewAuditLogger(path string) (*AuditLogger, error) {
	if path == "" {
		return &AuditLogger{
			logger: zerolog.New(os.Stderr).With().Timestamp().Logger(),
		}, nil
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return &AuditLogger{
		logger: zerolog.New(file).With().Timestamp().Logger(),
		file:   file,
	}, nil
}

// Record emits an audit event to the log file
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("event_id", event.ID).
		Str("type", event.Type).
		Str("owner_id", event.OwnerID).
		Str("session_id", event.SessionID).
		Str("status", event.Status)

	if event.Metadata != nil {
		entry = entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// Close closes the audit logger's file handle
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}
