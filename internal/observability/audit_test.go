package observability

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger_RecordsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	a, err := NewAuditLogger(path)
	require.NoError(t, err)

	ctx := context.Background()
	a.Record(ctx, AuditEvent{
		Type:      EventSessionStart,
		OwnerID:   "owner-1",
		SessionID: "sess-1",
		Status:    "success",
		Metadata:  map[string]interface{}{"provider": "anthropic"},
	})
	a.Record(ctx, AuditEvent{
		Type:      EventSessionEnd,
		OwnerID:   "owner-1",
		SessionID: "sess-1",
		Status:    "failure",
	})
	require.NoError(t, a.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "session_start", first["type"])
	assert.Equal(t, "sess-1", first["session_id"])
	assert.NotEmpty(t, first["event_id"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "session_end", second["type"])
	assert.Equal(t, "failure", second["status"])
}

func TestAuditLogger_FillsIDAndTimestamp(t *testing.T) {
	a, err := NewAuditLogger("")
	require.NoError(t, err)
	defer a.Close()

	// Explicit values survive untouched
	event := AuditEvent{
		ID:        "fixed-id",
		Type:      EventSessionStart,
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	a.Record(context.Background(), event)
}

func TestMetrics_Registered(t *testing.T) {
	EnsureRegistered()

	// Recording must not panic on any label combination
	SetActiveSessions("interactive", 3)
	RecordSessionCreated("interactive")
	RecordQuery("embedded", 250*time.Millisecond, true)
	RecordQuery("embedded", time.Second, false)
	RecordEviction("interactive")
	RecordCleanupFailure("interactive")
	RecordCleanupTimeout("embedded")
	RecordBindFailure("fs")

	assert.NotNil(t, Handler())
}
