// Package settings persists warden's durable configuration: owner profiles,
// the tool-server catalog, and saved per-session settings used by session
// restoration.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/hanif/warden/pkg/backend"
	"github.com/hanif/warden/pkg/toolserver"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("settings: not found")

// OwnerProfile describes an owning account.
type OwnerProfile struct {
	ID                string   `json:"id"`
	RetrievalEnabled  bool     `json:"retrieval_enabled"`
	RetrievalID       string   `json:"retrieval_id,omitempty"`
	ActiveToolServers []string `json:"active_tool_servers,omitempty"`
}

// SavedSession is the durable snapshot used to restore a session.
type SavedSession struct {
	SessionID     string         `json:"session_id"`
	OwnerID       string         `json:"owner_id"`
	ToolServerIDs []string       `json:"tool_server_ids"`
	Backend       backend.Config `json:"backend"`
	SavedAt       time.Time      `json:"saved_at"`
}

// SQLiteStore persists settings in a single sqlite database.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the settings database at path.
func Open(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS owners (
			id TEXT PRIMARY KEY,
			retrieval_enabled INTEGER NOT NULL DEFAULT 0,
			retrieval_id TEXT NOT NULL DEFAULT '',
			active_tool_servers TEXT NOT NULL DEFAULT '[]'
		);

		CREATE TABLE IF NOT EXISTS tool_servers (
			id TEXT PRIMARY KEY,
			descriptor TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS saved_sessions (
			session_id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			tool_server_ids TEXT NOT NULL DEFAULT '[]',
			backend_config TEXT NOT NULL,
			saved_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_saved_sessions_owner ON saved_sessions(owner_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create settings schema: %w", err)
	}
	return nil
}

// UpsertOwner inserts or replaces an owner profile.
func (s *SQLiteStore) UpsertOwner(ctx context.Context, profile OwnerProfile) error {
	if profile.ID == "" {
		return fmt.Errorf("owner id cannot be empty")
	}

	servers, err := json.Marshal(profile.ActiveToolServers)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO owners (id, retrieval_enabled, retrieval_id, active_tool_servers)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			retrieval_enabled = excluded.retrieval_enabled,
			retrieval_id = excluded.retrieval_id,
			active_tool_servers = excluded.active_tool_servers
	`, profile.ID, boolToInt(profile.RetrievalEnabled), profile.RetrievalID, string(servers))
	return err
}

// Owner fetches an owner profile.
func (s *SQLiteStore) Owner(ctx context.Context, ownerID string) (*OwnerProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, retrieval_enabled, retrieval_id, active_tool_servers
		FROM owners WHERE id = ?
	`, ownerID)

	var (
		profile    OwnerProfile
		enabled    int
		serversRaw string
	)
	if err := row.Scan(&profile.ID, &enabled, &profile.RetrievalID, &serversRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("owner %s: %w", ownerID, ErrNotFound)
		}
		return nil, err
	}

	profile.RetrievalEnabled = enabled != 0
	if err := json.Unmarshal([]byte(serversRaw), &profile.ActiveToolServers); err != nil {
		return nil, fmt.Errorf("corrupt active_tool_servers for owner %s: %w", ownerID, err)
	}

	return &profile, nil
}

// ReplaceToolServers swaps the whole catalog in one transaction. Used by the
// catalog file watcher.
func (s *SQLiteStore) ReplaceToolServers(ctx context.Context, descriptors []toolserver.Descriptor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tool_servers`); err != nil {
		return err
	}

	for _, desc := range descriptors {
		raw, err := json.Marshal(desc)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tool_servers (id, descriptor) VALUES (?, ?)`,
			desc.ID, string(raw)); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Info().Int("servers", len(descriptors)).Msg("Tool server catalog replaced")
	return nil
}

// ToolServers resolves descriptors for the given ids. Unknown ids are
// skipped; callers treat them like servers that failed to bind.
func (s *SQLiteStore) ToolServers(ctx context.Context, ids []string) ([]toolserver.Descriptor, error) {
	var descriptors []toolserver.Descriptor

	for _, id := range ids {
		row := s.db.QueryRowContext(ctx, `SELECT descriptor FROM tool_servers WHERE id = ?`, id)

		var raw string
		if err := row.Scan(&raw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.logger.Warn().Str("server_id", id).Msg("Tool server not in catalog")
				continue
			}
			return nil, err
		}

		var desc toolserver.Descriptor
		if err := json.Unmarshal([]byte(raw), &desc); err != nil {
			return nil, fmt.Errorf("corrupt descriptor for %s: %w", id, err)
		}
		descriptors = append(descriptors, desc)
	}

	return descriptors, nil
}

// SaveSession persists session settings for later restoration.
func (s *SQLiteStore) SaveSession(ctx context.Context, saved SavedSession) error {
	if saved.SessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if saved.SavedAt.IsZero() {
		saved.SavedAt = time.Now()
	}

	servers, err := json.Marshal(saved.ToolServerIDs)
	if err != nil {
		return err
	}
	cfg, err := json.Marshal(saved.Backend)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO saved_sessions (session_id, owner_id, tool_server_ids, backend_config, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			tool_server_ids = excluded.tool_server_ids,
			backend_config = excluded.backend_config,
			saved_at = excluded.saved_at
	`, saved.SessionID, saved.OwnerID, string(servers), string(cfg), saved.SavedAt.Unix())
	return err
}

// SavedSession fetches persisted settings for a session id.
func (s *SQLiteStore) SavedSession(ctx context.Context, sessionID string) (*SavedSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, owner_id, tool_server_ids, backend_config, saved_at
		FROM saved_sessions WHERE session_id = ?
	`, sessionID)

	var (
		saved      SavedSession
		serversRaw string
		cfgRaw     string
		savedAt    int64
	)
	if err := row.Scan(&saved.SessionID, &saved.OwnerID, &serversRaw, &cfgRaw, &savedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(serversRaw), &saved.ToolServerIDs); err != nil {
		return nil, fmt.Errorf("corrupt tool_server_ids for %s: %w", sessionID, err)
	}
	if err := json.Unmarshal([]byte(cfgRaw), &saved.Backend); err != nil {
		return nil, fmt.Errorf("corrupt backend_config for %s: %w", sessionID, err)
	}
	saved.SavedAt = time.Unix(savedAt, 0)

	return &saved, nil
}

// DeleteSavedSession removes persisted settings. Missing rows are a no-op.
func (s *SQLiteStore) DeleteSavedSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM saved_sessions WHERE session_id = ?`, sessionID)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
