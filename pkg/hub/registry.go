package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hanif/warden/internal/logger"
	"github.com/hanif/warden/internal/observability"
	"github.com/hanif/warden/internal/settings"
	"github.com/hanif/warden/pkg/agent"
	"github.com/hanif/warden/pkg/backend"
	"github.com/hanif/warden/pkg/retrieval"
	"github.com/hanif/warden/pkg/toolserver"
)

const (
	// DefaultIdleTimeout applies when Options.IdleTimeout is zero.
	DefaultIdleTimeout = 30 * time.Minute

	// DefaultCleanupTimeout bounds one session cleanup during eviction and
	// shutdown drain.
	DefaultCleanupTimeout = 30 * time.Second

	defaultMaxMessages = 200

	loggerTeardownTimeout = 2 * time.Second
	toolTeardownTimeout   = 10 * time.Second
)

// SettingsStore is the slice of the settings layer the registry needs.
type SettingsStore interface {
	ToolServers(ctx context.Context, ids []string) ([]toolserver.Descriptor, error)
	Owner(ctx context.Context, ownerID string) (*settings.OwnerProfile, error)
	SavedSession(ctx context.Context, sessionID string) (*settings.SavedSession, error)
	SaveSession(ctx context.Context, saved settings.SavedSession) error
	DeleteSavedSession(ctx context.Context, sessionID string) error
}

// Options configures one registry instance.
type Options struct {
	// Type names the session class, e.g. "interactive" or "embedded".
	Type string

	// IdleTimeout is how long a session may sit untouched before the sweeper
	// evicts it.
	IdleTimeout time.Duration

	// CleanupTimeout bounds one cleanup call on every destruction path.
	CleanupTimeout time.Duration

	// Restorable allows RestoreSession for this registry's sessions.
	Restorable bool

	// MaxMessages caps each session's message log.
	MaxMessages int

	// LogDir is where per-session log files are created.
	LogDir string

	// Preamble is the system prompt prepended to every turn.
	Preamble string
}

// Deps are the registry's external collaborators. Binder, Backends, and
// Store are required; Retrieval and Audit are optional.
type Deps struct {
	Binder    toolserver.Binder
	Backends  backend.Factory
	Store     SettingsStore
	Retrieval retrieval.Lookup
	Audit     observability.Auditor
	Logger    zerolog.Logger
}

// Registry is a keyed collection of live sessions for one session type.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	pending  map[string]struct{}

	opts Options
	deps Deps
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options, deps Deps) (*Registry, error) {
	observability.EnsureRegistered()

	if deps.Binder == nil {
		return nil, fmt.Errorf("binder is required")
	}
	if deps.Backends == nil {
		return nil, fmt.Errorf("backend factory is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("settings store is required")
	}

	if opts.Type == "" {
		opts.Type = "interactive"
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = DefaultCleanupTimeout
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = defaultMaxMessages
	}

	return &Registry{
		sessions: make(map[string]*Session),
		pending:  make(map[string]struct{}),
		opts:     opts,
		deps:     deps,
	}, nil
}

// Type returns the registry's session type name.
func (r *Registry) Type() string {
	return r.opts.Type
}

// CreateSession validates the config, runs session initialization, and
// inserts the session. Fails with ErrSessionExists if the id is live or
// another create for the same id is in flight.
func (r *Registry) CreateSession(ctx context.Context, id string, cfg SessionConfig) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if v := cfg.Validate(); !v.IsValid {
		return fmt.Errorf("invalid session config: %s", strings.Join(v.Errors, "; "))
	}

	r.mu.Lock()
	if _, live := r.sessions[id]; live {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	if _, creating := r.pending[id]; creating {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	r.pending[id] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()

	s, err := r.initSession(ctx, id, cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.sessions[id] = s
	live := len(r.sessions)
	r.mu.Unlock()

	observability.RecordSessionCreated(r.opts.Type)
	observability.SetActiveSessions(r.opts.Type, live)

	r.deps.Logger.Info().
		Str("session_id", id).
		Str("owner_id", cfg.OwnerID).
		Str("registry_type", r.opts.Type).
		Int("tool_servers", len(cfg.ToolServerIDs)).
		Msg("Session created")

	return nil
}

// GetOrCreateSession returns immediately when the id is live, bumping
// lastActive; otherwise it creates the session. A create that loses a race
// to a concurrent create is treated as success.
func (r *Registry) GetOrCreateSession(ctx context.Context, id string, cfg SessionConfig) error {
	if s := r.GetSession(id); s != nil {
		return nil
	}
	if err := r.CreateSession(ctx, id, cfg); err != nil {
		if errors.Is(err, ErrSessionExists) {
			return nil
		}
		return err
	}
	return nil
}

// GetSession returns the live session for id, bumping lastActive on hit.
// Returns nil on miss; it never creates.
func (r *Registry) GetSession(id string) *Session {
	r.mu.RLock()
	s := r.sessions[id]
	r.mu.RUnlock()

	if s != nil {
		s.touch()
	}
	return s
}

// HasSession reports whether id is live.
func (r *Registry) HasSession(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// EndSession retires the session: cleanup runs once, the entry is removed
// regardless of cleanup outcome. Ending an absent id is a no-op success.
func (r *Registry) EndSession(ctx context.Context, id string) error {
	r.mu.RLock()
	s := r.sessions[id]
	r.mu.RUnlock()

	if s == nil {
		return nil
	}

	r.destroy(s, "ended")
	return nil
}

// UpdateSessionModel swaps the session's backend and agent for newCfg. The
// new agent shares the old one's tool handles and conversational memory;
// tool connections are not re-bound.
func (r *Registry) UpdateSessionModel(ctx context.Context, id string, newCfg backend.Config) error {
	if err := newCfg.Validate(); err != nil {
		return fmt.Errorf("invalid backend config: %w", err)
	}

	r.mu.RLock()
	s := r.sessions[id]
	r.mu.RUnlock()

	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	be, err := r.deps.Backends.Build(newCfg)
	if err != nil {
		return fmt.Errorf("failed to build backend: %w", err)
	}

	s.swap(s.currentAgent().WithBackend(be), newCfg)
	s.touch()

	if err := r.deps.Store.SaveSession(ctx, settings.SavedSession{
		SessionID:     id,
		OwnerID:       s.OwnerID(),
		ToolServerIDs: s.ToolServerIDs(),
		Backend:       newCfg,
	}); err != nil {
		r.deps.Logger.Warn().Err(err).Str("session_id", id).Msg("Failed to persist updated session settings")
	}

	r.deps.Logger.Info().
		Str("session_id", id).
		Str("provider", newCfg.Provider).
		Str("model", newCfg.Model).
		Msg("Session model updated")

	return nil
}

// SessionStatus reports whether id is live. An absent id is reported with
// needs_restore set so the caller can decide whether to attempt restoration.
func (r *Registry) SessionStatus(id string) Status {
	r.mu.RLock()
	s := r.sessions[id]
	r.mu.RUnlock()

	if s == nil {
		return Status{
			Success:      true,
			Active:       false,
			Message:      "session not active",
			NeedsRestore: r.opts.Restorable,
		}
	}

	cfg := s.BackendConfig()
	return Status{
		Success:       true,
		Active:        true,
		Message:       "session active",
		BackendConfig: &cfg,
		Messages:      s.Messages(),
	}
}

// RestoreSession rebuilds a previously persisted session. A live id is a
// no-op success. Fails with ErrNoSavedSettings when nothing was persisted,
// and with ErrNothingToRestore when the owner has neither active tool
// servers nor retrieval.
func (r *Registry) RestoreSession(ctx context.Context, id string) error {
	if s := r.GetSession(id); s != nil {
		return nil
	}
	if !r.opts.Restorable {
		return fmt.Errorf("session type %q does not support restoration", r.opts.Type)
	}

	saved, err := r.deps.Store.SavedSession(ctx, id)
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNoSavedSettings, id)
		}
		return fmt.Errorf("failed to load saved settings: %w", err)
	}

	var active []string
	retrievalEnabled := false
	owner, err := r.deps.Store.Owner(ctx, saved.OwnerID)
	switch {
	case err == nil:
		active = owner.ActiveToolServers
		retrievalEnabled = owner.RetrievalEnabled
	case errors.Is(err, settings.ErrNotFound):
		// Owner profile gone; nothing to re-derive from.
	default:
		return fmt.Errorf("failed to load owner profile: %w", err)
	}

	if len(active) == 0 && !retrievalEnabled {
		return fmt.Errorf("%w: %s", ErrNothingToRestore, id)
	}

	return r.CreateSession(ctx, id, SessionConfig{
		OwnerID:       saved.OwnerID,
		ToolServerIDs: active,
		Backend:       saved.Backend,
	})
}

// Stats summarizes the registry's live sessions.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{Type: r.opts.Type, Live: len(r.sessions)}
	now := time.Now()
	for _, s := range r.sessions {
		if idle := now.Sub(s.LastActive()); idle > stats.OldestIdle {
			stats.OldestIdle = idle
		}
	}
	return stats
}

// liveSessions snapshots the current session set.
func (r *Registry) liveSessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// destroy runs the shared destruction path: cleanup at most once under the
// registry's deadline, then map removal regardless of cleanup outcome.
func (r *Registry) destroy(s *Session, reason string) {
	err := s.runCleanup(r.opts.CleanupTimeout)

	r.mu.Lock()
	delete(r.sessions, s.id)
	live := len(r.sessions)
	r.mu.Unlock()

	observability.SetActiveSessions(r.opts.Type, live)

	switch {
	case errors.Is(err, errCleanupTimeout):
		observability.RecordCleanupTimeout(r.opts.Type)
		r.deps.Logger.Warn().
			Str("session_id", s.id).
			Str("reason", reason).
			Dur("deadline", r.opts.CleanupTimeout).
			Msg("Session cleanup exceeded deadline, entry removed anyway")
	case err != nil:
		observability.RecordCleanupFailure(r.opts.Type)
		r.deps.Logger.Warn().
			Err(err).
			Str("session_id", s.id).
			Str("reason", reason).
			Msg("Session cleanup failed")
	default:
		r.deps.Logger.Info().
			Str("session_id", s.id).
			Str("reason", reason).
			Msg("Session retired")
	}
}

// initSession assembles one session: session log, tool bind, backend, agent,
// and the composed cleanup.
func (r *Registry) initSession(ctx context.Context, id string, cfg SessionConfig) (*Session, error) {
	logID := uuid.NewString()

	level, err := zerolog.ParseLevel(cfg.Backend.LogLevel)
	if err != nil || cfg.Backend.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	sessionLog, err := logger.NewSessionLog(r.opts.LogDir, logID, level)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log: %w", err)
	}

	var descriptors []toolserver.Descriptor
	if len(cfg.ToolServerIDs) > 0 {
		descriptors, err = r.deps.Store.ToolServers(ctx, cfg.ToolServerIDs)
		if err != nil {
			sessionLog.Close()
			return nil, fmt.Errorf("failed to resolve tool server descriptors: %w", err)
		}
	}

	bind, err := r.deps.Binder.Bind(ctx, descriptors, logID, toolserver.BindOptions{
		Logger: sessionLog.Logger(),
	})
	if err != nil {
		sessionLog.Close()
		return nil, fmt.Errorf("failed to bind tool servers: %w", err)
	}
	for _, serverID := range bind.FailedServerIDs {
		observability.RecordBindFailure(serverID)
		r.deps.Logger.Warn().
			Str("session_id", id).
			Str("server_id", serverID).
			Msg("Tool server failed to bind, continuing without it")
	}

	abort := func() {
		sessionLog.Close()
		if bind.Teardown != nil {
			if terr := bind.Teardown(); terr != nil {
				r.deps.Logger.Warn().Err(terr).Str("session_id", id).Msg("Tool teardown failed during aborted init")
			}
		}
	}

	be, err := r.deps.Backends.Build(cfg.Backend)
	if err != nil {
		abort()
		return nil, fmt.Errorf("failed to build backend: %w", err)
	}

	ag, err := agent.New(agent.Config{
		Backend:  be,
		Tools:    bind.Handles,
		Threads:  agent.NewThreadStore(),
		Preamble: r.opts.Preamble,
		Logger:   sessionLog.Logger(),
	})
	if err != nil {
		abort()
		return nil, fmt.Errorf("failed to build agent: %w", err)
	}

	ownerID := cfg.OwnerID
	registryType := r.opts.Type
	audit := r.deps.Audit
	teardown := bind.Teardown

	// Logger teardown first under the short deadline, tool teardown under
	// the longer one. Both always run; the first error wins.
	cleanup := func() error {
		logErr := runWithDeadline(loggerTeardownTimeout, sessionLog.Close)
		toolErr := runWithDeadline(toolTeardownTimeout, teardown)

		first := logErr
		if first == nil {
			first = toolErr
		}

		if audit != nil {
			event := observability.AuditEvent{
				Type:      observability.EventSessionEnd,
				OwnerID:   ownerID,
				SessionID: id,
				Status:    "success",
				Metadata:  map[string]interface{}{"registry_type": registryType},
			}
			if first != nil {
				event.Status = "failure"
				event.Metadata["cleanup_error"] = first.Error()
			}
			audit.Record(context.Background(), event)
		}

		return first
	}

	if audit != nil {
		audit.Record(ctx, observability.AuditEvent{
			Type:      observability.EventSessionStart,
			OwnerID:   ownerID,
			SessionID: id,
			Status:    "success",
			Metadata: map[string]interface{}{
				"registry_type": registryType,
				"provider":      cfg.Backend.Provider,
				"model":         cfg.Backend.Model,
				"tool_servers":  len(cfg.ToolServerIDs),
				"failed_binds":  len(bind.FailedServerIDs),
			},
		})
	}

	if err := r.deps.Store.SaveSession(ctx, settings.SavedSession{
		SessionID:     id,
		OwnerID:       ownerID,
		ToolServerIDs: cfg.ToolServerIDs,
		Backend:       cfg.Backend,
	}); err != nil {
		r.deps.Logger.Warn().Err(err).Str("session_id", id).Msg("Failed to persist session settings")
	}

	return &Session{
		id:            id,
		ownerID:       ownerID,
		logID:         logID,
		agent:         ag,
		cleanup:       cleanup,
		lastActive:    time.Now(),
		backendConfig: cfg.Backend,
		toolServerIDs: cfg.ToolServerIDs,
		maxMessages:   r.opts.MaxMessages,
	}, nil
}
