package hub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanif/warden/internal/observability"
	"github.com/hanif/warden/internal/settings"
	"github.com/hanif/warden/pkg/backend"
	"github.com/hanif/warden/pkg/retrieval"
	"github.com/hanif/warden/pkg/toolserver"
)

// fakeBackend returns canned responses and records every request.
type fakeBackend struct {
	cfg backend.Config

	mu        sync.Mutex
	requests  []backend.Request
	responses []*backend.Response
	errs      []error
	calls     int
}

func (b *fakeBackend) Complete(ctx context.Context, req backend.Request) (*backend.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests = append(b.requests, req)
	i := b.calls
	b.calls++

	if i < len(b.errs) && b.errs[i] != nil {
		return nil, b.errs[i]
	}
	if i < len(b.responses) {
		return b.responses[i], nil
	}
	return &backend.Response{Content: "ok"}, nil
}

func (b *fakeBackend) Provider() string       { return b.cfg.Provider }
func (b *fakeBackend) Config() backend.Config { return b.cfg }

func (b *fakeBackend) lastRequest() backend.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

// fakeFactory builds fakeBackends and keeps them for inspection.
type fakeFactory struct {
	mu       sync.Mutex
	backends []*fakeBackend
	err      error
}

func (f *fakeFactory) Build(cfg backend.Config) (backend.Backend, error) {
	if f.err != nil {
		return nil, f.err
	}
	b := &fakeBackend{cfg: cfg}
	f.mu.Lock()
	f.backends = append(f.backends, b)
	f.mu.Unlock()
	return b, nil
}

// fakeBinder hands out a counting teardown so tests can assert cleanup runs
// exactly once.
type fakeBinder struct {
	handles   []toolserver.Handle
	failedIDs []string
	err       error

	teardownDelay time.Duration
	teardownErr   error
	teardowns     atomic.Int32
	binds         atomic.Int32
}

func (b *fakeBinder) Bind(ctx context.Context, descriptors []toolserver.Descriptor, logID string, opts toolserver.BindOptions) (*toolserver.BindResult, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.binds.Add(1)
	return &toolserver.BindResult{
		Handles:         b.handles,
		FailedServerIDs: b.failedIDs,
		Teardown: func() error {
			if b.teardownDelay > 0 {
				time.Sleep(b.teardownDelay)
			}
			b.teardowns.Add(1)
			return b.teardownErr
		},
	}, nil
}

// fakeStore is an in-memory SettingsStore.
type fakeStore struct {
	mu          sync.Mutex
	owners      map[string]settings.OwnerProfile
	descriptors map[string]toolserver.Descriptor
	saved       map[string]settings.SavedSession
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		owners:      make(map[string]settings.OwnerProfile),
		descriptors: make(map[string]toolserver.Descriptor),
		saved:       make(map[string]settings.SavedSession),
	}
}

func (s *fakeStore) ToolServers(ctx context.Context, ids []string) ([]toolserver.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []toolserver.Descriptor
	for _, id := range ids {
		if d, ok := s.descriptors[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeStore) Owner(ctx context.Context, ownerID string) (*settings.OwnerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.owners[ownerID]
	if !ok {
		return nil, settings.ErrNotFound
	}
	return &p, nil
}

func (s *fakeStore) SavedSession(ctx context.Context, sessionID string) (*settings.SavedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved, ok := s.saved[sessionID]
	if !ok {
		return nil, settings.ErrNotFound
	}
	return &saved, nil
}

func (s *fakeStore) SaveSession(ctx context.Context, saved settings.SavedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved.SavedAt = time.Now()
	s.saved[saved.SessionID] = saved
	return nil
}

func (s *fakeStore) DeleteSavedSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, sessionID)
	return nil
}

// fakeAuditor captures events in memory.
type fakeAuditor struct {
	mu     sync.Mutex
	events []observability.AuditEvent
}

func (a *fakeAuditor) Record(ctx context.Context, event observability.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *fakeAuditor) byType(eventType string) []observability.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []observability.AuditEvent
	for _, e := range a.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeLookup returns one canned retrieval result.
type fakeLookup struct {
	result retrieval.Result
	err    error
}

func (l *fakeLookup) Query(ctx context.Context, text, identifier string) (retrieval.Result, error) {
	return l.result, l.err
}

type harness struct {
	registry *Registry
	binder   *fakeBinder
	factory  *fakeFactory
	store    *fakeStore
	audit    *fakeAuditor
	lookup   *fakeLookup
}

func setupRegistry(t *testing.T, mutate ...func(*Options, *Deps)) *harness {
	t.Helper()

	h := &harness{
		binder:  &fakeBinder{},
		factory: &fakeFactory{},
		store:   newFakeStore(),
		audit:   &fakeAuditor{},
		lookup:  &fakeLookup{},
	}

	opts := Options{
		Type:           "interactive",
		IdleTimeout:    30 * time.Minute,
		CleanupTimeout: 5 * time.Second,
		Restorable:     true,
		LogDir:         t.TempDir(),
	}
	deps := Deps{
		Binder:    h.binder,
		Backends:  h.factory,
		Store:     h.store,
		Retrieval: h.lookup,
		Audit:     h.audit,
		Logger:    zerolog.Nop(),
	}
	for _, m := range mutate {
		m(&opts, &deps)
	}

	registry, err := NewRegistry(opts, deps)
	require.NoError(t, err)
	h.registry = registry
	return h
}

func testConfig() SessionConfig {
	return SessionConfig{
		OwnerID: "owner-1",
		Backend: backend.Config{
			Provider:  backend.ProviderAnthropic,
			Model:     "claude-sonnet-4",
			MaxTokens: 1024,
		},
	}
}

func TestCreateSession(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))
	assert.True(t, h.registry.HasSession("sess-1"))

	err := h.registry.CreateSession(ctx, "sess-1", testConfig())
	assert.ErrorIs(t, err, ErrSessionExists)

	// Creation emits a start audit event and persists settings for restore
	assert.Len(t, h.audit.byType(observability.EventSessionStart), 1)
	_, err = h.store.SavedSession(ctx, "sess-1")
	assert.NoError(t, err)
}

func TestCreateSession_InvalidConfig(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  SessionConfig
	}{
		{
			name: "missing owner",
			cfg: SessionConfig{
				Backend: backend.Config{Provider: backend.ProviderAnthropic, Model: "m"},
			},
		},
		{
			name: "unknown provider",
			cfg: SessionConfig{
				OwnerID: "owner-1",
				Backend: backend.Config{Provider: "cohere", Model: "m"},
			},
		},
		{
			name: "empty model",
			cfg: SessionConfig{
				OwnerID: "owner-1",
				Backend: backend.Config{Provider: backend.ProviderAnthropic},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.registry.CreateSession(ctx, "sess-"+tt.name, tt.cfg)
			assert.Error(t, err)
			assert.False(t, h.registry.HasSession("sess-"+tt.name))
		})
	}
}

func TestCreateSession_PartialBindFailure(t *testing.T) {
	h := setupRegistry(t)
	h.binder.failedIDs = []string{"flaky"}

	h.store.descriptors["fs"] = toolserver.Descriptor{ID: "fs", Command: "mcp-fs"}
	h.store.descriptors["flaky"] = toolserver.Descriptor{ID: "flaky", Command: "mcp-flaky"}

	cfg := testConfig()
	cfg.ToolServerIDs = []string{"fs", "flaky"}

	require.NoError(t, h.registry.CreateSession(context.Background(), "sess-1", cfg))
	assert.True(t, h.registry.HasSession("sess-1"))
}

func TestCreateSession_ZeroToolServers(t *testing.T) {
	h := setupRegistry(t)

	cfg := testConfig()
	cfg.ToolServerIDs = nil

	require.NoError(t, h.registry.CreateSession(context.Background(), "sess-1", cfg))
	assert.True(t, h.registry.HasSession("sess-1"))
}

func TestEndSession(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))
	require.NoError(t, h.registry.EndSession(ctx, "sess-1"))

	assert.False(t, h.registry.HasSession("sess-1"))
	assert.Equal(t, int32(1), h.binder.teardowns.Load())
	assert.Len(t, h.audit.byType(observability.EventSessionEnd), 1)

	// Ending an absent session is a no-op success
	require.NoError(t, h.registry.EndSession(ctx, "sess-1"))
	assert.Equal(t, int32(1), h.binder.teardowns.Load())
}

func TestEndSession_CleanupErrorDoesNotPropagate(t *testing.T) {
	h := setupRegistry(t)
	h.binder.teardownErr = fmt.Errorf("socket already gone")

	ctx := context.Background()
	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))

	assert.NoError(t, h.registry.EndSession(ctx, "sess-1"))
	assert.False(t, h.registry.HasSession("sess-1"))

	ends := h.audit.byType(observability.EventSessionEnd)
	require.Len(t, ends, 1)
	assert.Equal(t, "failure", ends[0].Status)
}

func TestGetSession_BumpsLastActive(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))

	before := h.registry.GetSession("sess-1").LastActive()
	time.Sleep(5 * time.Millisecond)

	s := h.registry.GetSession("sess-1")
	require.NotNil(t, s)
	assert.False(t, s.LastActive().Before(before))

	assert.Nil(t, h.registry.GetSession("missing"))
}

func TestGetOrCreateSession(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, h.registry.GetOrCreateSession(ctx, "sess-1", testConfig()))
	require.NoError(t, h.registry.GetOrCreateSession(ctx, "sess-1", testConfig()))

	// Second call found the live session instead of re-binding
	assert.Equal(t, int32(1), h.binder.binds.Load())
}

func TestUpdateSessionModel(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))

	s := h.registry.GetSession("sess-1")
	s.appendMessage("user", TextContent("hello"))
	before := s.Messages()

	newCfg := backend.Config{
		Provider:  backend.ProviderOpenAI,
		Model:     "gpt-4o",
		MaxTokens: 2048,
	}
	require.NoError(t, h.registry.UpdateSessionModel(ctx, "sess-1", newCfg))

	assert.Equal(t, newCfg, s.BackendConfig())
	assert.Equal(t, before, s.Messages())

	// Tool connections were not re-bound
	assert.Equal(t, int32(1), h.binder.binds.Load())

	// Persisted settings follow the swap
	saved, err := h.store.SavedSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, newCfg, saved.Backend)
}

func TestUpdateSessionModel_Errors(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	err := h.registry.UpdateSessionModel(ctx, "missing", testConfig().Backend)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))
	err = h.registry.UpdateSessionModel(ctx, "sess-1", backend.Config{Provider: "bogus", Model: "m"})
	assert.Error(t, err)

	// Failed update leaves the original config in place
	assert.Equal(t, testConfig().Backend, h.registry.GetSession("sess-1").BackendConfig())
}

func TestSessionStatus(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	status := h.registry.SessionStatus("sess-1")
	assert.True(t, status.Success)
	assert.False(t, status.Active)
	assert.True(t, status.NeedsRestore)

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))

	status = h.registry.SessionStatus("sess-1")
	assert.True(t, status.Active)
	require.NotNil(t, status.BackendConfig)
	assert.Equal(t, testConfig().Backend, *status.BackendConfig)
	assert.False(t, status.NeedsRestore)
}

func TestRestoreSession(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	// Nothing persisted yet
	err := h.registry.RestoreSession(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNoSavedSettings)

	// Create, then end; settings remain persisted
	h.store.owners["owner-1"] = settings.OwnerProfile{
		ID:                "owner-1",
		ActiveToolServers: []string{"fs"},
	}
	h.store.descriptors["fs"] = toolserver.Descriptor{ID: "fs", Command: "mcp-fs"}

	cfg := testConfig()
	cfg.ToolServerIDs = []string{"fs"}
	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", cfg))
	require.NoError(t, h.registry.EndSession(ctx, "sess-1"))
	require.False(t, h.registry.HasSession("sess-1"))

	require.NoError(t, h.registry.RestoreSession(ctx, "sess-1"))
	assert.True(t, h.registry.HasSession("sess-1"))

	// Restoring a live session is a no-op success
	require.NoError(t, h.registry.RestoreSession(ctx, "sess-1"))
	assert.Equal(t, int32(2), h.binder.binds.Load())
}

func TestRestoreSession_NoToolsNoRetrieval(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	// Zero tools and retrieval disabled: creation is fine, restoration is not
	h.store.owners["owner-1"] = settings.OwnerProfile{ID: "owner-1"}

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))
	require.NoError(t, h.registry.EndSession(ctx, "sess-1"))

	err := h.registry.RestoreSession(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNothingToRestore)
}

func TestRestoreSession_RetrievalAloneSuffices(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	h.store.owners["owner-1"] = settings.OwnerProfile{
		ID:               "owner-1",
		RetrievalEnabled: true,
		RetrievalID:      "kb-1",
	}

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))
	require.NoError(t, h.registry.EndSession(ctx, "sess-1"))

	require.NoError(t, h.registry.RestoreSession(ctx, "sess-1"))
	assert.True(t, h.registry.HasSession("sess-1"))
}

func TestRestoreSession_NotRestorableType(t *testing.T) {
	h := setupRegistry(t, func(opts *Options, deps *Deps) {
		opts.Type = "embedded"
		opts.Restorable = false
	})

	err := h.registry.RestoreSession(context.Background(), "sess-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSavedSettings)
}

func TestStats(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	stats := h.registry.Stats()
	assert.Equal(t, 0, stats.Live)

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))
	require.NoError(t, h.registry.CreateSession(ctx, "sess-2", testConfig()))

	stats = h.registry.Stats()
	assert.Equal(t, "interactive", stats.Type)
	assert.Equal(t, 2, stats.Live)
}
