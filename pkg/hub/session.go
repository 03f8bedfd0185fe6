package hub

import (
	"sync"
	"time"

	"github.com/hanif/warden/pkg/agent"
	"github.com/hanif/warden/pkg/backend"
)

// Session is the live binding of one backend plus its tool capabilities.
// All fields behind mu; the agent pointer is swapped whole on model updates
// so a reader never sees a half-updated session.
type Session struct {
	mu sync.Mutex

	id            string
	ownerID       string
	logID         string
	agent         *agent.Agent
	cleanup       func() error
	cleanupOnce   sync.Once
	lastActive    time.Time
	backendConfig backend.Config
	toolServerIDs []string
	messages      []TranscriptMessage
	maxMessages   int
	busy          bool
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// OwnerID returns the owning profile id.
func (s *Session) OwnerID() string {
	return s.ownerID
}

// LastActive returns the last touch time.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// BackendConfig returns the config the current backend was built from.
func (s *Session) BackendConfig() backend.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backendConfig
}

// ToolServerIDs returns the ids this session was bound to.
func (s *Session) ToolServerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.toolServerIDs))
	copy(out, s.toolServerIDs)
	return out
}

// Messages returns a copy of the session's message log.
func (s *Session) Messages() []TranscriptMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TranscriptMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// touch moves lastActive forward. It never moves it back.
func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now := time.Now(); now.After(s.lastActive) {
		s.lastActive = now
	}
}

// currentAgent returns the agent under the session lock.
func (s *Session) currentAgent() *agent.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

// swap replaces the agent and backend config atomically. Used by model
// hot-swap; the new agent shares the old one's tools and thread store.
func (s *Session) swap(a *agent.Agent, cfg backend.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agent = a
	s.backendConfig = cfg
}

// appendMessage records a turn and bumps lastActive, pruning the oldest
// entries past the cap to bound memory on long-lived sessions.
func (s *Session) appendMessage(role string, content Content) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, TranscriptMessage{
		Role:      role,
		Content:   content.Render(),
		Timestamp: time.Now(),
	})
	if s.maxMessages > 0 && len(s.messages) > s.maxMessages {
		drop := len(s.messages) - s.maxMessages
		s.messages = append([]TranscriptMessage(nil), s.messages[drop:]...)
	}
	if now := time.Now(); now.After(s.lastActive) {
		s.lastActive = now
	}
}

// tryAcquire marks the session busy for one query. Returns false when a
// query is already in flight.
func (s *Session) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

// release clears the busy flag after a query finishes.
func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

// runCleanup invokes the session's cleanup at most once, racing it against
// the deadline. Concurrent callers block until the first invocation settles.
func (s *Session) runCleanup(deadline time.Duration) error {
	var err error
	s.cleanupOnce.Do(func() {
		err = runWithDeadline(deadline, s.cleanup)
	})
	return err
}

// runWithDeadline races fn against d. On timeout fn keeps running in the
// background; the caller proceeds with errCleanupTimeout.
func runWithDeadline(d time.Duration, fn func() error) error {
	if fn == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(d):
		return errCleanupTimeout
	}
}
