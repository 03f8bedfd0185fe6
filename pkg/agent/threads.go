package agent

import (
	"sync"
	"time"
)

// ThreadStore keeps per-thread conversation history in memory. A model
// hot-swap hands the same store to the replacement agent, so history
// survives backend changes.
type ThreadStore struct {
	mu      sync.RWMutex
	threads map[string][]ThreadMessage
}

// NewThreadStore creates an empty store.
func NewThreadStore() *ThreadStore {
	return &ThreadStore{
		threads: make(map[string][]ThreadMessage),
	}
}

// History returns a copy of the thread's messages in order.
func (s *ThreadStore) History(threadID string) []ThreadMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.threads[threadID]
	out := make([]ThreadMessage, len(msgs))
	copy(out, msgs)
	return out
}

// Append adds a message to a thread.
func (s *ThreadStore) Append(threadID string, msg ThreadMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = append(s.threads[threadID], msg)
}

// Len returns the number of messages in a thread.
func (s *ThreadStore) Len(threadID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads[threadID])
}

// Threads returns the ids of all threads with history.
func (s *ThreadStore) Threads() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	return ids
}

// Prune keeps only the most recent max messages per thread.
func (s *ThreadStore) Prune(max int) {
	if max <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, msgs := range s.threads {
		if len(msgs) > max {
			s.threads[id] = msgs[len(msgs)-max:]
		}
	}
}
