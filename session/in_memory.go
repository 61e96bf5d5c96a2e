package session

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/agentdesk/core"
)

// InMemoryStore is a volatile Store keeping sessions in a process local map.
// It is safe for concurrent access and best suited for tests or one-shot
// CLI runs. Returned slices are copies.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]core.Message
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]core.Message)}
}

// Append adds msgs to the session, creating it lazily.
func (s *InMemoryStore) Append(ctx context.Context, sessionID string, msgs ...core.Message) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msgs...)
	return nil
}

// Messages returns a copy of the session history.
func (s *InMemoryStore) Messages(_ context.Context, sessionID string) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Message(nil), s.sessions[sessionID]...), nil
}

// Sessions returns all session ids in lexical order.
func (s *InMemoryStore) Sessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete drops a session. Unknown ids are ignored.
func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
