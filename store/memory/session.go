// Package memory provides an in-memory SessionStore.
package memory

import (
	"context"
	"sync"

	"github.com/vitwit/walletlink/store"
	"github.com/vitwit/walletlink/types"
)

var _ store.SessionStore = (*SessionStore)(nil)

// SessionStore keeps the session for the lifetime of the process.
type SessionStore struct {
	mu      sync.RWMutex
	session *types.StoredSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

func (s *SessionStore) Load(ctx context.Context) (*types.StoredSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, nil
	}
	cp := *s.session
	return &cp, nil
}

func (s *SessionStore) Save(ctx context.Context, session types.StoredSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &session
	return nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}
