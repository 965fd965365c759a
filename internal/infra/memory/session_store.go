package memory

import (
	"sync"

	"matrix-quiz-bot/internal/domain"
)

// SessionStore is the in-memory implementation of bot.SessionStore, keyed
// by room ID. It owns every session; callers re-fetch through Get on each
// transition instead of holding references across messages.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.Session),
	}
}

func (s *SessionStore) Get(roomID string) (*domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[roomID]
	return session, ok
}

// Create inserts the session only when the room is free. The check and
// insert happen under one lock, so concurrent starts cannot both win.
func (s *SessionStore) Create(session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.RoomID]; ok {
		return domain.ErrSessionActive
	}
	s.sessions[session.RoomID] = session
	return nil
}

func (s *SessionStore) Delete(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, roomID)
}
