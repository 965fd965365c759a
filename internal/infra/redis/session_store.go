package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"matrix-quiz-bot/internal/domain"
)

// SessionStore is a Redis-aware implementation of bot.SessionStore.
// Notes:
//   - Sessions live in a local in-memory map; the engine mutates them in
//     place under the dispatcher's per-room lock.
//   - Redis marks active rooms (quiz:session:{roomID}) so operators and
//     sibling instances can see which rooms are mid-quiz.
//   - For true distribution you'd serialize session state into Redis and
//     route rooms to instances; the liveness marker is the hook for that.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*domain.Session),
	}
}

func (s *SessionStore) Get(roomID string) (*domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[roomID]
	return session, ok
}

func (s *SessionStore) Create(session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.RoomID]; ok {
		return domain.ErrSessionActive
	}
	s.sessions[session.RoomID] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.RoomID), session.QuizID, s.ttl).Err()
	return nil
}

func (s *SessionStore) Delete(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, roomID)
	_ = s.client.Del(context.Background(), s.key(roomID)).Err()
}

func (s *SessionStore) key(roomID string) string {
	return "quiz:session:" + roomID
}
