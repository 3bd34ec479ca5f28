package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"proctored-quiz-engine/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions themselves stay in process memory since their engines own timers
// and detectors; Redis carries a liveness marker with the owning student so
// other instances can see which sessions exist.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	log      logrus.FieldLogger
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, log logrus.FieldLogger) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		log:      log,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	// best-effort liveness marker
	if err := s.client.Set(context.Background(), s.key(session.ID), session.StudentID, s.ttl).Err(); err != nil {
		s.log.WithError(err).WithField("session", session.ID).Warn("mark session live")
	}
}

// Get returns the local session and refreshes its liveness marker.
func (s *SessionStore) Get(id string) (*app.Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok && s.ttl > 0 {
		_ = s.client.Expire(context.Background(), s.key(id), s.ttl).Err()
	}
	return session, ok
}

func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	_ = s.client.Del(context.Background(), s.key(id)).Err()
}

// Owner reports which student a live session belongs to, on any instance.
func (s *SessionStore) Owner(ctx context.Context, id string) (string, bool, error) {
	student, err := s.client.Get(ctx, s.key(id)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return student, true, nil
}

func (s *SessionStore) key(id string) string {
	return "proctor:session:" + id
}
