// Package memory provides in-memory implementations of storage ports,
// used by tests and by the zero-setup demo configuration.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/browsegate/browsegate/domain/session"
	"github.com/browsegate/browsegate/ports"
)

// SessionStore is an in-memory implementation of ports.SessionStore.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
	quotas   map[string]session.Quota
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]session.Session),
		quotas:   make(map[string]session.Quota),
	}
}

// PutSession seeds or replaces a session (test setup).
func (s *SessionStore) PutSession(sess session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

// PutQuota seeds or replaces a user quota (test setup).
func (s *SessionStore) PutQuota(q session.Quota) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[q.UserID] = q
}

// GetActiveSession retrieves a session by id.
func (s *SessionStore) GetActiveSession(ctx context.Context, id string) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.Session{}, ports.ErrNotFound
	}
	return sess, nil
}

// GetUserQuota retrieves the owning user's quota.
func (s *SessionStore) GetUserQuota(ctx context.Context, userID string) (session.Quota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotas[userID]
	if !ok {
		return session.Quota{}, ports.ErrNotFound
	}
	return q, nil
}

// ExpireSession transitions an active session to expired. Idempotent:
// terminal sessions keep their original ended_at and message.
func (s *SessionStore) ExpireSession(ctx context.Context, id, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ports.ErrNotFound
	}
	if !sess.Status.CanTransition(session.StatusExpired) {
		return nil
	}
	ended := at
	sess.Status = session.StatusExpired
	sess.EndedAt = &ended
	sess.ErrorMessage = reason
	s.sessions[id] = sess
	return nil
}

// IncrementSessionMetrics adds to the session counters while active.
func (s *SessionStore) IncrementSessionMetrics(ctx context.Context, id string, bytes, latencyMs int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ports.ErrNotFound
	}
	if sess.Status != session.StatusActive {
		return nil
	}
	sess.BytesTransferred += bytes
	sess.RequestsCount++
	sess.LastActivityAt = at
	s.sessions[id] = sess
	return nil
}

// Session returns a stored session by id (test inspection).
func (s *SessionStore) Session(id string) (session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Ensure interface compliance.
var _ ports.SessionStore = (*SessionStore)(nil)
