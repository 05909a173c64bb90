package engine

import (
	"context"
	"sync"
	"time"

	"enroll/internal/onboarding/models"
)

// Sessions owns the in-progress onboarding state, keyed by user ID. It
// replaces ambient process state with an explicit object the engine is
// handed at construction. Sessions are deliberately not persisted; a
// restart starts everyone over.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewSessions returns an empty session table.
func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]*models.Session)}
}

// Put inserts or overwrites the session for session.UserID.
func (s *Sessions) Put(_ context.Context, session *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.UserID] = session
}

// Get returns the session for userID, or nil when none exists.
func (s *Sessions) Get(_ context.Context, userID string) *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[userID]
}

// Touch stamps UpdatedAt for userID's session and returns it, or nil when
// none exists. The stamp happens under the table lock; DropIdleBefore reads
// UpdatedAt under the same lock.
func (s *Sessions) Touch(_ context.Context, userID string, now time.Time) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.sessions[userID]
	if session != nil {
		session.UpdatedAt = now
	}
	return session
}

// Delete removes the session for userID if present.
func (s *Sessions) Delete(_ context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Len reports the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// DropIdleBefore removes sessions not touched since cutoff and returns how
// many were dropped. Exported for testability; the sweep loop passes
// wall-clock time.
func (s *Sessions) DropIdleBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for userID, session := range s.sessions {
		if session.UpdatedAt.Before(cutoff) {
			delete(s.sessions, userID)
			dropped++
		}
	}
	return dropped
}
