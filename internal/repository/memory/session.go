// Package memory provides in-process repositories for local development and
// tests. Data is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"figmant/internal/domain"
	"figmant/internal/domain/models/analysis"
)

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*analysis.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*analysis.Session),
	}
}

func (s *SessionStore) Create(_ context.Context, session *analysis.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if _, exists := s.sessions[session.ID]; exists {
		return &domain.ConflictError{
			Message:      "session already exists",
			ResourceType: "session",
			ResourceID:   session.ID,
		}
	}

	stored := *session
	s.sessions[session.ID] = &stored
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID, userID string) (*analysis.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	out := *sess
	return &out, nil
}

func (s *SessionStore) ListByUser(_ context.Context, userID string) ([]analysis.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []analysis.Session{}
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			result = append(result, *sess)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastActivity.After(result[j].LastActivity)
	})
	return result, nil
}

func (s *SessionStore) Rename(_ context.Context, sessionID, userID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	sess.Name = name
	return nil
}

func (s *SessionStore) SetActive(_ context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.sessions[sessionID]
	if !ok || target.UserID != userID {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			sess.IsActive = sess.ID == sessionID
		}
	}
	return nil
}

func (s *SessionStore) Touch(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	if at.After(sess.LastActivity) {
		sess.LastActivity = at
	}
	return nil
}
