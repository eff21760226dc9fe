package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsagent/memorymesh/core"
)

// InMemoryStore is a volatile core.SessionStore keeping sessions in a process
// local map. Safe for concurrent access; every returned session is cloned to
// prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*core.Session // userID -> sessionID -> session
}

var _ core.SessionStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]map[string]*core.Session)}
}

// Create implements core.SessionStore.
func (s *InMemoryStore) Create(ctx context.Context, userID string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := core.NewSession(uuid.NewString(), userID)
	if _, ok := s.sessions[userID]; !ok {
		s.sessions[userID] = make(map[string]*core.Session)
	}
	s.sessions[userID][sess.ID] = sess
	return sess.Clone(), nil
}

// Get implements core.SessionStore.
func (s *InMemoryStore) Get(ctx context.Context, userID, sessionID string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID][sessionID]
	if !ok {
		return nil, &core.NotFoundError{Kind: "session", ID: sessionID}
	}
	return sess.Clone(), nil
}

// Append implements core.SessionStore.
func (s *InMemoryStore) Append(ctx context.Context, userID, sessionID string, msg core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID][sessionID]
	if !ok {
		return &core.NotFoundError{Kind: "session", ID: sessionID}
	}
	if msg.Role == core.RoleUser && sess.Title == "New session" {
		sess.Title = core.DeriveTitle(msg.Content)
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now()
	return nil
}

// SetSummary implements core.SessionStore.
func (s *InMemoryStore) SetSummary(ctx context.Context, userID, sessionID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID][sessionID]
	if !ok {
		return &core.NotFoundError{Kind: "session", ID: sessionID}
	}
	sess.Summary = summary
	sess.UpdatedAt = time.Now()
	return nil
}

// List implements core.SessionStore.
func (s *InMemoryStore) List(ctx context.Context, userID string) ([]core.SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]core.SessionInfo, 0, len(s.sessions[userID]))
	for _, sess := range s.sessions[userID] {
		infos = append(infos, core.SessionInfo{
			SessionID:    sess.ID,
			Title:        sess.Title,
			MessageCount: len(sess.Messages),
			HasSummary:   sess.HasSummary(),
			CreatedAt:    sess.CreatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos, nil
}

// PreviousSummary implements core.SessionStore. The most recently updated
// session other than excludeSessionID that carries a summary wins.
func (s *InMemoryStore) PreviousSummary(ctx context.Context, userID, excludeSessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *core.Session
	for _, sess := range s.sessions[userID] {
		if sess.ID == excludeSessionID || !sess.HasSummary() {
			continue
		}
		if best == nil || sess.UpdatedAt.After(best.UpdatedAt) {
			best = sess
		}
	}
	if best == nil {
		return "", nil
	}
	return best.Summary, nil
}

// Delete implements core.SessionStore.
func (s *InMemoryStore) Delete(ctx context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[userID][sessionID]; !ok {
		return &core.NotFoundError{Kind: "session", ID: sessionID}
	}
	delete(s.sessions[userID], sessionID)
	return nil
}

// DeleteAll implements core.SessionStore.
func (s *InMemoryStore) DeleteAll(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}
