package profile

import (
	"context"
	"sync"

	"github.com/opsagent/memorymesh/core"
)

// InMemoryStore is a volatile core.ProfileStore. Profiles are created lazily
// on first access and returned as clones so callers cannot mutate internal
// state.
type InMemoryStore struct {
	mu       sync.Mutex
	profiles map[string]*core.UserProfile
}

var _ core.ProfileStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory profile store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[string]*core.UserProfile)}
}

func (s *InMemoryStore) getOrCreateLocked(userID string) *core.UserProfile {
	p, ok := s.profiles[userID]
	if !ok {
		p = core.NewUserProfile(userID)
		s.profiles[userID] = p
	}
	return p
}

// Get implements core.ProfileStore.
func (s *InMemoryStore) Get(ctx context.Context, userID string) (*core.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(userID).Clone(), nil
}

// Merge implements core.ProfileStore.
func (s *InMemoryStore) Merge(ctx context.Context, userID string, update core.ProfileUpdate) (*core.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.getOrCreateLocked(userID)
	p.Merge(update)
	return p.Clone(), nil
}

// Reset implements core.ProfileStore.
func (s *InMemoryStore) Reset(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, userID)
	return nil
}
