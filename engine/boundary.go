package engine

import (
	"context"

	"github.com/opsagent/memorymesh/core"
)

// MemoryStats is the per-user inspection view exposed at the boundary.
type MemoryStats struct {
	TotalMemories int                `json:"total_memories"`
	Memories      []core.SemanticMemory `json:"memories"`
	Sessions      []core.SessionInfo `json:"sessions"`
	SkillsIndex   []core.SkillEntry  `json:"skills_index"`
	Profile       *core.UserProfile  `json:"profile,omitempty"`
}

// CreateSession allocates a new empty session and returns its id.
func (m *Manager) CreateSession(ctx context.Context, userID string) (string, error) {
	session, err := m.sessions.Create(ctx, userID)
	if err != nil {
		return "", err
	}
	return session.ID, nil
}

// ListSessions returns listing projections for all of the user's sessions.
func (m *Manager) ListSessions(ctx context.Context, userID string) ([]core.SessionInfo, error) {
	return m.sessions.List(ctx, userID)
}

// GetSession returns the full session, or a *core.NotFoundError.
func (m *Manager) GetSession(ctx context.Context, userID, sessionID string) (*core.Session, error) {
	return m.sessions.Get(ctx, userID, sessionID)
}

// DeleteSession removes one session.
func (m *Manager) DeleteSession(ctx context.Context, userID, sessionID string) error {
	release := m.gates.acquire(userID)
	defer release()
	return m.sessions.Delete(ctx, userID, sessionID)
}

// DeleteAllSessions removes every session belonging to the user.
func (m *Manager) DeleteAllSessions(ctx context.Context, userID string) error {
	release := m.gates.acquire(userID)
	defer release()
	return m.sessions.DeleteAll(ctx, userID)
}

// GetMemoryStats reports the user's stored memories, sessions, profile and
// the resident skills index.
func (m *Manager) GetMemoryStats(ctx context.Context, userID string) (*MemoryStats, error) {
	memories, err := m.memories.All(ctx, userID)
	if err != nil {
		return nil, err
	}
	sessions, err := m.sessions.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := m.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &MemoryStats{
		TotalMemories: len(memories),
		Memories:      memories,
		Sessions:      sessions,
		SkillsIndex:   m.skills.Entries(),
		Profile:       profile,
	}, nil
}

// ResetMemory wipes the user's vector memories and profile. Sessions are
// left intact; use DeleteAllSessions for those.
func (m *Manager) ResetMemory(ctx context.Context, userID string) error {
	release := m.gates.acquire(userID)
	defer release()
	if err := m.memories.DeleteAll(ctx, userID); err != nil {
		return err
	}
	return m.profiles.Reset(ctx, userID)
}
