package core

import (
	"context"
	"time"
)

// Session is an append-only conversation log for one user plus an optional
// rolling summary of its older messages. Sessions are independent of each
// other; one session belongs to exactly one user.
//
// Contract:
//   - Messages are append-only and ordered by insertion
//   - Summary is empty until the compression threshold is first crossed
//   - Title derives from the first user message
//   - Clone performs deep copies for safe divergence.
type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates an empty session owned by userID.
func NewSession(id, userID string) *Session {
	now := time.Now()
	return &Session{ID: id, UserID: userID, Title: "New session", Messages: []Message{}, CreatedAt: now, UpdatedAt: now}
}

// HasSummary reports whether a rolling summary has been persisted.
func (s *Session) HasSummary() bool { return s.Summary != "" }

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Messages = make([]Message, len(s.Messages))
	copy(clone.Messages, s.Messages)
	return &clone
}

// SessionInfo is the listing projection of a session.
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	HasSummary   bool      `json:"has_summary"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionStore persists sessions and their message logs. Mutations are atomic
// with respect to a single session; a failed write never leaves a corrupted
// record. Lookups of unknown sessions return a *NotFoundError.
type SessionStore interface {
	// Create allocates a new empty session for the user and returns it.
	Create(ctx context.Context, userID string) (*Session, error)

	// Get returns the session, or a *NotFoundError if it does not exist.
	Get(ctx context.Context, userID, sessionID string) (*Session, error)

	// Append adds a message to the session log. The first user message also
	// sets the session title.
	Append(ctx context.Context, userID, sessionID string, msg Message) error

	// SetSummary replaces the session's rolling summary.
	SetSummary(ctx context.Context, userID, sessionID, summary string) error

	// List returns listing projections for all of the user's sessions,
	// ordered by creation time.
	List(ctx context.Context, userID string) ([]SessionInfo, error)

	// PreviousSummary returns the rolling summary of the user's most recent
	// session other than excludeSessionID, or "" when none exists. Used to
	// surface episodic context at the start of a new session.
	PreviousSummary(ctx context.Context, userID, excludeSessionID string) (string, error)

	// Delete removes a single session.
	Delete(ctx context.Context, userID, sessionID string) error

	// DeleteAll removes every session belonging to the user.
	DeleteAll(ctx context.Context, userID string) error
}
