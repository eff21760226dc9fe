package core

import (
	"context"
	"fmt"
	"time"
)

// MemoryType classifies a semantic memory. The set is closed so consumers can
// handle every case exhaustively; unknown values are rejected at the parsing
// boundary instead of leaking into storage.
type MemoryType string

const (
	// MemoryTypeFact is a stable piece of knowledge about the user or their stack.
	MemoryTypeFact MemoryType = "fact"
	// MemoryTypePreference is a stated user preference (tooling, style, workflow).
	MemoryTypePreference MemoryType = "preference"
	// MemoryTypeConstraint is a hard requirement the assistant must respect.
	MemoryTypeConstraint MemoryType = "constraint"
	// MemoryTypeEpisodic is a note about what happened during an exchange.
	MemoryTypeEpisodic MemoryType = "episodic"
)

// MemoryTypes lists every valid memory type.
var MemoryTypes = []MemoryType{MemoryTypeFact, MemoryTypePreference, MemoryTypeConstraint, MemoryTypeEpisodic}

// ParseMemoryType validates a raw string against the closed type set. Unknown
// values yield a *ValidationError so callers can drop the offending item and
// continue per the best-effort extraction contract.
func ParseMemoryType(s string) (MemoryType, error) {
	switch MemoryType(s) {
	case MemoryTypeFact, MemoryTypePreference, MemoryTypeConstraint, MemoryTypeEpisodic:
		return MemoryType(s), nil
	}
	return "", &ValidationError{Reason: fmt.Sprintf("unknown memory type %q", s)}
}

// SemanticMemory is a discrete stored memory with its embedding. Records are
// immutable once written except for LastAccessedAt, which the store touches
// whenever the memory is returned from a query.
type SemanticMemory struct {
	ID             string     `json:"id"`
	Text           string     `json:"text"`
	Embedding      []float32  `json:"-"`
	Type           MemoryType `json:"memory_type"`
	UserID         string     `json:"user_id"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
}

// ScoredMemory pairs a retrieved memory with its ranking components.
// CombinedScore blends similarity and recency per the configured weight.
type ScoredMemory struct {
	Memory        SemanticMemory `json:"memory"`
	Similarity    float64        `json:"similarity"`
	RecencyScore  float64        `json:"recency_score"`
	CombinedScore float64        `json:"combined_score"`
}

// VectorStore persists and retrieves embedded semantic memories, namespaced
// by user. Upsert is idempotent for near-duplicate texts: when an existing
// memory for the same user exceeds the duplicate similarity threshold the
// existing id is returned and no new record is created.
type VectorStore interface {
	// Upsert embeds text and stores it, returning the id of the stored (or
	// pre-existing duplicate) memory.
	Upsert(ctx context.Context, userID, text string, memType MemoryType) (string, error)

	// Query embeds the query text and returns up to topK memories for the
	// user ranked by combined similarity/recency score (descending, ties
	// broken by most recent). typeFilter narrows results when non-empty.
	// Returned memories have their last-accessed timestamp refreshed.
	Query(ctx context.Context, userID, text string, topK int, typeFilter MemoryType) ([]ScoredMemory, error)

	// All returns every stored memory for the user (inspection/stats).
	All(ctx context.Context, userID string) ([]SemanticMemory, error)

	// Count reports the number of memories stored for the user.
	Count(ctx context.Context, userID string) (int, error)

	// DeleteAll removes every memory belonging to the user.
	DeleteAll(ctx context.Context, userID string) error
}
