package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opsagent/memorymesh/core"
	"github.com/opsagent/memorymesh/model"
)

// Hit is one raw similarity search result before recency re-ranking.
type Hit struct {
	Memory     core.SemanticMemory
	Similarity float64
}

// Index is the raw vector search backend beneath Store. Implementations only
// need nearest-neighbor search over per-user namespaces; ranking, dedup and
// score blending happen in Store.
type Index interface {
	// Add stores a memory record with its embedding.
	Add(ctx context.Context, mem core.SemanticMemory) error

	// Search returns up to limit memories for the user ordered by cosine
	// similarity to the embedding, highest first.
	Search(ctx context.Context, userID string, embedding []float32, limit int) ([]Hit, error)

	// Touch refreshes the last-accessed timestamp of the given memories.
	Touch(ctx context.Context, userID string, ids []string, when time.Time) error

	// All returns every memory stored for the user.
	All(ctx context.Context, userID string) ([]core.SemanticMemory, error)

	// Count reports the number of memories stored for the user.
	Count(ctx context.Context, userID string) (int, error)

	// DeleteAll removes every memory belonging to the user.
	DeleteAll(ctx context.Context, userID string) error
}

// InMemoryIndex is a process-local Index using a linear cosine scan. Suitable
// for tests and small deployments; swap for the chromem backend when the
// per-user memory count grows.
type InMemoryIndex struct {
	mu      sync.RWMutex
	records map[string]map[string]core.SemanticMemory // userID -> id -> memory
}

// NewInMemoryIndex constructs an empty index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{records: make(map[string]map[string]core.SemanticMemory)}
}

// Add implements Index.
func (ix *InMemoryIndex) Add(ctx context.Context, mem core.SemanticMemory) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.records[mem.UserID]; !ok {
		ix.records[mem.UserID] = make(map[string]core.SemanticMemory)
	}
	ix.records[mem.UserID][mem.ID] = mem
	return nil
}

// Search implements Index with a full scan over the user's namespace.
func (ix *InMemoryIndex) Search(ctx context.Context, userID string, embedding []float32, limit int) ([]Hit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	hits := make([]Hit, 0, len(ix.records[userID]))
	for _, mem := range ix.records[userID] {
		hits = append(hits, Hit{Memory: mem, Similarity: model.CosineSimilarity(embedding, mem.Embedding)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Touch implements Index.
func (ix *InMemoryIndex) Touch(ctx context.Context, userID string, ids []string, when time.Time) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, id := range ids {
		if mem, ok := ix.records[userID][id]; ok {
			mem.LastAccessedAt = when
			ix.records[userID][id] = mem
		}
	}
	return nil
}

// All implements Index.
func (ix *InMemoryIndex) All(ctx context.Context, userID string) ([]core.SemanticMemory, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]core.SemanticMemory, 0, len(ix.records[userID]))
	for _, mem := range ix.records[userID] {
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Count implements Index.
func (ix *InMemoryIndex) Count(ctx context.Context, userID string) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records[userID]), nil
}

// DeleteAll implements Index.
func (ix *InMemoryIndex) DeleteAll(ctx context.Context, userID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.records, userID)
	return nil
}
