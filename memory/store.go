package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opsagent/memorymesh/core"
	"github.com/opsagent/memorymesh/logging"
	"github.com/opsagent/memorymesh/model"
)

// Store implements core.VectorStore. It embeds texts via the Embedder,
// delegates raw similarity search to the Index, folds near-duplicate upserts
// into existing records and re-ranks query hits with a recency bias so
// fresher memories bubble up.
type Store struct {
	index    Index
	embedder model.Embedder
	cfg      core.Config
	logger   logging.Logger

	now func() time.Time
}

// NewStore wires an Index and Embedder under the shared configuration.
func NewStore(index Index, embedder model.Embedder, cfg core.Config, logger logging.Logger) *Store {
	return &Store{index: index, embedder: embedder, cfg: cfg, logger: logging.OrNoOp(logger), now: time.Now}
}

// Upsert implements core.VectorStore. A text whose cosine similarity to an
// existing memory of the same user exceeds the duplicate threshold is not
// stored again; the existing id is returned so repeated submissions stay
// idempotent.
func (s *Store) Upsert(ctx context.Context, userID, text string, memType core.MemoryType) (string, error) {
	if _, err := core.ParseMemoryType(string(memType)); err != nil {
		return "", err
	}
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embed memory: %w", err)
	}

	hits, err := s.index.Search(ctx, userID, embedding, 5)
	if err != nil {
		return "", &core.StorageError{Op: "memory.search", Err: err}
	}
	if len(hits) > 0 && hits[0].Similarity >= s.cfg.DuplicateThreshold {
		s.logger.Debug("Duplicate memory folded", "user_id", userID, "existing_id", hits[0].Memory.ID, "similarity", hits[0].Similarity)
		return hits[0].Memory.ID, nil
	}

	now := s.now()
	mem := core.SemanticMemory{
		ID:             "mem_" + ulid.Make().String(),
		Text:           text,
		Embedding:      embedding,
		Type:           memType,
		UserID:         userID,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := s.index.Add(ctx, mem); err != nil {
		return "", &core.StorageError{Op: "memory.add", Err: err}
	}
	s.logger.Debug("Stored memory", "user_id", userID, "id", mem.ID, "type", memType)
	return mem.ID, nil
}

// Query implements core.VectorStore. Hits are over-fetched from the index,
// optionally filtered by type, then re-ranked by
//
//	combined = alpha*similarity + (1-alpha)*recency
//
// where recency halves every configured half-life since last access. Ties
// break toward the most recently accessed memory. Returned memories get their
// last-accessed timestamp refreshed.
func (s *Store) Query(ctx context.Context, userID, text string, topK int, typeFilter core.MemoryType) ([]core.ScoredMemory, error) {
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Over-fetch so the recency re-rank has candidates to promote.
	fetch := topK * 2
	if fetch > 20 {
		fetch = 20
	}
	hits, err := s.index.Search(ctx, userID, embedding, fetch)
	if err != nil {
		return nil, &core.StorageError{Op: "memory.search", Err: err}
	}

	now := s.now()
	scored := make([]core.ScoredMemory, 0, len(hits))
	for _, hit := range hits {
		if typeFilter != "" && hit.Memory.Type != typeFilter {
			continue
		}
		recency := s.recencyScore(now, hit.Memory.LastAccessedAt)
		scored = append(scored, core.ScoredMemory{
			Memory:        hit.Memory,
			Similarity:    hit.Similarity,
			RecencyScore:  recency,
			CombinedScore: s.cfg.SimilarityWeight*hit.Similarity + (1-s.cfg.SimilarityWeight)*recency,
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].CombinedScore != scored[j].CombinedScore {
			return scored[i].CombinedScore > scored[j].CombinedScore
		}
		return scored[i].Memory.LastAccessedAt.After(scored[j].Memory.LastAccessedAt)
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}

	if len(scored) > 0 {
		ids := make([]string, len(scored))
		for i, sm := range scored {
			ids[i] = sm.Memory.ID
		}
		if err := s.index.Touch(ctx, userID, ids, now); err != nil {
			s.logger.Warn("Failed to touch memories", "user_id", userID, "error", err)
		}
	}

	s.logger.Debug("Retrieved memories", "user_id", userID, "count", len(scored))
	return scored, nil
}

// recencyScore decays exponentially with the time since last access: 1.0 for
// a just-touched memory, halving every configured half-life.
func (s *Store) recencyScore(now, lastAccessed time.Time) float64 {
	age := now.Sub(lastAccessed)
	if age <= 0 {
		return 1
	}
	return math.Exp2(-age.Hours() / s.cfg.RecencyHalfLife.Hours())
}

// All implements core.VectorStore.
func (s *Store) All(ctx context.Context, userID string) ([]core.SemanticMemory, error) {
	mems, err := s.index.All(ctx, userID)
	if err != nil {
		return nil, &core.StorageError{Op: "memory.all", Err: err}
	}
	return mems, nil
}

// Count implements core.VectorStore.
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	n, err := s.index.Count(ctx, userID)
	if err != nil {
		return 0, &core.StorageError{Op: "memory.count", Err: err}
	}
	return n, nil
}

// DeleteAll implements core.VectorStore.
func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	if err := s.index.DeleteAll(ctx, userID); err != nil {
		return &core.StorageError{Op: "memory.delete_all", Err: err}
	}
	s.logger.Info("Deleted all memories", "user_id", userID)
	return nil
}

// FormatContext renders retrieved memories into a context block for prompt
// assembly. Empty input yields an empty string.
func FormatContext(memories []core.ScoredMemory) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<retrieved_memories>\n")
	for i, sm := range memories {
		fmt.Fprintf(&b, "  [%d] (type=%s, relevance=%.4f)\n", i+1, sm.Memory.Type, sm.CombinedScore)
		fmt.Fprintf(&b, "      %s\n", sm.Memory.Text)
	}
	b.WriteString("</retrieved_memories>")
	return b.String()
}
