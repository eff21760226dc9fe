package chromem

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsagent/memorymesh/core"
	"github.com/opsagent/memorymesh/memory"
	"github.com/opsagent/memorymesh/model"
)

var _ memory.Index = (*Index)(nil)

func embed(t *testing.T, embedder *model.MockEmbedder, text string) []float32 {
	t.Helper()
	vec, err := embedder.Embed(context.Background(), text)
	require.NoError(t, err)
	return vec
}

func mem(id, userID, text string, embedding []float32) core.SemanticMemory {
	now := time.Now()
	return core.SemanticMemory{
		ID:             id,
		Text:           text,
		Embedding:      embedding,
		Type:           core.MemoryTypeFact,
		UserID:         userID,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
}

func TestIndex_AddAndSearch(t *testing.T) {
	ix := New()
	embedder := model.NewMockEmbedder()
	ctx := context.Background()

	vec := embed(t, embedder, "runs on GKE")
	require.NoError(t, ix.Add(ctx, mem("m1", "u1", "runs on GKE", vec)))
	require.NoError(t, ix.Add(ctx, mem("m2", "u1", "prefers vim", embed(t, embedder, "prefers vim"))))

	hits, err := ix.Search(ctx, "u1", vec, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "m1", hits[0].Memory.ID, "exact vector is the nearest neighbor")
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-4)

	// Empty namespaces return no hits, not an error.
	hits, err = ix.Search(ctx, "u2", vec, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_TouchAndCount(t *testing.T) {
	ix := New()
	embedder := model.NewMockEmbedder()
	ctx := context.Background()

	vec := embed(t, embedder, "text")
	require.NoError(t, ix.Add(ctx, mem("m1", "u1", "text", vec)))

	later := time.Now().Add(time.Hour)
	require.NoError(t, ix.Touch(ctx, "u1", []string{"m1", "unknown-id"}, later))

	all, err := ix.All(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].LastAccessedAt.Equal(later))

	n, err := ix.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIndex_DeleteAll(t *testing.T) {
	ix := New()
	embedder := model.NewMockEmbedder()
	ctx := context.Background()

	vec := embed(t, embedder, "text")
	require.NoError(t, ix.Add(ctx, mem("m1", "u1", "text", vec)))
	require.NoError(t, ix.Add(ctx, mem("m2", "u2", "text", vec)))

	require.NoError(t, ix.DeleteAll(ctx, "u1"))

	n, err := ix.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)

	// Other users are untouched.
	n, err = ix.Count(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIndex_PersistentSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vectors")
	embedder := model.NewMockEmbedder()
	ctx := context.Background()

	first, err := NewPersistent(dir)
	require.NoError(t, err)
	vec := embed(t, embedder, "survives restarts")
	require.NoError(t, first.Add(ctx, mem("m1", "u1", "survives restarts", vec)))

	second, err := NewPersistent(dir)
	require.NoError(t, err)
	hits, err := second.Search(ctx, "u1", vec, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "m1", hits[0].Memory.ID)
	assert.Equal(t, "survives restarts", hits[0].Memory.Text)
	assert.Equal(t, core.MemoryTypeFact, hits[0].Memory.Type)
}

func TestIndex_CountAndAllSurviveReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vectors")
	embedder := model.NewMockEmbedder()
	ctx := context.Background()

	first, err := NewPersistent(dir)
	require.NoError(t, err)
	require.NoError(t, first.Add(ctx, mem("m1", "u1", "runs on GKE", embed(t, embedder, "runs on GKE"))))
	require.NoError(t, first.Add(ctx, mem("m2", "u1", "prefers vim", embed(t, embedder, "prefers vim"))))

	// A fresh process must see the stored documents without any prior Search
	// warming the records back up.
	second, err := NewPersistent(dir)
	require.NoError(t, err)

	n, err := second.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := second.All(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	texts := map[string]string{}
	for _, m := range all {
		texts[m.ID] = m.Text
		assert.Equal(t, core.MemoryTypeFact, m.Type)
		assert.False(t, m.CreatedAt.IsZero())
	}
	assert.Equal(t, "runs on GKE", texts["m1"])
	assert.Equal(t, "prefers vim", texts["m2"])

	n, err = second.Count(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, n)
}
