package model

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var (
	_ Completer = (*MockCompleter)(nil)
	_ Embedder  = (*MockEmbedder)(nil)
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "same text")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "same text")
	require.NoError(t, err)
	assert.Equal(t, a, b, "identical texts embed identically")
	assert.Len(t, a, e.Dimensions())

	c, err := e.Embed(ctx, "different text")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	// Unit length after normalization.
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestMockEmbedder_SetVector(t *testing.T) {
	e := NewMockEmbedder()
	e.SetVector("pinned", []float32{3, 4, 0})

	got, err := e.Embed(context.Background(), "pinned")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 0.6, float64(got[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(got[1]), 1e-6)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.InDelta(t, math.Sqrt2/2, CosineSimilarity([]float32{1, 0}, []float32{1, 1}), 1e-6)

	// Mismatched or zero vectors score zero instead of panicking.
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}

func TestMockCompleter_CannedResponses(t *testing.T) {
	c := NewMockCompleter()
	c.AddResponse("summary", "the summary text")
	ctx := context.Background()

	out, err := c.Complete(ctx, CompletionRequest{Task: "Produce the updated summary."})
	require.NoError(t, err)
	assert.Equal(t, "the summary text", out)

	out, err = c.Complete(ctx, CompletionRequest{Task: "something else"})
	require.NoError(t, err)
	assert.Contains(t, out, "something else", "unmatched tasks get the echo fallback")

	assert.Len(t, c.Calls(), 2)
}
