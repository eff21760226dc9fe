package model

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// CompletionRequest captures one completion invocation. The same contract
// serves response generation, summarization and memory extraction; the three
// differ only in their prompts.
type CompletionRequest struct {
	// System is the fixed system prompt for the invocation.
	System string
	// Context is the assembled context block (memories, profile, history).
	Context string
	// Task is the instruction or latest user message to respond to.
	Task string
	// Temperature, if non-nil, overrides the provider default.
	Temperature *float64
	// MaxTokens, if positive, caps the generated output length.
	MaxTokens int64
}

// Completer generates text from an assembled prompt. Failures on timeout or
// network fault are transient; callers retry with bounded backoff and then
// degrade the affected step.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Info returns metadata about the provider implementation.
	Info() Info
}

// Embedder converts text to a fixed-length float vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// MockCompleter is a lightweight in-memory Completer for tests and examples.
// Responses are registered against task substrings; unmatched requests get a
// deterministic echo.
type MockCompleter struct {
	mu        sync.Mutex
	responses []mockResponse
	calls     []CompletionRequest
	err       error
}

type mockResponse struct {
	taskContains string
	response     string
}

// NewMockCompleter constructs an empty MockCompleter.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// AddResponse registers a canned completion for requests whose task contains
// the given substring. Registrations are matched in order.
func (m *MockCompleter) AddResponse(taskContains, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{taskContains: taskContains, response: response})
}

// Fail makes every subsequent call return err (nil restores normal behavior).
func (m *MockCompleter) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns a copy of every request seen so far.
func (m *MockCompleter) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.calls...)
}

// Complete implements Completer.
func (m *MockCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return "", m.err
	}
	for _, r := range m.responses {
		if strings.Contains(req.Task, r.taskContains) {
			return r.response, nil
		}
	}
	return fmt.Sprintf("Mock response to: %s", req.Task), nil
}

// Info implements Completer.
func (m *MockCompleter) Info() Info { return Info{Name: "mock", Provider: "mock"} }

// MockEmbedder generates deterministic embeddings from a text hash, so
// identical texts always embed identically. Explicit vectors can be injected
// per text to simulate semantic closeness between different phrasings.
type MockEmbedder struct {
	mu         sync.Mutex
	dimensions int
	overrides  map[string][]float32
	err        error
}

// NewMockEmbedder constructs a mock embedder with 384 dimensions (matching
// small sentence-transformer models).
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{dimensions: 384, overrides: map[string][]float32{}}
}

// SetVector pins the embedding returned for an exact text.
func (m *MockEmbedder) SetVector(text string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[text] = Normalize(vec)
}

// Fail makes every subsequent call return err (nil restores normal behavior).
func (m *MockEmbedder) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Embed implements Embedder.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if vec, ok := m.overrides[text]; ok {
		return append([]float32(nil), vec...), nil
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		// Linear congruential generator seeded by the text hash.
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return Normalize(embedding), nil
}

// Dimensions implements Embedder.
func (m *MockEmbedder) Dimensions() int { return m.dimensions }

// Normalize scales a vector to unit length. Zero vectors pass through.
func Normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v * scale
	}
	return out
}

// CosineSimilarity computes cosine similarity between two vectors. Mismatched
// lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
