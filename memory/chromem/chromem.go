// Package chromem provides a memory.Index backend on chromem-go, the pure Go
// embedded vector database. Each user gets an isolated collection. chromem
// owns the vectors; record metadata (type, timestamps) is kept alongside in a
// guarded map because chromem-go documents cannot be updated in place.
package chromem

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"strings"
	"sync"
	"time"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/opsagent/memorymesh/core"
	"github.com/opsagent/memorymesh/memory"
)

// Index implements memory.Index backed by chromem-go collections.
type Index struct {
	db          *chromemgo.DB
	mu          sync.RWMutex
	collections map[string]*chromemgo.Collection
	records     map[string]map[string]core.SemanticMemory // userID -> id -> memory
}

var _ memory.Index = (*Index)(nil)

// New creates a volatile chromem-backed index.
func New() *Index {
	return &Index{
		db:          chromemgo.NewDB(),
		collections: make(map[string]*chromemgo.Collection),
		records:     make(map[string]map[string]core.SemanticMemory),
	}
}

// NewPersistent creates an index whose vectors are persisted under path.
func NewPersistent(path string) (*Index, error) {
	db, err := chromemgo.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	return &Index{
		db:          db,
		collections: make(map[string]*chromemgo.Collection),
		records:     make(map[string]map[string]core.SemanticMemory),
	}, nil
}

func collectionName(userID string) string {
	if userID == "" {
		return "global"
	}
	return "user_" + userID
}

func (ix *Index) getOrCreateCollection(userID string) (*chromemgo.Collection, error) {
	ix.mu.RLock()
	col, ok := ix.collections[userID]
	ix.mu.RUnlock()
	if ok {
		return col, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if col, ok := ix.collections[userID]; ok {
		return col, nil
	}
	col, err := ix.db.GetOrCreateCollection(collectionName(userID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	ix.collections[userID] = col
	return col, nil
}

// Add implements memory.Index.
func (ix *Index) Add(ctx context.Context, mem core.SemanticMemory) error {
	col, err := ix.getOrCreateCollection(mem.UserID)
	if err != nil {
		return err
	}

	doc := chromemgo.Document{
		ID:        mem.ID,
		Content:   mem.Text,
		Embedding: mem.Embedding,
		Metadata: map[string]string{
			"memory_type": string(mem.Type),
			"user_id":     mem.UserID,
			"created_at":  mem.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.records[mem.UserID]; !ok {
		ix.records[mem.UserID] = make(map[string]core.SemanticMemory)
	}
	ix.records[mem.UserID][mem.ID] = mem
	return nil
}

// Search implements memory.Index. chromem requires nResults not to exceed the
// collection size, so the limit is clamped before querying.
func (ix *Index) Search(ctx context.Context, userID string, embedding []float32, limit int) ([]memory.Hit, error) {
	col, err := ix.getOrCreateCollection(userID)
	if err != nil {
		return nil, err
	}
	if n := col.Count(); limit > n {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		if isEmptyCollectionError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	ix.mu.RLock()
	var restored []core.SemanticMemory
	hits := make([]memory.Hit, 0, len(results))
	for _, res := range results {
		mem, ok := ix.records[userID][res.ID]
		if !ok {
			// After a persistent restart the side map starts empty;
			// rebuild the record from the stored document.
			mem = memoryFromResult(userID, res)
			restored = append(restored, mem)
		}
		hits = append(hits, memory.Hit{Memory: mem, Similarity: float64(res.Similarity)})
	}
	ix.mu.RUnlock()

	if len(restored) > 0 {
		ix.mu.Lock()
		if _, ok := ix.records[userID]; !ok {
			ix.records[userID] = make(map[string]core.SemanticMemory)
		}
		for _, mem := range restored {
			if _, ok := ix.records[userID][mem.ID]; !ok {
				ix.records[userID][mem.ID] = mem
			}
		}
		ix.mu.Unlock()
	}
	return hits, nil
}

func memoryFromResult(userID string, res chromemgo.Result) core.SemanticMemory {
	return restoredMemory(userID, res.ID, res.Content, res.Embedding, res.Metadata)
}

func memoryFromDocument(userID string, doc *chromemgo.Document) core.SemanticMemory {
	return restoredMemory(userID, doc.ID, doc.Content, doc.Embedding, doc.Metadata)
}

// restoredMemory rebuilds a record from a stored document. The last-accessed
// time is not persisted, so it restarts at the creation time.
func restoredMemory(userID, id, content string, embedding []float32, metadata map[string]string) core.SemanticMemory {
	createdAt, _ := time.Parse(time.RFC3339Nano, metadata["created_at"])
	return core.SemanticMemory{
		ID:             id,
		Text:           content,
		Embedding:      embedding,
		Type:           core.MemoryType(metadata["memory_type"]),
		UserID:         userID,
		CreatedAt:      createdAt,
		LastAccessedAt: createdAt,
	}
}

// Touch implements memory.Index. Only the side records are updated; the
// stored vectors are unaffected by access-time refreshes.
func (ix *Index) Touch(ctx context.Context, userID string, ids []string, when time.Time) error {
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

// All implements memory.Index. After a persistent restart the side records
// are rebuilt from the stored documents before answering.
func (ix *Index) All(ctx context.Context, userID string) ([]core.SemanticMemory, error) {
	col, err := ix.getOrCreateCollection(userID)
	if err != nil {
		return nil, err
	}
	if err := ix.rehydrate(userID, col); err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]core.SemanticMemory, 0, len(ix.records[userID]))
	for _, mem := range ix.records[userID] {
		out = append(out, mem)
	}
	return out, nil
}

// Count implements memory.Index. chromem is the source of truth here so the
// count is correct even before the side records are rebuilt after a restart.
func (ix *Index) Count(ctx context.Context, userID string) (int, error) {
	col, err := ix.getOrCreateCollection(userID)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// rehydrate fills missing side records from the collection's documents.
// chromem-go has no listing API, but its gob export carries the full document
// set with exported fields.
func (ix *Index) rehydrate(userID string, col *chromemgo.Collection) error {
	ix.mu.RLock()
	known := len(ix.records[userID])
	ix.mu.RUnlock()
	if known >= col.Count() {
		return nil
	}

	var buf bytes.Buffer
	if err := ix.db.ExportToWriter(&buf, false, "", collectionName(userID)); err != nil {
		return fmt.Errorf("export collection: %w", err)
	}
	var exported struct {
		Collections map[string]*struct {
			Name      string
			Metadata  map[string]string
			Documents map[string]*chromemgo.Document
		}
	}
	if err := gob.NewDecoder(&buf).Decode(&exported); err != nil {
		return fmt.Errorf("decode collection export: %w", err)
	}
	stored, ok := exported.Collections[collectionName(userID)]
	if !ok {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.records[userID]; !ok {
		ix.records[userID] = make(map[string]core.SemanticMemory)
	}
	for id, doc := range stored.Documents {
		if _, ok := ix.records[userID][id]; !ok {
			ix.records[userID][id] = memoryFromDocument(userID, doc)
		}
	}
	return nil
}

// DeleteAll implements memory.Index.
func (ix *Index) DeleteAll(ctx context.Context, userID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.db.DeleteCollection(collectionName(userID)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	delete(ix.collections, userID)
	delete(ix.records, userID)
	return nil
}

func isEmptyCollectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
