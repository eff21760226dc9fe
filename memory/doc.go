// Package memory implements the core.VectorStore contract: embedded semantic
// memories with duplicate-folding upserts and similarity/recency ranked
// retrieval. The ranking and dedup policy live in Store; raw vector search is
// delegated to a pluggable Index backend (the in-memory cosine index here, or
// the chromem-go backed index in the chromem sub-package).
package memory
