// Package compression enforces the context token budget. It packs message
// histories (pass-through below budget, rolling summarization above it) and
// extracts long-term memories plus profile updates from conversation turns.
// Both paths issue at most one external completion call and degrade to
// harmless defaults when that call fails; a turn never aborts because
// compression did.
package compression
