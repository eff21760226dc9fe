package core

import "context"

// SkillEntry is one lightweight record in the skills index: enough to decide
// whether the full body is worth loading for a given message. The index is
// immutable after load; only the cache of loaded bodies mutates.
type SkillEntry struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// SkillMatch reports the match outcome for a single registered entry. Every
// registered entry appears in the match report regardless of load state.
type SkillMatch struct {
	SkillID string `json:"skill_id"`
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Loaded  bool   `json:"loaded"`
}

// SkillsIndex matches incoming messages against the registry and lazily
// expands the bodies of matched entries (progressive disclosure).
type SkillsIndex interface {
	// Entries returns the full immutable index.
	Entries() []SkillEntry

	// Match scores every registered entry against the message and returns
	// the per-entry report plus the concatenated bodies of loaded entries.
	Match(ctx context.Context, message string) ([]SkillMatch, string, error)

	// IndexContext renders the always-resident summary view of the registry
	// for prompt assembly.
	IndexContext() string
}
