package core

// Packing strategies reported by the compression engine.
const (
	// StrategyFull means the raw history fit the budget and passed through.
	StrategyFull = "full"
	// StrategyRollingSummary means older messages were folded into the
	// session's rolling summary and dropped from the packed history.
	StrategyRollingSummary = "rolling_summary"
)

// CompressionStats describes one budget_and_pack run.
type CompressionStats struct {
	OriginalMessages int    `json:"original_messages"`
	FinalMessages    int    `json:"final_messages"`
	DroppedMessages  int    `json:"dropped_messages"`
	OriginalTokens   int    `json:"original_tokens"`
	Budget           int    `json:"budget"`
	Strategy         string `json:"strategy"`
	Pruned           bool   `json:"pruned"`
	// SummaryFailed flags a summarization call that errored; the pack
	// degraded to the full strategy instead of failing the turn.
	SummaryFailed bool `json:"summary_failed,omitempty"`
}

// DebugTurnReport is the structured observability record produced exactly once
// per turn. It is a pure output for the boundary layer: the orchestrator never
// reads it back. A degraded turn must be visible here, never reported as a
// silent full success.
type DebugTurnReport struct {
	Steps             []string          `json:"steps"`
	SkippedSteps      []string          `json:"skipped_steps,omitempty"`
	RetrievedMemories []ScoredMemory    `json:"retrieved_memories"`
	NewMemories       []SemanticMemory  `json:"new_memories"`
	Profile           *UserProfile      `json:"profile,omitempty"`
	ProfileUpdates    ProfileUpdate     `json:"profile_updates"`
	EpisodicContext   string            `json:"episodic_context,omitempty"`
	Skills            []SkillMatch      `json:"skills"`
	Compression       *CompressionStats `json:"compression_stats,omitempty"`
	Summary           string            `json:"summary,omitempty"`
	Degraded          bool              `json:"degraded,omitempty"`
}
