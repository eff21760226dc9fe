package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the immutable configuration value constructed at startup and
// passed explicitly into each component. Components never read ambient
// global state.
type Config struct {
	// TokenBudget bounds the approximate token count of packed history.
	TokenBudget int `yaml:"token_budget"`
	// RecentWindow is the number of most recent messages kept verbatim when
	// the budget forces a rolling summary.
	RecentWindow int `yaml:"recent_window"`
	// SummaryTrigger is the message count after which a session becomes a
	// candidate for rolling summarization.
	SummaryTrigger int `yaml:"summary_trigger"`
	// TopK caps the number of memories retrieved per turn.
	TopK int `yaml:"top_k"`
	// SimilarityWeight is the weight alpha of similarity in the combined
	// score; recency takes 1-alpha.
	SimilarityWeight float64 `yaml:"similarity_weight"`
	// RecencyHalfLife controls the exponential decay of the recency score:
	// a memory's recency halves every RecencyHalfLife since its last access.
	RecencyHalfLife time.Duration `yaml:"-"`
	// DuplicateThreshold is the cosine similarity above which an upsert is
	// treated as a duplicate of an existing memory.
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`
	// MaxLoadedSkills caps the number of skill bodies expanded per turn.
	MaxLoadedSkills int `yaml:"max_loaded_skills"`
	// ModelTimeout bounds each external model call attempt.
	ModelTimeout time.Duration `yaml:"-"`
	// ModelMaxRetries bounds retries of a failed model call before the
	// affected step degrades.
	ModelMaxRetries int `yaml:"model_max_retries"`
	// StorePath is the data directory for the persistent stores (SQLite
	// databases and the vector index). Empty selects the in-memory stores.
	StorePath string `yaml:"store_path"`
}

// DefaultConfig returns the documented baseline tuning.
//
// The blend weight (0.7 similarity / 0.3 recency), the 48h recency half-life
// and the 0.90 duplicate threshold are deliberate, tested constants; change
// them only together with the ranking tests.
func DefaultConfig() Config {
	return Config{
		TokenBudget:        2000,
		RecentWindow:       4,
		SummaryTrigger:     6,
		TopK:               5,
		SimilarityWeight:   0.7,
		RecencyHalfLife:    48 * time.Hour,
		DuplicateThreshold: 0.90,
		MaxLoadedSkills:    3,
		ModelTimeout:       30 * time.Second,
		ModelMaxRetries:    2,
	}
}

// configFile mirrors Config for YAML decoding. Durations travel as strings
// ("24h", "30s") because the yaml package has no native duration support.
type configFile struct {
	Config          `yaml:",inline"`
	RecencyHalfLife string `yaml:"recency_half_life"`
	ModelTimeout    string `yaml:"model_timeout"`
}

// LoadConfig reads a YAML file over the defaults. Unset fields keep their
// default values; duration fields use Go duration syntax ("24h", "30s").
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	file := configFile{Config: cfg}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg = file.Config
	if file.RecencyHalfLife != "" {
		if cfg.RecencyHalfLife, err = time.ParseDuration(file.RecencyHalfLife); err != nil {
			return cfg, fmt.Errorf("parse recency_half_life: %w", err)
		}
	}
	if file.ModelTimeout != "" {
		if cfg.ModelTimeout, err = time.ParseDuration(file.ModelTimeout); err != nil {
			return cfg, fmt.Errorf("parse model_timeout: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations that would break component invariants.
func (c Config) Validate() error {
	if c.TokenBudget <= 0 {
		return &ValidationError{Reason: "token_budget must be positive"}
	}
	if c.RecentWindow < 1 {
		return &ValidationError{Reason: "recent_window must be at least 1"}
	}
	if c.SimilarityWeight < 0 || c.SimilarityWeight > 1 {
		return &ValidationError{Reason: "similarity_weight must be in [0,1]"}
	}
	if c.DuplicateThreshold <= 0 || c.DuplicateThreshold > 1 {
		return &ValidationError{Reason: "duplicate_threshold must be in (0,1]"}
	}
	if c.TopK < 1 {
		return &ValidationError{Reason: "top_k must be at least 1"}
	}
	return nil
}
