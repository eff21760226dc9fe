package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseMemoryType(t *testing.T) {
	for _, mt := range MemoryTypes {
		got, err := ParseMemoryType(string(mt))
		if err != nil || got != mt {
			t.Fatalf("ParseMemoryType(%q) = %v, %v", mt, got, err)
		}
	}

	_, err := ParseMemoryType("opinion")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for unknown type, got %v", err)
	}
}

func TestDeriveTitle(t *testing.T) {
	if got := DeriveTitle(""); got != "New session" {
		t.Errorf("empty content: got %q", got)
	}
	if got := DeriveTitle("  Hello there  "); got != "Hello there" {
		t.Errorf("short content: got %q", got)
	}

	long := strings.Repeat("a", 100)
	got := DeriveTitle(long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("long title should end with ellipsis: %q", got)
	}
	if len(got) != titleMaxRunes+3 {
		t.Errorf("long title length = %d, want %d", len(got), titleMaxRunes+3)
	}
}

func TestErrorHelpers(t *testing.T) {
	transient := fmt.Errorf("wrapped: %w", &TransientServiceError{Op: "embed", Err: errors.New("timeout")})
	if !IsTransient(transient) {
		t.Error("IsTransient should see through wrapping")
	}
	if IsTransient(errors.New("plain")) {
		t.Error("IsTransient false positive")
	}

	nf := fmt.Errorf("wrapped: %w", &NotFoundError{Kind: "session", ID: "s1"})
	if !IsNotFound(nf) {
		t.Error("IsNotFound should see through wrapping")
	}
	if IsNotFound(transient) {
		t.Error("IsNotFound false positive")
	}
}

func TestSessionClone(t *testing.T) {
	s := NewSession("s1", "u1")
	s.Messages = append(s.Messages, NewMessage(RoleUser, "hi"))

	clone := s.Clone()
	if clone == s {
		t.Fatal("Clone should return a different pointer")
	}
	clone.Messages = append(clone.Messages, NewMessage(RoleAssistant, "hello"))
	clone.Messages[0].Content = "changed"

	if len(s.Messages) != 1 || s.Messages[0].Content != "hi" {
		t.Error("mutating clone should not affect original")
	}
}

func TestLoadConfig_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "token_budget: 4000\nrecency_half_life: 24h\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TokenBudget != 4000 {
		t.Errorf("TokenBudget = %d, want 4000", cfg.TokenBudget)
	}
	if cfg.RecencyHalfLife != 24*time.Hour {
		t.Errorf("RecencyHalfLife = %v, want 24h", cfg.RecencyHalfLife)
	}
	if cfg.TopK != DefaultConfig().TopK {
		t.Errorf("unset fields should keep defaults, TopK = %d", cfg.TopK)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should error")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	bad := []func(*Config){
		func(c *Config) { c.TokenBudget = 0 },
		func(c *Config) { c.RecentWindow = 0 },
		func(c *Config) { c.SimilarityWeight = 1.5 },
		func(c *Config) { c.DuplicateThreshold = 0 },
		func(c *Config) { c.TopK = 0 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
