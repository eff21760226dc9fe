// Package memorymesh provides a high-level façade over the memory manager and
// its service abstractions (sessions, profiles, vector memories, skills &
// logging) enabling rapid construction of memory-augmented assistants. Most
// applications interact with this package by:
//  1. Creating a MemoryMesh via New() with a completer and embedder
//     (optionally overriding the default in-memory services)
//  2. Driving conversations through Chat()
//  3. Inspecting state through the session and memory accessors
//
// The façade delegates orchestration to engine.Manager while keeping setup
// and usage ergonomics concise. All defaults are safe for local development
// and testing; production deployments typically supply the SQLite-backed
// stores, a persistent vector index and a structured logger.
package memorymesh

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/opsagent/memorymesh/compression"
	"github.com/opsagent/memorymesh/core"
	"github.com/opsagent/memorymesh/engine"
	"github.com/opsagent/memorymesh/logging"
	"github.com/opsagent/memorymesh/memory"
	"github.com/opsagent/memorymesh/model"
	"github.com/opsagent/memorymesh/profile"
	"github.com/opsagent/memorymesh/session"
	"github.com/opsagent/memorymesh/skills"
)

// Options configures the MemoryMesh instance.
type Options struct {
	// Config tunes budgets, ranking weights and retry bounds. Defaults to
	// core.DefaultConfig().
	Config core.Config

	// Completer generates responses, summaries and extractions. Required.
	Completer model.Completer

	// Embedder produces memory vectors. Required.
	Embedder model.Embedder

	// Stores (default to in-memory implementations if not provided; when
	// Config.StorePath is set the defaults are the SQLite-backed stores
	// sharing one database file).
	SessionStore core.SessionStore
	ProfileStore core.ProfileStore

	// VectorIndex backs the memory store. Defaults to an in-memory chromem
	// index, or a persistent one when Config.StorePath is set.
	VectorIndex memory.Index

	// SkillsIndex defaults to the embedded registry.
	SkillsIndex core.SkillsIndex

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// MemoryMesh is the high-level façade aggregating the memory manager and its
// services.
type MemoryMesh struct {
	opts    Options
	manager *engine.Manager
}

// New creates a MemoryMesh with optional overrides. Any unset service is
// initialized with a default implementation; the model calls are wrapped
// with the configured timeout and retry policy.
func New(completer model.Completer, embedder model.Embedder, optFns ...func(o *Options)) (*MemoryMesh, error) {
	opts := Options{
		Config:    core.DefaultConfig(),
		Completer: completer,
		Embedder:  embedder,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Completer == nil {
		return nil, fmt.Errorf("memorymesh: completer is required")
	}
	if opts.Embedder == nil {
		return nil, fmt.Errorf("memorymesh: embedder is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}

	policy := model.PolicyFromConfig(opts.Config)
	completerR := model.NewRetryCompleter(opts.Completer, policy, opts.Logger)
	embedderR := model.NewRetryEmbedder(opts.Embedder, policy, opts.Logger)

	memStore := memory.NewStore(opts.VectorIndex, embedderR, opts.Config, opts.Logger)
	compressor := compression.NewEngine(completerR, opts.Config, opts.Logger)

	manager := engine.NewManager(
		opts.SessionStore,
		opts.ProfileStore,
		memStore,
		opts.SkillsIndex,
		compressor,
		completerR,
		opts.Config,
		opts.Logger,
	)
	return &MemoryMesh{opts: opts, manager: manager}, nil
}

func (o *Options) applyDefaults() error {
	if o.VectorIndex == nil {
		if o.Config.StorePath != "" {
			idx, err := newPersistentVectorIndex(o.Config.StorePath)
			if err != nil {
				return err
			}
			o.VectorIndex = idx
		} else {
			o.VectorIndex = newVectorIndex()
		}
	}
	if o.SessionStore == nil {
		if o.Config.StorePath != "" {
			store, err := session.NewSQLiteStore(filepath.Join(o.Config.StorePath, "sessions.db"))
			if err != nil {
				return err
			}
			o.SessionStore = store
		} else {
			o.SessionStore = session.NewInMemoryStore()
		}
	}
	if o.ProfileStore == nil {
		if o.Config.StorePath != "" {
			store, err := profile.NewSQLiteStore(filepath.Join(o.Config.StorePath, "profiles.db"))
			if err != nil {
				return err
			}
			o.ProfileStore = store
		} else {
			o.ProfileStore = profile.NewInMemoryStore()
		}
	}
	if o.SkillsIndex == nil {
		idx, err := skills.NewDefaultIndex(o.Config, o.Logger)
		if err != nil {
			return err
		}
		o.SkillsIndex = idx
	}
	return nil
}

// Chat runs one conversation turn. An empty sessionID creates a new session;
// the returned result carries the session id to continue with.
func (m *MemoryMesh) Chat(ctx context.Context, userID, sessionID, message string) (*engine.TurnResult, error) {
	return m.manager.Chat(ctx, userID, sessionID, message)
}

// CreateSession allocates a new empty session and returns its id.
func (m *MemoryMesh) CreateSession(ctx context.Context, userID string) (string, error) {
	return m.manager.CreateSession(ctx, userID)
}

// ListSessions returns listing projections for all of the user's sessions.
func (m *MemoryMesh) ListSessions(ctx context.Context, userID string) ([]core.SessionInfo, error) {
	return m.manager.ListSessions(ctx, userID)
}

// GetSession returns the full session, or a *core.NotFoundError.
func (m *MemoryMesh) GetSession(ctx context.Context, userID, sessionID string) (*core.Session, error) {
	return m.manager.GetSession(ctx, userID, sessionID)
}

// DeleteSession removes one session.
func (m *MemoryMesh) DeleteSession(ctx context.Context, userID, sessionID string) error {
	return m.manager.DeleteSession(ctx, userID, sessionID)
}

// DeleteAllSessions removes every session belonging to the user.
func (m *MemoryMesh) DeleteAllSessions(ctx context.Context, userID string) error {
	return m.manager.DeleteAllSessions(ctx, userID)
}

// GetMemoryStats reports the user's stored memories, sessions, profile and
// the resident skills index.
func (m *MemoryMesh) GetMemoryStats(ctx context.Context, userID string) (*engine.MemoryStats, error) {
	return m.manager.GetMemoryStats(ctx, userID)
}

// ResetMemory wipes the user's vector memories and profile.
func (m *MemoryMesh) ResetMemory(ctx context.Context, userID string) error {
	return m.manager.ResetMemory(ctx, userID)
}
