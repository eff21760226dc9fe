package engine

import (
	"context"
	"sync"
	"time"

	"github.com/opsagent/memorymesh/compression"
	"github.com/opsagent/memorymesh/core"
	"github.com/opsagent/memorymesh/logging"
	"github.com/opsagent/memorymesh/model"
)

// fallbackReply is returned when the response completion fails after retries.
// The turn is still persisted so the user can retry without losing history.
const fallbackReply = "I'm having trouble reaching the language model right now. " +
	"Your message has been saved; please try again in a moment."

// Pipeline step names as they appear in turn reports.
const (
	stepRead      = "read"
	stepRetrieve  = "retrieve"
	stepAssemble  = "assemble"
	stepAct       = "act"
	stepWriteBack = "write_back"
)

// Manager orchestrates conversation turns across the memory components. All
// dependencies are injected; the manager owns no storage of its own beyond
// the per-user turn gates.
type Manager struct {
	sessions   core.SessionStore
	profiles   core.ProfileStore
	memories   core.VectorStore
	skills     core.SkillsIndex
	compressor *compression.Engine
	completer  model.Completer
	cfg        core.Config
	logger     logging.Logger
	gates      *turnGates
}

// NewManager wires a memory manager from its components.
func NewManager(
	sessions core.SessionStore,
	profiles core.ProfileStore,
	memories core.VectorStore,
	skills core.SkillsIndex,
	compressor *compression.Engine,
	completer model.Completer,
	cfg core.Config,
	logger logging.Logger,
) *Manager {
	return &Manager{
		sessions:   sessions,
		profiles:   profiles,
		memories:   memories,
		skills:     skills,
		compressor: compressor,
		completer:  completer,
		cfg:        cfg,
		logger:     logging.OrNoOp(logger),
		gates:      newTurnGates(),
	}
}

// TurnResult is the outcome of one chat turn.
type TurnResult struct {
	Reply     string               `json:"reply"`
	SessionID string               `json:"session_id"`
	Report    core.DebugTurnReport `json:"debug_report"`
}

// retrieval carries the outputs of the concurrent retrieve step.
type retrieval struct {
	memories     []core.ScoredMemory
	profile      *core.UserProfile
	skillMatches []core.SkillMatch
	skillBodies  string
	episodic     string
	skipped      []string
}

// Chat runs one conversation turn. An empty sessionID creates a new session.
// Model failures degrade the turn (fallback reply, skipped extraction) and
// are reflected in the report; storage failures abort the turn.
func (m *Manager) Chat(ctx context.Context, userID, sessionID, message string) (*TurnResult, error) {
	start := time.Now()
	release := m.gates.acquire(userID)
	defer release()

	report := core.DebugTurnReport{
		RetrievedMemories: []core.ScoredMemory{},
		NewMemories:       []core.SemanticMemory{},
	}

	// READ: resolve the session and persist the user message up front, so a
	// failure later in the turn never loses it.
	session, err := m.readStep(ctx, userID, sessionID, message)
	if err != nil {
		return nil, err
	}
	firstTurn := len(session.Messages) == 1
	report.Steps = append(report.Steps, stepRead)

	turnLog := m.turnLogger(userID, session.ID)

	// RETRIEVE: memory query, profile fetch, skill match and (on a session's
	// first turn) episodic lookup run concurrently; none blocks the turn.
	ret := m.retrieveStep(ctx, userID, session.ID, message, firstTurn, turnLog)
	report.Steps = append(report.Steps, stepRetrieve)
	report.SkippedSteps = append(report.SkippedSteps, ret.skipped...)
	report.RetrievedMemories = ret.memories
	report.Profile = ret.profile
	report.Skills = ret.skillMatches
	report.EpisodicContext = ret.episodic

	// ASSEMBLE: pack the history into the budget and build the prompt.
	pack := m.compressor.BudgetAndPack(ctx, session.Messages, session.Summary)
	req := m.assemble(ret, pack, message)
	report.Steps = append(report.Steps, stepAssemble)
	stats := pack.Stats
	report.Compression = &stats
	report.Summary = pack.Summary

	// ACT: one completion for the reply. Failure degrades, never aborts.
	reply, err := m.completer.Complete(ctx, req)
	if err != nil {
		turnLog.Warn("completion failed, returning fallback", "error", err)
		reply = fallbackReply
		report.Degraded = true
	}
	report.Steps = append(report.Steps, stepAct)

	// WRITE-BACK: extraction and memory/profile writes are skipped on a
	// degraded turn, but the exchange itself is always persisted.
	if !report.Degraded {
		m.writeBackMemories(ctx, userID, message, reply, ret.profile, &report, turnLog)
	} else {
		report.SkippedSteps = append(report.SkippedSteps,
			stepWriteBack+".extract", stepWriteBack+".memories", stepWriteBack+".profile")
	}

	if err := m.persistTurn(ctx, userID, session, reply, pack, &report, turnLog); err != nil {
		return nil, err
	}
	report.Steps = append(report.Steps, stepWriteBack)

	m.logTurn(turnLog, &report, time.Since(start))
	return &TurnResult{Reply: reply, SessionID: session.ID, Report: report}, nil
}

// readStep resolves the target session, creating one when no id was given,
// and appends the incoming user message to the store. The returned copy
// already carries the appended message.
func (m *Manager) readStep(ctx context.Context, userID, sessionID, message string) (*core.Session, error) {
	var (
		session *core.Session
		err     error
	)
	if sessionID == "" {
		session, err = m.sessions.Create(ctx, userID)
	} else {
		session, err = m.sessions.Get(ctx, userID, sessionID)
	}
	if err != nil {
		return nil, err
	}

	userMsg := core.NewMessage(core.RoleUser, message)
	if err := m.sessions.Append(ctx, userID, session.ID, userMsg); err != nil {
		return nil, err
	}
	session.Messages = append(session.Messages, userMsg)
	return session, nil
}

func (m *Manager) retrieveStep(ctx context.Context, userID, sessionID, message string, firstTurn bool, log logging.Logger) retrieval {
	var (
		ret retrieval
		mu  sync.Mutex
		wg  sync.WaitGroup
	)
	skip := func(step string, err error) {
		mu.Lock()
		ret.skipped = append(ret.skipped, step)
		mu.Unlock()
		log.Warn("retrieve sub-step degraded", "step", step, "error", err)
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		mems, err := m.memories.Query(ctx, userID, message, m.cfg.TopK, "")
		if err != nil {
			skip(stepRetrieve+".memories", err)
			return
		}
		mu.Lock()
		ret.memories = mems
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		profile, err := m.profiles.Get(ctx, userID)
		if err != nil {
			skip(stepRetrieve+".profile", err)
			return
		}
		mu.Lock()
		ret.profile = profile
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		matches, bodies, err := m.skills.Match(ctx, message)
		if err != nil {
			skip(stepRetrieve+".skills", err)
			return
		}
		mu.Lock()
		ret.skillMatches = matches
		ret.skillBodies = bodies
		mu.Unlock()
	}()
	if firstTurn {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := m.sessions.PreviousSummary(ctx, userID, sessionID)
			if err != nil {
				skip(stepRetrieve+".episodic", err)
				return
			}
			mu.Lock()
			ret.episodic = summary
			mu.Unlock()
		}()
	}
	wg.Wait()

	if ret.memories == nil {
		ret.memories = []core.ScoredMemory{}
	}
	return ret
}

// writeBackMemories runs extraction and applies the results. Every failure
// here degrades to a skipped step; the turn's persistence happens later and
// is unaffected.
func (m *Manager) writeBackMemories(ctx context.Context, userID, userMsg, reply string, profile *core.UserProfile, report *core.DebugTurnReport, log logging.Logger) {
	extraction, err := m.compressor.ExtractMemories(ctx, userMsg, reply, profile)
	if err != nil {
		log.Warn("memory extraction failed, skipping", "error", err)
		report.SkippedSteps = append(report.SkippedSteps,
			stepWriteBack+".extract", stepWriteBack+".memories", stepWriteBack+".profile")
		return
	}

	for _, cand := range extraction.Memories {
		id, err := m.memories.Upsert(ctx, userID, cand.Text, cand.Type)
		if err != nil {
			log.Warn("memory upsert failed, dropping candidate", "error", err)
			continue
		}
		report.NewMemories = append(report.NewMemories, core.SemanticMemory{
			ID:     id,
			Text:   cand.Text,
			Type:   cand.Type,
			UserID: userID,
		})
	}

	if !extraction.Profile.IsEmpty() {
		merged, err := m.profiles.Merge(ctx, userID, extraction.Profile)
		if err != nil {
			log.Warn("profile merge failed, skipping", "error", err)
			report.SkippedSteps = append(report.SkippedSteps, stepWriteBack+".profile")
		} else {
			report.ProfileUpdates = extraction.Profile
			report.Profile = merged
		}
	}
}

// persistTurn appends the assistant reply and keeps the rolling summary
// fresh. The user message was already stored during the read step. Packing
// an over-budget history produced a new summary this turn; otherwise one is
// regenerated once the session has grown past the trigger. Storage failures
// here fail the turn; a failed regeneration is retried on the next one.
func (m *Manager) persistTurn(ctx context.Context, userID string, session *core.Session, reply string, pack compression.PackResult, report *core.DebugTurnReport, log logging.Logger) error {
	assistantMsg := core.NewMessage(core.RoleAssistant, reply)
	if err := m.sessions.Append(ctx, userID, session.ID, assistantMsg); err != nil {
		return err
	}

	summary := pack.Summary
	if pack.Stats.Strategy != core.StrategyRollingSummary && !report.Degraded {
		history := append(append([]core.Message(nil), session.Messages...), assistantMsg)
		if m.compressor.ShouldSummarize(history) {
			refreshed, err := m.compressor.Summarize(ctx, history, session.Summary)
			if err != nil {
				log.Warn("summary refresh failed, keeping previous summary", "error", err)
			} else {
				summary = refreshed
			}
		}
	}
	if summary != session.Summary {
		if err := m.sessions.SetSummary(ctx, userID, session.ID, summary); err != nil {
			return err
		}
		report.Summary = summary
	}
	return nil
}

func (m *Manager) turnLogger(userID, sessionID string) logging.Logger {
	if cl, ok := m.logger.(*logging.ContextLogger); ok {
		return cl.WithTurn(userID, sessionID)
	}
	return m.logger
}

func (m *Manager) logTurn(log logging.Logger, report *core.DebugTurnReport, dur time.Duration) {
	if cl, ok := log.(*logging.ContextLogger); ok {
		cl.LogTurn(len(report.Steps), len(report.RetrievedMemories), len(report.NewMemories), dur, report.Degraded)
		return
	}
	log.Info("turn complete",
		"steps", len(report.Steps),
		"retrieved", len(report.RetrievedMemories),
		"stored", len(report.NewMemories),
		"duration_ms", dur.Milliseconds(),
		"degraded", report.Degraded,
	)
}
