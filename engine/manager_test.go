package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsagent/memorymesh/compression"
	"github.com/opsagent/memorymesh/core"
	"github.com/opsagent/memorymesh/memory"
	"github.com/opsagent/memorymesh/model"
	"github.com/opsagent/memorymesh/profile"
	"github.com/opsagent/memorymesh/session"
	"github.com/opsagent/memorymesh/skills"
)

const emptyExtraction = `{"memories": [], "profile": {}}`

type fixture struct {
	manager   *Manager
	completer *model.MockCompleter
	embedder  *model.MockEmbedder
	sessions  core.SessionStore
	profiles  core.ProfileStore
	memories  core.VectorStore
}

func newFixture(t *testing.T, mutate ...func(*core.Config)) *fixture {
	t.Helper()
	cfg := core.DefaultConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	completer := model.NewMockCompleter()
	embedder := model.NewMockEmbedder()
	sessions := session.NewInMemoryStore()
	profiles := profile.NewInMemoryStore()
	memories := memory.NewStore(memory.NewInMemoryIndex(), embedder, cfg, nil)
	skillsIdx, err := skills.NewDefaultIndex(cfg, nil)
	require.NoError(t, err)
	compressor := compression.NewEngine(completer, cfg, nil)

	manager := NewManager(sessions, profiles, memories, skillsIdx, compressor, completer, cfg, nil)
	return &fixture{
		manager:   manager,
		completer: completer,
		embedder:  embedder,
		sessions:  sessions,
		profiles:  profiles,
		memories:  memories,
	}
}

// responseCall finds the response completion for the given user message among
// all completions the turn issued (summaries and extractions use other tasks).
func (f *fixture) responseCall(t *testing.T, message string) model.CompletionRequest {
	t.Helper()
	for _, call := range f.completer.Calls() {
		if call.Task == message {
			return call
		}
	}
	t.Fatalf("no response completion found for %q", message)
	return model.CompletionRequest{}
}

func TestChat_FullTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completer.AddResponse("Extract memories", `{
		"memories": [
			{"text": "User is an SRE at Acme Corp", "type": "fact"},
			{"text": "Prefers short, direct answers", "type": "preference"}
		],
		"profile": {"name": "Sam", "facts": ["SRE at Acme Corp"], "preferences": {"tone": "concise"}}
	}`)
	f.completer.AddResponse("I'm Sam", "Nice to meet you, Sam!")

	result, err := f.manager.Chat(ctx, "u1", "", "Hi, I'm Sam, an SRE at Acme Corp. Keep answers short.")
	require.NoError(t, err)

	assert.Equal(t, "Nice to meet you, Sam!", result.Reply)
	assert.NotEmpty(t, result.SessionID)

	report := result.Report
	assert.Equal(t, []string{stepRead, stepRetrieve, stepAssemble, stepAct, stepWriteBack}, report.Steps)
	assert.False(t, report.Degraded)
	assert.Empty(t, report.SkippedSteps)
	require.Len(t, report.NewMemories, 2)
	assert.Equal(t, core.MemoryTypeFact, report.NewMemories[0].Type)
	assert.Equal(t, "Sam", report.ProfileUpdates.Name)

	// The exchange is persisted in order.
	sess, err := f.sessions.Get(ctx, "u1", result.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, core.RoleUser, sess.Messages[0].Role)
	assert.Equal(t, core.RoleAssistant, sess.Messages[1].Role)
	assert.Equal(t, "Nice to meet you, Sam!", sess.Messages[1].Content)

	// Extracted state landed in the component stores.
	count, err := f.memories.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	p, err := f.profiles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Sam", p.Name)
	assert.Equal(t, "concise", p.Preferences["tone"])
}

func TestChat_SecondTurnRetrievesContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completer.AddResponse("Extract memories", `{
		"memories": [{"text": "User runs workloads on GKE", "type": "fact"}],
		"profile": {"name": "Sam"}
	}`)

	first, err := f.manager.Chat(ctx, "u1", "", "We run everything on GKE.")
	require.NoError(t, err)

	f.completer.AddResponse("Extract memories", emptyExtraction)
	second, err := f.manager.Chat(ctx, "u1", first.SessionID, "Which cloud do we use again?")
	require.NoError(t, err)

	require.NotEmpty(t, second.Report.RetrievedMemories)
	assert.Equal(t, "User runs workloads on GKE", second.Report.RetrievedMemories[0].Memory.Text)

	call := f.responseCall(t, "Which cloud do we use again?")
	assert.Contains(t, call.Context, "<retrieved_memories>")
	assert.Contains(t, call.Context, "User runs workloads on GKE")
	assert.Contains(t, call.Context, "<user_profile>")
	assert.Contains(t, call.Context, "Name: Sam")
	assert.Contains(t, call.Context, "<conversation>", "prior exchange rides along as history")
}

func TestChat_UnknownSessionFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Chat(context.Background(), "u1", "no-such-session", "hello")
	assert.True(t, core.IsNotFound(err))
}

func TestChat_DegradedTurnPersistsAndReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completer.Fail(errors.New("model is down"))

	result, err := f.manager.Chat(ctx, "u1", "", "hello?")
	require.NoError(t, err, "a model failure must not fail the turn")

	assert.Equal(t, fallbackReply, result.Reply)
	assert.True(t, result.Report.Degraded)
	assert.Contains(t, result.Report.SkippedSteps, "write_back.extract")
	assert.Contains(t, result.Report.SkippedSteps, "write_back.memories")
	assert.Contains(t, result.Report.SkippedSteps, "write_back.profile")
	assert.Empty(t, result.Report.NewMemories)

	// The exchange still persisted so the user can retry with history intact.
	sess, err := f.sessions.Get(ctx, "u1", result.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, fallbackReply, sess.Messages[1].Content)

	count, err := f.memories.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count, "no extraction on a degraded turn")
}

func TestChat_EpisodicContextOnFirstTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prior, err := f.sessions.Create(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, f.sessions.SetSummary(ctx, "u1", prior.ID, "Debugged the CI pipeline and fixed the flaky test."))

	f.completer.AddResponse("Extract memories", emptyExtraction)
	result, err := f.manager.Chat(ctx, "u1", "", "Where did we leave off?")
	require.NoError(t, err)

	assert.Equal(t, "Debugged the CI pipeline and fixed the flaky test.", result.Report.EpisodicContext)
	call := f.responseCall(t, "Where did we leave off?")
	assert.Contains(t, call.Context, "<previous_session>")
	assert.Contains(t, call.Context, "Debugged the CI pipeline")

	// Later turns in the same session skip the episodic lookup.
	f.completer.AddResponse("Extract memories", emptyExtraction)
	followup, err := f.manager.Chat(ctx, "u1", result.SessionID, "Thanks!")
	require.NoError(t, err)
	assert.Empty(t, followup.Report.EpisodicContext)
}

func TestChat_RollingSummaryPersistedWhenOverBudget(t *testing.T) {
	f := newFixture(t, func(c *core.Config) { c.TokenBudget = 100 })
	ctx := context.Background()

	f.completer.AddResponse("updated summary", "They discussed pod restarts at length.")
	f.completer.AddResponse("Extract memories", emptyExtraction)

	long := strings.Repeat("the pods keep restarting and we are not sure why ", 10)
	sessionID := ""
	var last *TurnResult
	for range 4 {
		result, err := f.manager.Chat(ctx, "u1", sessionID, long)
		require.NoError(t, err)
		sessionID = result.SessionID
		last = result
	}

	require.NotNil(t, last.Report.Compression)
	assert.Equal(t, core.StrategyRollingSummary, last.Report.Compression.Strategy)
	assert.True(t, last.Report.Compression.Pruned)
	assert.Positive(t, last.Report.Compression.DroppedMessages)
	assert.Equal(t, "They discussed pod restarts at length.", last.Report.Summary)

	sess, err := f.sessions.Get(ctx, "u1", sessionID)
	require.NoError(t, err)
	assert.Equal(t, "They discussed pod restarts at length.", sess.Summary)
}

func TestChat_SummarizationFailureDegradesNotFails(t *testing.T) {
	// Budget sized so only the fourth turn's history crosses it.
	f := newFixture(t, func(c *core.Config) { c.TokenBudget = 700 })
	ctx := context.Background()

	f.completer.AddResponse("Extract memories", emptyExtraction)
	f.completer.AddResponse("updated summary", "Walked through the incident timeline.")

	long := strings.Repeat("words about the incident from last tuesday night ", 10)
	sessionID := ""
	for range 3 {
		result, err := f.manager.Chat(ctx, "u1", sessionID, long)
		require.NoError(t, err)
		sessionID = result.SessionID
	}

	// The next turn's summarization call errors; everything else succeeds.
	// The mock fails wholesale, so this turn is also degraded at ACT, which
	// must still leave the history intact.
	f.completer.Fail(errors.New("summarizer down"))
	result, err := f.manager.Chat(ctx, "u1", sessionID, long)
	require.NoError(t, err)

	require.NotNil(t, result.Report.Compression)
	assert.Equal(t, core.StrategyFull, result.Report.Compression.Strategy)
	assert.True(t, result.Report.Compression.SummaryFailed)

	sess, err := f.sessions.Get(ctx, "u1", sessionID)
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 8, "no messages lost")
	assert.Equal(t, "Walked through the incident timeline.", sess.Summary,
		"summary from the earlier refresh survives the failed turn")
}

func TestChat_SummaryRefreshAtMessageTrigger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completer.AddResponse("Extract memories", emptyExtraction)
	f.completer.AddResponse("updated summary", "Traded short updates on the on-call handoff.")

	sessionID := ""
	var last *TurnResult
	for _, msg := range []string{"hello", "still here", "one more thing"} {
		result, err := f.manager.Chat(ctx, "u1", sessionID, msg)
		require.NoError(t, err)
		sessionID = result.SessionID
		last = result
	}

	// Three short exchanges stay well under the token budget, so packing
	// never pruned; the refresh fires on message count alone.
	require.NotNil(t, last.Report.Compression)
	assert.Equal(t, core.StrategyFull, last.Report.Compression.Strategy)
	assert.False(t, last.Report.Compression.Pruned)
	assert.Equal(t, "Traded short updates on the on-call handoff.", last.Report.Summary)

	sess, err := f.sessions.Get(ctx, "u1", sessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 6)
	assert.Equal(t, "Traded short updates on the on-call handoff.", sess.Summary)
}

// flakySessionStore fails every append after the first n successes.
type flakySessionStore struct {
	core.SessionStore
	mu      sync.Mutex
	appends int
	allowed int
}

func (s *flakySessionStore) Append(ctx context.Context, userID, sessionID string, msg core.Message) error {
	s.mu.Lock()
	s.appends++
	n := s.appends
	s.mu.Unlock()
	if n > s.allowed {
		return errors.New("disk full")
	}
	return s.SessionStore.Append(ctx, userID, sessionID, msg)
}

func TestChat_UserMessageSurvivesLatePersistFailure(t *testing.T) {
	ctx := context.Background()
	cfg := core.DefaultConfig()
	completer := model.NewMockCompleter()
	embedder := model.NewMockEmbedder()
	inner := session.NewInMemoryStore()
	sessions := &flakySessionStore{SessionStore: inner, allowed: 1}
	memories := memory.NewStore(memory.NewInMemoryIndex(), embedder, cfg, nil)
	skillsIdx, err := skills.NewDefaultIndex(cfg, nil)
	require.NoError(t, err)
	compressor := compression.NewEngine(completer, cfg, nil)
	manager := NewManager(sessions, profile.NewInMemoryStore(), memories, skillsIdx, compressor, completer, cfg, nil)

	sess, err := inner.Create(ctx, "u1")
	require.NoError(t, err)

	completer.AddResponse("Extract memories", emptyExtraction)
	_, err = manager.Chat(ctx, "u1", sess.ID, "remember this question")
	require.Error(t, err, "a failed reply append fails the turn")

	// The user message landed during the read step, before anything else
	// could fail.
	got, err := inner.Get(ctx, "u1", sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, core.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "remember this question", got.Messages[0].Content)
}

func TestChat_SkillsIndexAlwaysResident(t *testing.T) {
	f := newFixture(t)

	f.completer.AddResponse("Extract memories", emptyExtraction)
	result, err := f.manager.Chat(context.Background(), "u1", "", "good morning")
	require.NoError(t, err)

	for _, s := range result.Report.Skills {
		assert.False(t, s.Loaded, "nothing to expand for %q", s.SkillID)
	}
	call := f.responseCall(t, "good morning")
	assert.Contains(t, call.Context, "<available_skills>")
	assert.Contains(t, call.Context, "helm-rollback")
	assert.NotContains(t, call.Context, "<expanded_skills>")
}

func TestChat_SkillDisclosure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completer.AddResponse("Extract memories", emptyExtraction)
	result, err := f.manager.Chat(ctx, "u1", "", "Can you help me rollback the last Helm release?")
	require.NoError(t, err)

	var helm, triage *core.SkillMatch
	for i := range result.Report.Skills {
		switch result.Report.Skills[i].SkillID {
		case "helm-rollback":
			helm = &result.Report.Skills[i]
		case "incident-triage":
			triage = &result.Report.Skills[i]
		}
	}
	require.NotNil(t, helm)
	require.NotNil(t, triage)
	assert.True(t, helm.Loaded)
	assert.False(t, triage.Loaded)

	call := f.responseCall(t, "Can you help me rollback the last Helm release?")
	assert.Contains(t, call.Context, "<available_skills>")
	assert.Contains(t, call.Context, "<expanded_skills>")
	assert.Contains(t, call.Context, "Helm Release Rollback")
}

func TestChat_SameUserTurnsSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completer.AddResponse("Extract memories", emptyExtraction)
	first, err := f.manager.Chat(ctx, "u1", "", "turn zero")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.Chat(ctx, "u1", first.SessionID, "concurrent turn")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := f.sessions.Get(ctx, "u1", first.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 10, "five full exchanges, none lost")
	for i, msg := range sess.Messages {
		if i%2 == 0 {
			assert.Equal(t, core.RoleUser, msg.Role, "message %d", i)
		} else {
			assert.Equal(t, core.RoleAssistant, msg.Role, "message %d", i)
		}
	}
}

func TestBoundary_SessionOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.manager.CreateSession(ctx, "u1")
	require.NoError(t, err)

	infos, err := f.manager.ListSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, id, infos[0].SessionID)

	sess, err := f.manager.GetSession(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)

	require.NoError(t, f.manager.DeleteSession(ctx, "u1", id))
	_, err = f.manager.GetSession(ctx, "u1", id)
	assert.True(t, core.IsNotFound(err))

	_, err = f.manager.CreateSession(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, f.manager.DeleteAllSessions(ctx, "u1"))
	infos, err = f.manager.ListSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestBoundary_MemoryStatsAndReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completer.AddResponse("Extract memories", `{
		"memories": [{"text": "User prefers staging deploys first", "type": "preference"}],
		"profile": {"name": "Sam"}
	}`)
	_, err := f.manager.Chat(ctx, "u1", "", "Always deploy to staging first.")
	require.NoError(t, err)

	stats, err := f.manager.GetMemoryStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalMemories)
	assert.Len(t, stats.Sessions, 1)
	assert.NotEmpty(t, stats.SkillsIndex)
	assert.Equal(t, "Sam", stats.Profile.Name)

	require.NoError(t, f.manager.ResetMemory(ctx, "u1"))
	stats, err = f.manager.GetMemoryStats(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalMemories)
	assert.True(t, stats.Profile.IsEmpty())
	assert.Len(t, stats.Sessions, 1, "sessions survive a memory reset")
}
