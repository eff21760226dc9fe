package compression

import (
	"context"
	"fmt"
	"strings"

	"github.com/opsagent/memorymesh/core"
)

const summarizeSystem = `You maintain a rolling summary of an ongoing conversation.
Merge the prior summary (if any) with the new messages into a single concise
summary. Preserve concrete facts, decisions, names, numbers, and open tasks.
Drop greetings and filler. Write plain prose, at most 150 words. Respond with
the summary text only.`

// PackResult is the outcome of packing a session history into the budget.
type PackResult struct {
	// Messages is the history to place in the model context.
	Messages []core.Message
	// Summary is the rolling summary after packing. It equals the existing
	// summary unless this pack produced a new one.
	Summary string
	Stats   core.CompressionStats
}

// BudgetAndPack fits a session history into the configured token budget.
// Histories at or under the budget pass through untouched. Over budget, the
// most recent messages are kept verbatim and everything older is folded into
// the rolling summary with a single completion call. If summarization fails
// the full history is returned and the failure is flagged in the stats, so
// the turn proceeds with an oversized context rather than losing messages.
func (e *Engine) BudgetAndPack(ctx context.Context, messages []core.Message, existingSummary string) PackResult {
	stats := core.CompressionStats{
		OriginalMessages: len(messages),
		FinalMessages:    len(messages),
		OriginalTokens:   MessagesTokens(messages),
		Budget:           e.cfg.TokenBudget,
		Strategy:         core.StrategyFull,
	}

	// Histories at or within the recent window stay verbatim even over
	// budget; there is nothing older to fold away.
	if stats.OriginalTokens <= e.cfg.TokenBudget || len(messages) <= e.cfg.RecentWindow {
		return PackResult{Messages: messages, Summary: existingSummary, Stats: stats}
	}

	cut := len(messages) - e.cfg.RecentWindow
	older := messages[:cut]
	recent := messages[cut:]

	summary, err := e.summarize(ctx, older, existingSummary)
	if err != nil {
		e.logger.Warn("summarization failed, keeping full history", "error", err)
		stats.SummaryFailed = true
		return PackResult{Messages: messages, Summary: existingSummary, Stats: stats}
	}

	stats.Strategy = core.StrategyRollingSummary
	stats.Pruned = true
	stats.FinalMessages = len(recent)
	stats.DroppedMessages = len(older)
	return PackResult{Messages: recent, Summary: summary, Stats: stats}
}

// ShouldSummarize reports whether the session has accumulated enough messages
// for a rolling-summary refresh to be worth a model call. Packing an
// over-budget history refreshes the summary regardless.
func (e *Engine) ShouldSummarize(messages []core.Message) bool {
	return len(messages) >= e.cfg.SummaryTrigger
}

// Summarize folds the given messages and the existing summary into an updated
// rolling summary.
func (e *Engine) Summarize(ctx context.Context, messages []core.Message, existingSummary string) (string, error) {
	return e.summarize(ctx, messages, existingSummary)
}

func (e *Engine) summarize(ctx context.Context, older []core.Message, existingSummary string) (string, error) {
	var sb strings.Builder
	if existingSummary != "" {
		sb.WriteString("Prior summary:\n")
		sb.WriteString(existingSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("New messages:\n")
	for _, m := range older {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}

	out, err := e.completer.Complete(ctx, completionRequest(summarizeSystem, sb.String(), "Produce the updated summary."))
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(out)
	if summary == "" {
		return "", fmt.Errorf("empty summary")
	}
	return summary, nil
}
