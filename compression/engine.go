package compression

import (
	"github.com/opsagent/memorymesh/core"
	"github.com/opsagent/memorymesh/logging"
	"github.com/opsagent/memorymesh/model"
)

// Engine packs histories into the token budget and extracts durable
// memories from completed turns. It is stateless; all persistence is the
// caller's responsibility.
type Engine struct {
	completer model.Completer
	cfg       core.Config
	logger    logging.Logger
}

// NewEngine creates a compression engine backed by the given completer.
func NewEngine(completer model.Completer, cfg core.Config, logger logging.Logger) *Engine {
	return &Engine{
		completer: completer,
		cfg:       cfg,
		logger:    logging.OrNoOp(logger),
	}
}

func completionRequest(system, contextText, task string) model.CompletionRequest {
	temp := 0.2
	return model.CompletionRequest{
		System:      system,
		Context:     contextText,
		Task:        task,
		Temperature: &temp,
		MaxTokens:   1024,
	}
}

// EstimateTokens approximates the token count of a string. The heuristic is
// four characters per token, which tracks close enough to real tokenizers
// for budget enforcement without pulling one in.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// MessagesTokens sums the estimated token counts of a message slice.
func MessagesTokens(messages []core.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}
