// Package anthropic adapts the Anthropic Messages API to the module's
// model.Completer contract.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/opsagent/memorymesh/model"
)

// Options configures the Anthropic adapter (model id, temperature, max
// tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Completer wraps the Anthropic Messages API behind model.Completer.
type Completer struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   1500,
	}
}

// NewCompleter creates a Completer using the official client.
func NewCompleter(optFns ...func(o *Options)) *Completer {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Completer{client: &client, opts: opts}
}

// NewCompleterFromClient creates a Completer from an existing client.
func NewCompleterFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Completer {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Completer{client: client, opts: opts}
}

// Complete implements model.Completer.
func (c *Completer) Complete(ctx context.Context, req model.CompletionRequest) (string, error) {
	var messages []anthropic.MessageParam
	if req.Context != "" {
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Context)))
		messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock("Understood. I've loaded the context.")))
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Task)))

	temperature := c.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := c.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       c.opts.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return text, nil
}

// Info implements model.Completer.
func (c *Completer) Info() model.Info {
	return model.Info{Name: string(c.opts.Model), Provider: "anthropic"}
}
