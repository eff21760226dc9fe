// Package openai adapts the OpenAI API to the module's model contracts: the
// Chat Completions API behind model.Completer and the Embeddings API behind
// model.Embedder.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/opsagent/memorymesh/model"
)

// Options configures the OpenAI adapters. Fields mirror a deliberately
// minimal subset of the API parameters.
type Options struct {
	Model               string
	EmbeddingModel      string
	EmbeddingDimensions int
	Temperature         float64
	MaxCompletionTokens int64
}

// Completer wraps the Chat Completions API behind model.Completer.
type Completer struct {
	client *openai.Client
	opts   Options
}

// Embedder wraps the Embeddings API behind model.Embedder.
type Embedder struct {
	client *openai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		EmbeddingModel:      openai.EmbeddingModelTextEmbedding3Small,
		EmbeddingDimensions: 1536,
		Temperature:         0.7,
		MaxCompletionTokens: 1500,
	}
}

// NewCompleter creates a Completer using the official client configured from
// the environment.
func NewCompleter(optFns ...func(o *Options)) *Completer {
	client := openai.NewClient()
	return NewCompleterFromClient(&client, optFns...)
}

// NewCompleterFromClient creates a Completer from an existing client.
func NewCompleterFromClient(client *openai.Client, optFns ...func(o *Options)) *Completer {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Completer{client: client, opts: opts}
}

// Complete implements model.Completer.
func (c *Completer) Complete(ctx context.Context, req model.CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 3)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	if req.Context != "" {
		messages = append(messages, openai.UserMessage(req.Context))
	}
	messages = append(messages, openai.UserMessage(req.Task))

	temperature := c.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := c.opts.MaxCompletionTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               c.opts.Model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Info implements model.Completer.
func (c *Completer) Info() model.Info {
	return model.Info{Name: c.opts.Model, Provider: "openai"}
}

// NewEmbedder creates an Embedder using the official client configured from
// the environment.
func NewEmbedder(optFns ...func(o *Options)) *Embedder {
	client := openai.NewClient()
	return NewEmbedderFromClient(&client, optFns...)
}

// NewEmbedderFromClient creates an Embedder from an existing client.
func NewEmbedderFromClient(client *openai.Client, optFns ...func(o *Options)) *Embedder {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Embedder{client: client, opts: opts}
}

// Embed implements model.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: e.opts.EmbeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dimensions implements model.Embedder.
func (e *Embedder) Dimensions() int { return e.opts.EmbeddingDimensions }
