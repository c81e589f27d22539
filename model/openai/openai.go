// Package openai implements model.Model using the OpenAI Chat Completions
// API. It renders the shared analysis prompt, replays the session history as
// chat messages and decodes the JSON reply into a model.Response.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/datachat-ai/datachat/model"
)

// Options configure the OpenAI model adapter. Fields mirror a minimal
// subset of Chat Completion parameters; extend via functional options
// without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind model.Model.
type Model struct {
	client *openai.Client
	opts   Options
}

var _ model.Model = (*Model)(nil)

// NewModel creates an adapter using the default client (API key from the
// environment).
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates an adapter from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.2,
		MaxCompletionTokens: 2048,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Analyze sends the query with its data context and history, returning the
// decoded analysis plan.
func (m *Model) Analyze(ctx context.Context, req model.Request) (*model.Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(model.SystemPrompt(req.Data)),
	}
	for _, entry := range req.History {
		messages = append(messages,
			openai.UserMessage(entry.Query),
			openai.AssistantMessage(model.HistoryAnswer(entry.Response)),
		)
	}
	messages = append(messages, openai.UserMessage(req.Query))

	completion, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               m.opts.Model,
		Messages:            messages,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	return model.DecodeResponse(completion.Choices[0].Message.Content), nil
}
