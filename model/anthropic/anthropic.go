// Package anthropic implements model.Model using the Anthropic Messages
// API. The shared analysis prompt goes in as the system block; session
// history is replayed as alternating user/assistant turns.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/datachat-ai/datachat/model"
)

// Options configure the Anthropic model adapter (model id, temperature,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind model.Model.
type Model struct {
	client *anthropic.Client
	opts   Options
}

var _ model.Model = (*Model)(nil)

// NewModel creates an adapter using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates an adapter from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.2,
		MaxTokens:   2048,
	}
}

// Analyze sends the query with its data context and history, returning the
// decoded analysis plan.
func (m *Model) Analyze(ctx context.Context, req model.Request) (*model.Response, error) {
	var messages []anthropic.MessageParam
	for _, entry := range req.History {
		messages = append(messages,
			anthropic.NewUserMessage(anthropic.NewTextBlock(entry.Query)),
			anthropic.NewAssistantMessage(anthropic.NewTextBlock(model.HistoryAnswer(entry.Response))),
		)
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Query)))

	resp, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       m.opts.Model,
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
		System:      []anthropic.TextBlockParam{{Text: model.SystemPrompt(req.Data)}},
		Messages:    messages,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	return model.DecodeResponse(text.String()), nil
}
