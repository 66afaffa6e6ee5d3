package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/careloop-ai/assistant-core/observability"
)

const defaultMaxTokens = 1024

// AnthropicProvider implements UsageProvider backed by the Anthropic
// Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider creates an AnthropicProvider. An empty apiKey falls
// back to the SDK's environment-based configuration.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

// Generate implements Provider.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	res, err := p.GenerateWithUsage(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// GenerateWithUsage implements UsageProvider.
func (p *AnthropicProvider) GenerateWithUsage(ctx context.Context, prompt string, opts Options) (Result, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		observability.RecordLLMCall("anthropic", "error", 0)
		return Result{}, fmt.Errorf("anthropic generate: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	usage := Usage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	observability.RecordLLMCall("anthropic", "success", usage.TotalTokens)

	return Result{Text: text, Usage: usage}, nil
}

var _ UsageProvider = (*AnthropicProvider)(nil)
