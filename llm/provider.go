// Package llm defines the language-model capability consumed by the core.
//
// The core treats the model as text-in, text-out with optional token usage.
// Prompt construction belongs to the callers (router, handlers); this
// package only carries the transport-level contract and adapters.
package llm

import "context"

// Usage reports token consumption for a single generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// Options tune a single generation.
type Options struct {
	// Temperature overrides the provider default when non-nil.
	Temperature *float64
	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// Temp is a convenience for building a temperature pointer.
func Temp(t float64) *float64 { return &t }

// Result is a generation with usage attached.
type Result struct {
	Text  string
	Usage Usage
}

// Provider is the minimal LLM capability.
type Provider interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// UsageProvider is a Provider that also reports token usage.
// Callers should type-assert; not all providers report usage.
type UsageProvider interface {
	Provider
	GenerateWithUsage(ctx context.Context, prompt string, opts Options) (Result, error)
}

// GenerateWithOptionalUsage calls GenerateWithUsage when the provider
// supports it, and falls back to Generate with zero usage otherwise.
func GenerateWithOptionalUsage(ctx context.Context, p Provider, prompt string, opts Options) (Result, error) {
	if up, ok := p.(UsageProvider); ok {
		return up.GenerateWithUsage(ctx, prompt, opts)
	}
	text, err := p.Generate(ctx, prompt, opts)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text}, nil
}
