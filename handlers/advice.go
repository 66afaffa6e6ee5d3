// Package handlers contains the concrete handler implementations the
// router dispatches to: notification scheduling, appointment booking,
// report summaries, and the default conversational advice handler.
package handlers

import (
	"context"
	"fmt"

	"github.com/careloop-ai/assistant-core/core/agent"
	"github.com/careloop-ai/assistant-core/llm"
)

const advicePrompt = `You are a friendly care assistant. Answer the user's
message helpfully and concisely. Do not invent medical diagnoses; suggest
seeing a professional for anything serious.

User: %s
Assistant:`

// AdviceHandler is the default conversational handler.
type AdviceHandler struct {
	provider    llm.Provider
	logger      agent.Logger
	temperature float64
}

// NewAdviceHandler creates the advice handler. Logger may be nil.
func NewAdviceHandler(provider llm.Provider, logger agent.Logger, temperature float64) *AdviceHandler {
	if logger == nil {
		logger = agent.NopLogger{}
	}
	return &AdviceHandler{provider: provider, logger: logger, temperature: temperature}
}

func (h *AdviceHandler) Name() string { return "advice" }

func (h *AdviceHandler) Capabilities() []string {
	return []string{"general conversation", "health and lifestyle advice"}
}

// Process generates a plain conversational reply.
func (h *AdviceHandler) Process(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
	res, err := llm.GenerateWithOptionalUsage(ctx, h.provider, fmt.Sprintf(advicePrompt, input.Message), llm.Options{
		Temperature: llm.Temp(h.temperature),
	})
	if err != nil {
		h.logger.Warn("advice_llm_error", "error", err.Error())
		return agent.AgentOutput{
			Reply: "I'm having trouble answering right now. Could you try again shortly?",
		}, nil
	}
	return agent.AgentOutput{
		Reply:            res.Text,
		UsageTotalTokens: res.Usage.TotalTokens,
	}, nil
}

var _ agent.Handler = (*AdviceHandler)(nil)
