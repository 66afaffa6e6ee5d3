package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/careloop-ai/assistant-core/core/agent"
	"github.com/careloop-ai/assistant-core/core/collab"
	"github.com/careloop-ai/assistant-core/llm"
)

// Report is a stored health report.
type Report struct {
	ID        string
	Title     string
	CreatedAt time.Time
	Content   string
}

// ReportStore is the external report collaborator.
type ReportStore interface {
	ListReports(ctx context.Context, userID string) ([]Report, error)
}

const summarizePrompt = `Summarize the following health report for the
patient in plain language, at most four sentences. Do not add advice that
is not in the report.

Report %q (%s):
%s

Summary:`

// ReportHandler summarizes stored reports via the LLM capability.
type ReportHandler struct {
	store    ReportStore
	provider llm.Provider
	logger   agent.Logger
}

// NewReportHandler creates the report handler. Logger may be nil.
func NewReportHandler(store ReportStore, provider llm.Provider, logger agent.Logger) *ReportHandler {
	if logger == nil {
		logger = agent.NopLogger{}
	}
	return &ReportHandler{store: store, provider: provider, logger: logger}
}

func (h *ReportHandler) Name() string { return "report" }

func (h *ReportHandler) Capabilities() []string {
	return []string{"summarize stored health reports"}
}

// Process summarizes the user's most recent report.
func (h *ReportHandler) Process(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
	reports, err := h.store.ListReports(ctx, input.UserID)
	if err != nil {
		h.logger.Warn("report_store_error", "error", err.Error())
		return agent.AgentOutput{
			Reply: "I couldn't reach your reports right now. Please try again shortly.",
			Actions: []agent.Action{{
				Type:    "report_summary",
				Status:  agent.ActionStatusFailed,
				Payload: map[string]any{"reason": "store_error", "details": err.Error()},
			}},
		}, nil
	}
	if len(reports) == 0 {
		return agent.AgentOutput{Reply: "You don't have any stored reports yet."}, nil
	}

	latest := reports[0]
	for _, r := range reports[1:] {
		if r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}

	prompt := fmt.Sprintf(summarizePrompt, latest.Title, latest.CreatedAt.Format("2 Jan 2006"), latest.Content)
	res, err := llm.GenerateWithOptionalUsage(ctx, h.provider, prompt, llm.Options{Temperature: llm.Temp(0.3)})
	if err != nil {
		h.logger.Warn("report_llm_error", "error", err.Error())
		return agent.AgentOutput{
			Reply: fmt.Sprintf("Your latest report is %q from %s, but I couldn't summarize it just now.",
				latest.Title, latest.CreatedAt.Format("2 Jan 2006")),
		}, nil
	}

	summary := strings.TrimSpace(res.Text)
	return agent.AgentOutput{
		Reply: summary,
		Actions: []agent.Action{{
			Type:    "report_summary",
			Status:  agent.ActionStatusDone,
			Payload: map[string]any{"report_id": latest.ID},
		}},
		SharedData: map[string]any{
			collab.SharedKeyReportSummary: map[string]any{
				"report_id": latest.ID,
				"title":     latest.Title,
				"summary":   summary,
			},
		},
		UsageTotalTokens: res.Usage.TotalTokens,
	}, nil
}

var _ agent.Handler = (*ReportHandler)(nil)
