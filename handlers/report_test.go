package handlers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop-ai/assistant-core/core/agent"
	"github.com/careloop-ai/assistant-core/core/collab"
	"github.com/careloop-ai/assistant-core/handlers"
	"github.com/careloop-ai/assistant-core/testutil"
)

func TestReportSummarizesLatest(t *testing.T) {
	store := &testutil.MockReportStore{Reports: []handlers.Report{
		{ID: "r1", Title: "Blood panel", CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), Content: "old"},
		{ID: "r2", Title: "Annual checkup", CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), Content: "all good"},
	}}
	provider := testutil.NewMockProvider().
		WithResponse("Summarize the following health report", "Everything looked normal.").
		WithUsage(17)
	h := handlers.NewReportHandler(store, provider, nil)

	out, err := h.Process(context.Background(), agent.AgentInput{UserID: "u1", Message: "summarize my last report"})
	require.NoError(t, err)

	assert.Equal(t, "Everything looked normal.", out.Reply)
	require.Len(t, out.Actions, 1)
	assert.Equal(t, "r2", out.Actions[0].Payload["report_id"], "most recent report is summarized")
	assert.Contains(t, out.SharedData, collab.SharedKeyReportSummary)
	assert.Equal(t, 17, out.UsageTotalTokens)
}

func TestReportNoReports(t *testing.T) {
	h := handlers.NewReportHandler(&testutil.MockReportStore{}, testutil.NewMockProvider(), nil)

	out, err := h.Process(context.Background(), agent.AgentInput{UserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, out.Reply, "don't have any stored reports")
	assert.Empty(t, out.Actions)
}

func TestReportStoreErrorDegrades(t *testing.T) {
	store := &testutil.MockReportStore{Err: errors.New("db gone")}
	h := handlers.NewReportHandler(store, testutil.NewMockProvider(), nil)

	out, err := h.Process(context.Background(), agent.AgentInput{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, out.Actions, 1)
	assert.Equal(t, agent.ActionStatusFailed, out.Actions[0].Status)
}

func TestReportLLMErrorStillAnswers(t *testing.T) {
	store := &testutil.MockReportStore{Reports: []handlers.Report{
		{ID: "r1", Title: "Blood panel", CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), Content: "x"},
	}}
	provider := testutil.NewMockProvider().WithError(errors.New("llm down"))
	h := handlers.NewReportHandler(store, provider, nil)

	out, err := h.Process(context.Background(), agent.AgentInput{UserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, out.Reply, "Blood panel")
	assert.Contains(t, out.Reply, "couldn't summarize")
}
