package graph_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop-ai/assistant-core/core/agent"
	"github.com/careloop-ai/assistant-core/core/collab"
	"github.com/careloop-ai/assistant-core/core/graph"
	"github.com/careloop-ai/assistant-core/core/router"
	"github.com/careloop-ai/assistant-core/testutil"
)

type stubHandler struct {
	name string
	fn   func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error)
}

func (h *stubHandler) Name() string           { return h.name }
func (h *stubHandler) Capabilities() []string { return nil }
func (h *stubHandler) Process(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
	return h.fn(ctx, input)
}

func adviceStub() *stubHandler {
	return &stubHandler{
		name: "advice",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{Reply: "here is some advice"}, nil
		},
	}
}

func buildGraph(t *testing.T, provider *testutil.MockProvider, extra ...*stubHandler) (*graph.Graph, *agent.Registry) {
	t.Helper()
	registry, err := agent.NewRegistry(adviceStub())
	require.NoError(t, err)
	for _, h := range extra {
		require.NoError(t, registry.Register(h))
	}
	engine := collab.NewEngine(registry, collab.DefaultRules(), collab.NewSemaphore(2), nil)
	classifier := router.NewClassifier(provider, nil, 0)
	return graph.New(classifier, registry, engine, nil, nil), registry
}

func timelineSteps(state *graph.State) []string {
	steps := make([]string, 0, len(state.Timeline))
	for _, e := range state.Timeline {
		steps = append(steps, e.Step)
	}
	return steps
}

func TestProcessHappyPath(t *testing.T) {
	provider := testutil.NewMockProvider().
		WithResponse("You route user requests", `["advice"]`)
	g, _ := buildGraph(t, provider)

	state := g.Process(context.Background(), agent.AgentInput{
		UserID:  "u1",
		Message: "what should I have for breakfast?",
	})

	assert.False(t, state.Failed())
	assert.Equal(t, "here is some advice", state.Reply())
	assert.Equal(t, "advice", state.CurrentAgent)
	assert.Equal(t, router.IntentGeneralAdvice, state.Context.Intent)
	assert.NotEmpty(t, state.RequestID)

	steps := timelineSteps(state)
	assert.Contains(t, steps, graph.StageRouter)
	assert.Contains(t, steps, graph.StageHandler)
	assert.Equal(t, graph.StageDone, steps[len(steps)-1])

	// Router appended an A2A request, handler an A2A response.
	require.Len(t, state.Messages, 2)
	assert.Equal(t, "advice", state.Messages[0].To)
}

func TestTimelineRecordsUsagePerStage(t *testing.T) {
	provider := testutil.NewMockProvider().
		WithResponse("You route user requests", `["advice"]`).
		WithUsage(42)
	registry, err := agent.NewRegistry(&stubHandler{
		name: "advice",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{Reply: "ok", UsageTotalTokens: 10}, nil
		},
	})
	require.NoError(t, err)
	classifier := router.NewClassifier(provider, nil, 0)
	g := graph.New(classifier, registry, nil, nil, nil)

	state := g.Process(context.Background(), agent.AgentInput{UserID: "u1", Message: "hi"})

	byStep := map[string]int{}
	total := 0
	for _, e := range state.Timeline {
		byStep[e.Step] += e.UsageTotalTokens
		total += e.UsageTotalTokens
	}
	assert.Equal(t, 42, byStep[graph.StageRouter], "classifier tokens land on the router entry")
	assert.Equal(t, 10, byStep[graph.StageHandler])
	assert.Equal(t, 52, total, "each output's usage is counted exactly once")
}

func TestProcessGuardBlocksAppointment(t *testing.T) {
	provider := testutil.NewMockProvider().
		WithResponse("You route user requests", `["appointment"]`)
	booked := false
	appointment := &stubHandler{
		name: "appointment",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			booked = true
			return agent.AgentOutput{Reply: "booked"}, nil
		},
	}
	g, _ := buildGraph(t, provider, appointment)

	state := g.Process(context.Background(), agent.AgentInput{
		UserID:  "u1",
		Message: "book a GP appointment tomorrow 3pm",
	})

	assert.False(t, booked, "handler must not run when blocked")
	assert.False(t, state.Failed(), "a guard block is a reply, not an error")
	assert.Contains(t, state.Reply(), "calendar")
	require.NotEmpty(t, state.FinalOutput.Actions)
	assert.Equal(t, "blocked", state.FinalOutput.Actions[0].Type)
}

func TestProcessGuardPassesWithToken(t *testing.T) {
	provider := testutil.NewMockProvider().
		WithResponse("You route user requests", `["appointment"]`)
	appointment := &stubHandler{
		name: "appointment",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{Reply: "booked"}, nil
		},
	}
	g, _ := buildGraph(t, provider, appointment)

	state := g.Process(context.Background(), agent.AgentInput{
		UserID:   "u1",
		Message:  "book a GP appointment tomorrow 3pm",
		Metadata: map[string]any{agent.MetadataKeyAccessToken: "tok_real"},
	})

	assert.Equal(t, "booked", state.Reply())
	assert.Equal(t, "appointment", state.CurrentAgent)
}

func TestProcessHandlerErrorBecomesApology(t *testing.T) {
	provider := testutil.NewMockProvider().
		WithResponse("You route user requests", `["advice"]`)
	registry, err := agent.NewRegistry(&stubHandler{
		name: "advice",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{}, errors.New("store exploded")
		},
	})
	require.NoError(t, err)
	classifier := router.NewClassifier(provider, nil, 0)
	g := graph.New(classifier, registry, nil, nil, nil)

	state := g.Process(context.Background(), agent.AgentInput{UserID: "u1", Message: "hi"})

	assert.True(t, state.Failed())
	assert.Equal(t, graph.ErrorSentinelAgent, state.CurrentAgent)
	assert.Contains(t, state.Err, "store exploded")
	require.NotNil(t, state.FinalOutput)
	assert.NotEmpty(t, state.FinalOutput.Reply)
	require.Len(t, state.FinalOutput.Actions, 1)
	act := state.FinalOutput.Actions[0]
	assert.Equal(t, "error", act.Type)
	assert.Equal(t, agent.ActionStatusFailed, act.Status)
	assert.NotEmpty(t, act.Payload["details"])
}

func TestProcessHandlerPanicIsCaught(t *testing.T) {
	provider := testutil.NewMockProvider().
		WithResponse("You route user requests", `["advice"]`)
	registry, err := agent.NewRegistry(&stubHandler{
		name: "advice",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			panic("nil map write")
		},
	})
	require.NoError(t, err)
	classifier := router.NewClassifier(provider, nil, 0)
	g := graph.New(classifier, registry, nil, nil, nil)

	state := g.Process(context.Background(), agent.AgentInput{UserID: "u1", Message: "hi"})

	assert.True(t, state.Failed())
	assert.Equal(t, graph.ErrorSentinelAgent, state.CurrentAgent)
	assert.Contains(t, state.Err, "panicked")
}

func TestProcessCascadeToAppointment(t *testing.T) {
	provider := testutil.NewMockProvider().
		WithResponse("You route user requests", `["notification"]`)
	notification := &stubHandler{
		name: "notification",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{
				Reply: "scheduled",
				SharedData: map[string]any{
					collab.SharedKeyNotificationSchedule: map[string]any{"body": "pills"},
				},
			}, nil
		},
	}
	appointment := &stubHandler{
		name: "appointment",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{
				Reply:      "booked too",
				SharedData: map[string]any{collab.SharedKeyAppointmentDetails: map[string]any{"id": "apt1"}},
			}, nil
		},
	}
	g, _ := buildGraph(t, provider, notification, appointment)

	state := g.Process(context.Background(), agent.AgentInput{UserID: "u1", Message: "remind me about my pills"})

	assert.False(t, state.Failed())
	assert.Equal(t, "appointment", state.CurrentAgent, "cascade adopts the rule's target agent")
	assert.Equal(t, "booked too", state.Reply())
	assert.Contains(t, state.Context.SharedData, collab.SharedKeyNotificationSchedule)
	assert.Contains(t, state.Context.SharedData, collab.SharedKeyAppointmentDetails)
}

func TestProcessMultiAgentSuppressesCascade(t *testing.T) {
	provider := testutil.NewMockProvider().
		WithResponse("You route user requests", `["notification", "appointment"]`)
	cascaded := false
	notification := &stubHandler{
		name: "notification",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{
				Reply: "scheduled",
				SharedData: map[string]any{
					collab.SharedKeyNotificationSchedule: map[string]any{"body": "pills"},
				},
			}, nil
		},
	}
	appointment := &stubHandler{
		name: "appointment",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			cascaded = true
			return agent.AgentOutput{Reply: "booked"}, nil
		},
	}
	g, _ := buildGraph(t, provider, notification, appointment)

	state := g.Process(context.Background(), agent.AgentInput{UserID: "u1", Message: "book a GP and text me a reminder"})

	assert.True(t, state.Context.MultiAgentRequest)
	assert.Equal(t, []string{"appointment"}, state.Context.AdditionalAgents)
	assert.False(t, cascaded, "multi-agent routing suppresses the collaboration stage")
	assert.Equal(t, "notification", state.CurrentAgent)
	assert.Equal(t, "scheduled", state.Reply())
}
