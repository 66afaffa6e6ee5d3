package collab

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop-ai/assistant-core/core/agent"
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

func newTestRegistry(t *testing.T, hs ...*stubHandler) *agent.Registry {
	t.Helper()
	reg, err := agent.NewRegistry(&stubHandler{
		name: "advice",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{Reply: "default"}, nil
		},
	})
	require.NoError(t, err)
	for _, h := range hs {
		require.NoError(t, reg.Register(h))
	}
	return reg
}

func staticRule(name string, prio Priority, target string) Rule {
	return Rule{
		Name:        name,
		Priority:    prio,
		TargetAgent: target,
		ShouldExecute: func(shared map[string]any, intent, currentAgent string) bool {
			return true
		},
	}
}

func TestSelectStrategy(t *testing.T) {
	one := []Rule{staticRule("a", PriorityHigh, "x")}
	assert.Equal(t, StrategySequential, SelectStrategy(one))

	mixed := []Rule{staticRule("a", PriorityHigh, "x"), staticRule("b", PriorityLow, "y")}
	assert.Equal(t, StrategyWinnerTakeAll, SelectStrategy(mixed))

	same := []Rule{staticRule("a", PriorityHigh, "x"), staticRule("b", PriorityHigh, "y")}
	assert.Equal(t, StrategyAllFinishMerge, SelectStrategy(same))
}

func TestEngineNoSharedDataNoCascade(t *testing.T) {
	e := NewEngine(newTestRegistry(t), DefaultRules(), NewSemaphore(2), nil)
	res := e.Run(context.Background(), agent.AgentInput{}, "x", "notification", nil)
	assert.False(t, res.Executed)
}

func TestEngineNoQualifyingRules(t *testing.T) {
	e := NewEngine(newTestRegistry(t), DefaultRules(), NewSemaphore(2), nil)
	shared := map[string]any{"somethingElse": true}
	res := e.Run(context.Background(), agent.AgentInput{}, "x", "advice", shared)
	assert.False(t, res.Executed)
}

func TestEngineSequentialCascade(t *testing.T) {
	appointment := &stubHandler{
		name: "appointment",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			// The cascaded handler sees the upstream shared data.
			assert.Contains(t, input.SharedData, SharedKeyNotificationSchedule)
			return agent.AgentOutput{
				Reply:      "booked",
				SharedData: map[string]any{SharedKeyAppointmentDetails: map[string]any{"id": "apt1"}},
			}, nil
		},
	}
	e := NewEngine(newTestRegistry(t, appointment), DefaultRules(), NewSemaphore(2), nil)

	shared := map[string]any{SharedKeyNotificationSchedule: map[string]any{"body": "pills"}}
	res := e.Run(context.Background(), agent.AgentInput{}, "notification.schedule", "notification", shared)

	require.True(t, res.Executed)
	assert.Equal(t, StrategySequential, res.Strategy)
	assert.Equal(t, "appointment", res.Agent)
	assert.Equal(t, "booked", res.Output.Reply)
	assert.Contains(t, res.SharedData, SharedKeyAppointmentDetails)
	assert.Contains(t, res.SharedData, SharedKeyNotificationSchedule, "shared data only grows")
	assert.Equal(t, []string{"notification_to_appointment"}, res.RulesFired)
}

func TestEngineCascadeTerminates(t *testing.T) {
	// Once the appointment result key exists, the rule must not fire again.
	shared := map[string]any{
		SharedKeyNotificationSchedule: map[string]any{"body": "pills"},
		SharedKeyAppointmentDetails:   map[string]any{"id": "apt1"},
	}
	e := NewEngine(newTestRegistry(t), DefaultRules(), NewSemaphore(2), nil)
	res := e.Run(context.Background(), agent.AgentInput{}, "notification.schedule", "notification", shared)
	assert.False(t, res.Executed)
}

func TestEngineSequentialSkipsFailedRule(t *testing.T) {
	first := &stubHandler{
		name: "first",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{}, errors.New("boom")
		},
	}
	second := &stubHandler{
		name: "second",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{Reply: "second ok"}, nil
		},
	}
	rules := []Rule{
		staticRule("r1", PriorityHigh, "first"),
		staticRule("r2", PriorityHigh, "second"),
	}
	e := NewEngine(newTestRegistry(t, first, second), rules, NewSemaphore(2), nil)

	shared := map[string]any{"seed": true}
	res := e.RunWithStrategy(context.Background(), agent.AgentInput{}, "x", "advice", shared, StrategySequential)

	require.True(t, res.Executed)
	assert.Equal(t, "second", res.Agent)
	assert.Equal(t, []string{"r2"}, res.RulesFired)
}

func TestEngineWinnerTakeAllDeterminism(t *testing.T) {
	slow := &stubHandler{
		name: "slow",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			time.Sleep(60 * time.Millisecond)
			return agent.AgentOutput{Reply: "slow won"}, nil
		},
	}
	fast := &stubHandler{
		name: "fast",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{Reply: "fast won"}, nil
		},
	}
	rules := []Rule{
		staticRule("r1", PriorityHigh, "slow"),
		staticRule("r2", PriorityLow, "fast"),
	}
	e := NewEngine(newTestRegistry(t, slow, fast), rules, NewSemaphore(2), nil)

	shared := map[string]any{"seed": true}
	res := e.Run(context.Background(), agent.AgentInput{}, "x", "advice", shared)

	require.True(t, res.Executed)
	assert.Equal(t, StrategyWinnerTakeAll, res.Strategy)
	assert.Equal(t, "slow won", res.Output.Reply, "first-listed success wins, not the fastest")
	assert.Equal(t, []string{"r1"}, res.RulesFired)
}

func TestEngineWinnerTakeAllSkipsFailedFirst(t *testing.T) {
	failing := &stubHandler{
		name: "failing",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{}, errors.New("nope")
		},
	}
	ok := &stubHandler{
		name: "ok",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{Reply: "ok"}, nil
		},
	}
	rules := []Rule{
		staticRule("r1", PriorityHigh, "failing"),
		staticRule("r2", PriorityLow, "ok"),
	}
	e := NewEngine(newTestRegistry(t, failing, ok), rules, NewSemaphore(2), nil)

	res := e.Run(context.Background(), agent.AgentInput{}, "x", "advice", map[string]any{"seed": true})
	require.True(t, res.Executed)
	assert.Equal(t, "ok", res.Output.Reply)
}

func TestEngineAllFinishMerge(t *testing.T) {
	a := &stubHandler{
		name: "a",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{
				Reply:      "from a",
				SharedData: map[string]any{"key": "a", "onlyA": true},
			}, nil
		},
	}
	b := &stubHandler{
		name: "b",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{
				Reply:      "from b",
				SharedData: map[string]any{"key": "b"},
			}, nil
		},
	}
	failing := &stubHandler{
		name: "failing",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			return agent.AgentOutput{}, errors.New("excluded")
		},
	}
	rules := []Rule{
		staticRule("ra", PriorityMedium, "a"),
		staticRule("rf", PriorityMedium, "failing"),
		staticRule("rb", PriorityMedium, "b"),
	}
	e := NewEngine(newTestRegistry(t, a, b, failing), rules, NewSemaphore(2), nil)

	res := e.Run(context.Background(), agent.AgentInput{}, "x", "advice", map[string]any{"seed": true})

	require.True(t, res.Executed)
	assert.Equal(t, StrategyAllFinishMerge, res.Strategy)
	assert.Equal(t, "from a\n\nfrom b", res.Output.Reply)
	assert.Equal(t, "b", res.SharedData["key"], "later success wins collisions")
	assert.Equal(t, true, res.SharedData["onlyA"])
	assert.Equal(t, []string{"ra", "rb"}, res.RulesFired)
	assert.Equal(t, "b", res.Agent, "last folded success sets the agent")
}

func TestEnginePanickingRuleIsContained(t *testing.T) {
	panicky := &stubHandler{
		name: "panicky",
		fn: func(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
			panic("kaboom")
		},
	}
	rules := []Rule{staticRule("r1", PriorityHigh, "panicky")}
	e := NewEngine(newTestRegistry(t, panicky), rules, NewSemaphore(2), nil)

	res := e.Run(context.Background(), agent.AgentInput{}, "x", "advice", map[string]any{"seed": true})
	assert.False(t, res.Executed)
}
