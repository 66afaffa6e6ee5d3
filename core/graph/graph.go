package graph

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/careloop-ai/assistant-core/bus"
	"github.com/careloop-ai/assistant-core/core/agent"
	"github.com/careloop-ai/assistant-core/core/collab"
	"github.com/careloop-ai/assistant-core/core/router"
	"github.com/careloop-ai/assistant-core/observability"
)

var tracer = otel.Tracer("assistant-core/graph")

// Fixed apologetic reply used whenever a stage fails.
const errorReply = "Sorry, something went wrong while handling your request. Please try again in a moment."

// Graph wires the router, the handler registry and the collaboration
// engine into the per-request pipeline.
type Graph struct {
	classifier *router.Classifier
	registry   *agent.Registry
	engine     *collab.Engine
	guards     []router.Guard
	logger     agent.Logger
}

// New creates a Graph. Nil guards take the default chain; logger may be nil.
func New(classifier *router.Classifier, registry *agent.Registry, engine *collab.Engine, guards []router.Guard, logger agent.Logger) *Graph {
	if guards == nil {
		guards = router.DefaultGuards
	}
	if logger == nil {
		logger = agent.NopLogger{}
	}
	return &Graph{
		classifier: classifier,
		registry:   registry,
		engine:     engine,
		guards:     guards,
		logger:     logger,
	}
}

// Process runs one request through the pipeline. It never returns an
// error: any stage failure is captured on the state and replaced with the
// fixed apologetic output.
func (g *Graph) Process(ctx context.Context, input agent.AgentInput) *State {
	ctx, span := tracer.Start(ctx, "graph.process")
	defer span.End()

	state := NewState(input)
	span.SetAttributes(
		attribute.String("assistant.request.id", state.RequestID),
		attribute.String("assistant.user.id", state.UserID),
	)

	log := g.logger.Bind("request_id", state.RequestID)
	log.Info("graph_started", "user_id", state.UserID, "message_length", len(state.Message))
	start := time.Now()

	done := g.runStage(ctx, state, StageRouter, log, func(ctx context.Context) (int, error) {
		return g.routerStage(ctx, state, input, log)
	})
	if !done && !state.Failed() {
		g.runStage(ctx, state, StageHandler, log, func(ctx context.Context) (int, error) {
			return g.handlerStage(ctx, state, input, log)
		})
	}
	if !done && !state.Failed() {
		g.runStage(ctx, state, StageCollaboration, log, func(ctx context.Context) (int, error) {
			return g.collaborationStage(ctx, state, input, log), nil
		})
	}

	elapsed := int(time.Since(start).Milliseconds())
	state.Timeline = append(state.Timeline, TimelineEntry{
		Step:      StageDone,
		ElapsedMS: elapsed,
		Intent:    state.Context.Intent,
		Route:     state.CurrentAgent,
	})

	if state.Failed() {
		span.SetStatus(codes.Error, state.Err)
		observability.RecordGraphRun("error")
		log.Error("graph_failed", "error", state.Err, "duration_ms", elapsed)
	} else {
		span.SetStatus(codes.Ok, "success")
		observability.RecordGraphRun("success")
		log.Info("graph_completed", "agent", state.CurrentAgent, "duration_ms", elapsed)
	}
	return state
}

// runStage executes one stage with panic/error capture at the boundary.
// The stage function reports the tokens its own LLM work consumed, which
// land on the timeline entry appended here, once per stage.
// Returns true when the stage short-circuited the run (guard block).
func (g *Graph) runStage(ctx context.Context, state *State, stage string, log agent.Logger, fn func(context.Context) (int, error)) (shortCircuit bool) {
	ctx, span := tracer.Start(ctx, "graph."+stage)
	defer span.End()

	start := time.Now()
	usage, err := agent.SafeExecuteWithResult(log, stage+" stage", func() (int, error) {
		return fn(ctx)
	})

	elapsed := int(time.Since(start).Milliseconds())
	observability.RecordGraphStage(stage, elapsed)

	state.Timeline = append(state.Timeline, TimelineEntry{
		Step:             stage,
		ElapsedMS:        elapsed,
		Intent:           state.Context.Intent,
		Route:            state.CurrentAgent,
		UsageTotalTokens: usage,
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.fail(state, err, log)
		return false
	}
	return state.CurrentAgent == "" && state.FinalOutput != nil
}

// fail moves the state to the terminal error shape: error sentinel agent
// and the fixed apologetic output carrying a structured error action.
func (g *Graph) fail(state *State, err error, log agent.Logger) {
	log.Error("stage_failed", "error", err.Error())
	state.Err = err.Error()
	state.CurrentAgent = ErrorSentinelAgent
	state.FinalOutput = &agent.AgentOutput{
		Reply: errorReply,
		Actions: []agent.Action{{
			Type:   "error",
			Status: agent.ActionStatusFailed,
			Payload: map[string]any{
				"reason":  "handler_failure",
				"details": err.Error(),
			},
		}},
	}
}

// routerStage classifies the message, applies block guards and resolves
// the route. Returns the tokens the classifier consumed.
func (g *Graph) routerStage(ctx context.Context, state *State, input agent.AgentInput, log agent.Logger) (int, error) {
	cls := g.classifier.Classify(ctx, state.Message)

	state.Context.Intent = cls.Intent
	state.Context.Entities = cls.Entities
	state.Context.MultiAgentRequest = cls.MultiAgent
	state.Context.AdditionalAgents = cls.AdditionalAgents

	if d := router.RunGuards(g.guards, cls.Intent, cls.Entities, state.Metadata); d.Blocked {
		log.Info("request_blocked", "intent", cls.Intent, "reason", d.Reason)
		// Blocked is a terminal reply, not an error: CurrentAgent stays
		// empty so the handler stage is skipped.
		state.FinalOutput = &agent.AgentOutput{
			Reply: d.Reason,
			Actions: []agent.Action{{
				Type:    "blocked",
				Status:  agent.ActionStatusFailed,
				Payload: map[string]any{"intent": cls.Intent, "reason": d.Reason},
			}},
		}
		state.Timeline = append(state.Timeline, TimelineEntry{Step: "guard_blocked", Intent: cls.Intent})
		return cls.UsageTotalTokens, nil
	}

	route := router.ResolveRoute(cls.Intent)
	state.CurrentAgent = route
	state.appendMessage(StageRouter, route, bus.MessageTypeRequest, map[string]any{
		"message": state.Message,
		"intent":  cls.Intent,
	})

	log.Info("routing_completed",
		"intent", cls.Intent,
		"route", route,
		"tier", cls.Tier,
		"multi_agent", cls.MultiAgent)
	return cls.UsageTotalTokens, nil
}

// handlerStage dispatches to the routed handler and stores its output.
// Returns the tokens the handler's output reports.
func (g *Graph) handlerStage(ctx context.Context, state *State, input agent.AgentInput, log agent.Logger) (int, error) {
	handler, _ := g.registry.Resolve(state.CurrentAgent)

	branch := input
	branch.Intent = state.Context.Intent
	branch.Entities = state.Context.Entities

	start := time.Now()
	out, err := handler.Process(ctx, branch)
	elapsed := int(time.Since(start).Milliseconds())

	if err != nil {
		observability.RecordHandlerExecution(handler.Name(), "error", elapsed)
		return 0, fmt.Errorf("handler %s: %w", handler.Name(), err)
	}
	observability.RecordHandlerExecution(handler.Name(), "success", elapsed)

	state.FinalOutput = &out
	state.mergeSharedData(out.SharedData)
	state.appendMessage(handler.Name(), StageRouter, bus.MessageTypeResponse, map[string]any{
		"reply":   out.Reply,
		"actions": len(out.Actions),
	})

	log.Info("handler_completed", "handler", handler.Name(), "duration_ms", elapsed)
	return out.UsageTotalTokens, nil
}

// collaborationStage runs the rule engine over the handler's shared data.
// Multi-agent requests skip the cascade: the router already expanded the
// request across handlers. Returns the tokens the cascade output reports.
func (g *Graph) collaborationStage(ctx context.Context, state *State, input agent.AgentInput, log agent.Logger) int {
	if g.engine == nil {
		return 0
	}
	if state.Context.MultiAgentRequest {
		log.Debug("collaboration_skipped", "reason", "multi_agent_request")
		return 0
	}
	if len(state.Context.SharedData) == 0 {
		return 0
	}

	res := g.engine.Run(ctx, input, state.Context.Intent, state.CurrentAgent, state.Context.SharedData)
	if !res.Executed {
		return 0
	}

	previous := state.CurrentAgent
	state.CurrentAgent = res.Agent
	out := res.Output
	state.FinalOutput = &out
	state.mergeSharedData(res.SharedData)
	state.appendMessage(previous, res.Agent, bus.MessageTypeRequest, map[string]any{
		"cascade":  true,
		"strategy": string(res.Strategy),
		"rules":    res.RulesFired,
	})

	log.Info("collaboration_completed",
		"strategy", string(res.Strategy),
		"agent", res.Agent,
		"rules_fired", res.RulesFired)
	return res.Output.UsageTotalTokens
}
