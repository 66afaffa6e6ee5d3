// Package graph is the orchestration state machine: init -> router ->
// handler -> collaboration -> done, with a terminal error stage reachable
// from anywhere. The graph never returns an error; every failure becomes a
// structured apologetic output on the final state.
package graph

import (
	"github.com/google/uuid"

	"github.com/careloop-ai/assistant-core/bus"
	"github.com/careloop-ai/assistant-core/core/agent"
)

// Stage names, also used as timeline steps.
const (
	StageInit          = "init"
	StageRouter        = "router"
	StageHandler       = "handler"
	StageCollaboration = "collaboration"
	StageDone          = "done"
)

// ErrorSentinelAgent is the CurrentAgent value after a failed run.
const ErrorSentinelAgent = "error_handler"

// TimelineEntry records one stage of a run.
type TimelineEntry struct {
	Step             string `json:"step"`
	ElapsedMS        int    `json:"elapsed_ms"`
	Intent           string `json:"intent,omitempty"`
	Route            string `json:"route,omitempty"`
	UsageTotalTokens int    `json:"usage_total_tokens,omitempty"`
}

// Context is the classification state accumulated across stages.
type Context struct {
	Intent            string         `json:"intent,omitempty"`
	Entities          map[string]any `json:"entities,omitempty"`
	SharedData        map[string]any `json:"shared_data,omitempty"`
	MultiAgentRequest bool           `json:"multi_agent_request,omitempty"`
	AdditionalAgents  []string       `json:"additional_agents,omitempty"`
}

// State is the per-request graph state. Stage functions mutate it
// structurally: unrelated fields are preserved, SharedData only grows.
type State struct {
	RequestID    string             `json:"request_id"`
	UserID       string             `json:"user_id"`
	SessionID    string             `json:"session_id"`
	Message      string             `json:"message"`
	Metadata     map[string]any     `json:"metadata,omitempty"`
	Messages     []bus.Message      `json:"messages,omitempty"`
	CurrentAgent string             `json:"current_agent,omitempty"`
	FinalOutput  *agent.AgentOutput `json:"final_output,omitempty"`
	Context      Context            `json:"context"`
	Err          string             `json:"error,omitempty"`
	Timeline     []TimelineEntry    `json:"timeline,omitempty"`
}

// NewState seeds a run from an input.
func NewState(input agent.AgentInput) *State {
	return &State{
		RequestID: "req_" + uuid.New().String()[:16],
		UserID:    input.UserID,
		SessionID: input.SessionID,
		Message:   input.Message,
		Metadata:  input.Metadata,
	}
}

// Failed reports whether the run ended in the error stage.
func (s *State) Failed() bool { return s.Err != "" }

// Reply is the user-facing reply of the run, if any.
func (s *State) Reply() string {
	if s.FinalOutput == nil {
		return ""
	}
	return s.FinalOutput.Reply
}

// appendMessage records an A2A message on the state.
func (s *State) appendMessage(from, to string, msgType bus.MessageType, content map[string]any) {
	msg := bus.NewMessage(from, to, msgType, content)
	msg.SessionID = s.SessionID
	s.Messages = append(s.Messages, msg)
}

// mergeSharedData grows the context's shared data by key union; incoming
// values win collisions, existing keys are never deleted.
func (s *State) mergeSharedData(src map[string]any) {
	if len(src) == 0 {
		return
	}
	if s.Context.SharedData == nil {
		s.Context.SharedData = make(map[string]any, len(src))
	}
	for k, v := range src {
		s.Context.SharedData[k] = v
	}
}
