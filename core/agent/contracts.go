// Package agent provides the handler contracts shared by every specialized
// handler in the assistant core.
//
// A Handler is the unit of work the orchestration graph dispatches to:
// it receives an AgentInput, produces an AgentOutput, and may attach an
// opaque shared-data bag that the collaboration engine inspects to decide
// on cascades.
package agent

import (
	"context"
	"strings"
)

// =============================================================================
// ENUMS
// =============================================================================

// ActionStatus represents the lifecycle status of an action emitted by a handler.
type ActionStatus string

const (
	// ActionStatusPending indicates the action needs user input or a follow-up.
	ActionStatusPending ActionStatus = "pending"
	// ActionStatusDone indicates the action completed.
	ActionStatusDone ActionStatus = "done"
	// ActionStatusFailed indicates the action could not be completed.
	ActionStatusFailed ActionStatus = "failed"
)

// FollowupType represents the kind of follow-up a handler asks of the user.
type FollowupType string

const (
	FollowupTypeQuestion FollowupType = "question"
	FollowupTypeConfirm  FollowupType = "confirm"
	FollowupTypeInfo     FollowupType = "info"
)

// =============================================================================
// INPUT / OUTPUT
// =============================================================================

// Metadata keys recognized by the core. Anything else is passed through
// untouched for handler-specific use.
const (
	MetadataKeyTimezone    = "timezone"
	MetadataKeyLocale      = "locale"
	MetadataKeyAccessToken = "access_token"
)

// AgentInput is the per-request input delivered to a handler.
// Intent and Entities are set by the router before handoff.
type AgentInput struct {
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Intent    string         `json:"intent,omitempty"`
	Entities  map[string]any `json:"entities,omitempty"`

	// SharedData is populated when the handler is invoked through a
	// collaboration cascade; it carries the upstream handler's bag.
	SharedData map[string]any `json:"shared_data,omitempty"`
}

// Timezone returns the request timezone from metadata, or "" if absent.
func (in *AgentInput) Timezone() string {
	return metadataString(in.Metadata, MetadataKeyTimezone)
}

// AccessToken returns the external access token from metadata, or "" if absent.
func (in *AgentInput) AccessToken() string {
	return metadataString(in.Metadata, MetadataKeyAccessToken)
}

// HasValidAccessToken reports whether a usable external access token is present.
// Placeholder values that upstream layers inject for unauthenticated sessions
// do not count.
func (in *AgentInput) HasValidAccessToken() bool {
	token := strings.TrimSpace(in.AccessToken())
	if token == "" {
		return false
	}
	switch strings.ToLower(token) {
	case "null", "undefined", "none", "placeholder":
		return false
	}
	return true
}

func metadataString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Action is a structured side effect reported by a handler.
type Action struct {
	Type    string         `json:"type"`
	Status  ActionStatus   `json:"status"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Followup is a message the handler wants relayed back to the user.
type Followup struct {
	Type FollowupType `json:"type"`
	Text string       `json:"text"`
}

// AgentOutput is the result of a handler processing an input.
//
// SharedData is an opaque, handler-defined bag; the collaboration engine
// inspects it to decide whether another handler should run next.
type AgentOutput struct {
	Reply            string         `json:"reply"`
	Actions          []Action       `json:"actions,omitempty"`
	Followups        []Followup     `json:"followups,omitempty"`
	SharedData       map[string]any `json:"shared_data,omitempty"`
	UsageTotalTokens int            `json:"usage_total_tokens,omitempty"`
}

// =============================================================================
// PROTOCOLS
// =============================================================================

// Handler is the polymorphic capability the graph dispatches to.
type Handler interface {
	// Name returns the registry name of the handler (its route).
	Name() string
	// Capabilities returns a human-readable capability list.
	Capabilities() []string
	// Process handles one request. Handlers must catch external-service
	// failures locally; a returned error marks the whole stage as failed.
	Process(ctx context.Context, input AgentInput) (AgentOutput, error)
}

// Logger is the protocol for structured logging.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Bind(fields ...any) Logger
}

// NopLogger is a Logger that discards everything. Useful as a default.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (n NopLogger) Bind(...any) Logger { return n }
