// Package bus provides the agent-to-agent (A2A) message bus.
//
// The bus is observability and decoupling infrastructure: handlers may use
// it for out-of-band notifications to each other, and operators use its
// bounded history to inspect what the agents said. The orchestration graph
// does not need the bus to run a cascade; rule-triggered cascades are
// direct function calls.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// MessageType categorizes A2A messages.
type MessageType string

const (
	// MessageTypeRequest asks the target agent to do something.
	MessageTypeRequest MessageType = "request"
	// MessageTypeResponse carries a result back to the requesting agent.
	MessageTypeResponse MessageType = "response"
	// MessageTypeNotification is fire-and-forget information.
	MessageTypeNotification MessageType = "notification"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeRequest, MessageTypeResponse, MessageTypeNotification:
		return true
	}
	return false
}

// Message is a single A2A message.
type Message struct {
	ID        string         `json:"id"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Type      MessageType    `json:"type"`
	Content   map[string]any `json:"content,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewMessage creates a Message with a fresh ID and UTC timestamp.
func NewMessage(from, to string, msgType MessageType, content map[string]any) Message {
	return Message{
		ID:        "msg_" + uuid.New().String()[:16],
		From:      from,
		To:        to,
		Type:      msgType,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Session tags a named collaboration between agents. The bus enforces no
// protocol on sessions beyond logging and eventing.
type Session struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Participants []string   `json:"participants"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// Active reports whether the session has not been ended.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}
