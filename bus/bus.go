package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/careloop-ai/assistant-core/core/agent"
)

// DefaultMaxHistory bounds the retained message history.
const DefaultMaxHistory = 1000

// SubscriberFunc handles messages addressed to a subscribed agent.
// Subscriber errors are logged and do not stop other subscribers.
type SubscriberFunc func(ctx context.Context, msg Message) error

type subscription struct {
	id int64
	fn SubscriberFunc
}

// AgentBus is the in-memory A2A message bus.
//
// Thread-safe. Message history is bounded; the oldest messages are dropped
// once the limit is reached. Fan-out to subscribers is concurrent, and
// SendMessage waits for all subscribers before returning.
type AgentBus struct {
	logger      agent.Logger
	maxHistory  int
	middleware  []Middleware
	subscribers map[string][]subscription
	history     []Message
	sessions    map[string]*Session
	nextSubID   int64
	mu          sync.RWMutex
}

// Option configures an AgentBus.
type Option func(*AgentBus)

// WithMaxHistory overrides the history bound.
func WithMaxHistory(n int) Option {
	return func(b *AgentBus) {
		if n > 0 {
			b.maxHistory = n
		}
	}
}

// NewAgentBus creates an AgentBus.
func NewAgentBus(logger agent.Logger, opts ...Option) *AgentBus {
	if logger == nil {
		logger = agent.NopLogger{}
	}
	b := &AgentBus{
		logger:      logger.Bind("component", "bus"),
		maxHistory:  DefaultMaxHistory,
		subscribers: make(map[string][]subscription),
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// =============================================================================
// MESSAGING
// =============================================================================

// SendMessage records and delivers an A2A message addressed to a named agent.
// Returns the recorded message.
func (b *AgentBus) SendMessage(ctx context.Context, from, to string, msgType MessageType, content map[string]any) (Message, error) {
	if !msgType.Valid() {
		return Message{}, NewInvalidMessageTypeError(msgType)
	}

	msg := NewMessage(from, to, msgType, content)

	processed, err := b.runMiddlewareBefore(ctx, &msg)
	if err != nil {
		return Message{}, err
	}
	if processed == nil {
		b.logger.Debug("message_aborted_by_middleware", "message_id", msg.ID)
		return msg, nil
	}
	msg = *processed

	b.mu.Lock()
	b.history = append(b.history, msg)
	if overflow := len(b.history) - b.maxHistory; overflow > 0 {
		b.history = b.history[overflow:]
	}
	subs := make([]subscription, len(b.subscribers[to]))
	copy(subs, b.subscribers[to])
	b.mu.Unlock()

	var firstErr error
	if len(subs) > 0 {
		var wg sync.WaitGroup
		errs := make([]error, len(subs))
		for i, sub := range subs {
			idx, fn := i, sub.fn
			wg.Add(1)
			agent.SafeGo(b.logger, "bus subscriber", func() {
				defer wg.Done()
				if err := fn(ctx, msg); err != nil {
					errs[idx] = err
					b.logger.Warn("subscriber_failed",
						"to", to,
						"message_id", msg.ID,
						"error", err.Error(),
					)
				}
			}, func(recovered any) {
				errs[idx] = fmt.Errorf("subscriber panicked: %v", recovered)
			})
		}
		wg.Wait()
		for _, e := range errs {
			if e != nil {
				firstErr = e
				break
			}
		}
	}

	b.runMiddlewareAfter(ctx, &msg, firstErr)
	return msg, nil
}

// SubscribeToAgent registers a callback for messages addressed to name.
// Returns an unsubscribe function.
func (b *AgentBus) SubscribeToAgent(name string, fn SubscriberFunc) func() {
	b.mu.Lock()
	b.nextSubID++
	id := b.nextSubID
	b.subscribers[name] = append(b.subscribers[name], subscription{id: id, fn: fn})
	b.mu.Unlock()

	b.logger.Debug("agent_subscribed", "agent", name)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[name]
		for i, s := range subs {
			if s.id == id {
				b.subscribers[name] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// MessageHistory returns the retained history, newest last. If agentName is
// non-empty, only messages sent by or addressed to that agent are returned.
// If limit > 0, only the most recent limit messages are returned.
func (b *AgentBus) MessageHistory(agentName string, limit int) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	filtered := make([]Message, 0, len(b.history))
	for _, msg := range b.history {
		if agentName != "" && msg.From != agentName && msg.To != agentName {
			continue
		}
		filtered = append(filtered, msg)
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}

// =============================================================================
// SESSIONS
// =============================================================================

// CreateSession tags a named collaboration between participants.
// Each participant receives a session_started notification.
func (b *AgentBus) CreateSession(ctx context.Context, name string, participants []string) *Session {
	session := &Session{
		ID:           "sess_" + uuid.New().String()[:16],
		Name:         name,
		Participants: participants,
		StartedAt:    time.Now().UTC(),
	}

	b.mu.Lock()
	b.sessions[session.ID] = session
	b.mu.Unlock()

	b.logger.Info("collaboration_session_started",
		"session_id", session.ID,
		"name", name,
		"participants", participants,
	)

	for _, p := range participants {
		_, _ = b.SendMessage(ctx, "bus", p, MessageTypeNotification, map[string]any{
			"event":      "session_started",
			"session_id": session.ID,
			"name":       name,
		})
	}
	return session
}

// EndSession marks a session as ended.
func (b *AgentBus) EndSession(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	session, ok := b.sessions[sessionID]
	if !ok {
		b.mu.Unlock()
		return NewSessionNotFoundError(sessionID)
	}
	now := time.Now().UTC()
	session.EndedAt = &now
	participants := session.Participants
	b.mu.Unlock()

	b.logger.Info("collaboration_session_ended", "session_id", sessionID)

	for _, p := range participants {
		_, _ = b.SendMessage(ctx, "bus", p, MessageTypeNotification, map[string]any{
			"event":      "session_ended",
			"session_id": sessionID,
		})
	}
	return nil
}

// Session returns a session by ID.
func (b *AgentBus) Session(sessionID string) (*Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessions[sessionID]
	return s, ok
}

// =============================================================================
// MIDDLEWARE & LIFECYCLE
// =============================================================================

// AddMiddleware appends middleware. Before hooks run in registration order,
// After hooks in reverse.
func (b *AgentBus) AddMiddleware(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
}

// Clear removes all subscribers, history, sessions and middleware.
// Useful for testing.
func (b *AgentBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string][]subscription)
	b.history = nil
	b.sessions = make(map[string]*Session)
	b.middleware = nil
}

func (b *AgentBus) runMiddlewareBefore(ctx context.Context, msg *Message) (*Message, error) {
	b.mu.RLock()
	mws := make([]Middleware, len(b.middleware))
	copy(mws, b.middleware)
	b.mu.RUnlock()

	current := msg
	for _, mw := range mws {
		next, err := mw.Before(ctx, current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		current = next
	}
	return current, nil
}

func (b *AgentBus) runMiddlewareAfter(ctx context.Context, msg *Message, deliveryErr error) {
	b.mu.RLock()
	mws := make([]Middleware, len(b.middleware))
	copy(mws, b.middleware)
	b.mu.RUnlock()

	for i := len(mws) - 1; i >= 0; i-- {
		mws[i].After(ctx, msg, deliveryErr)
	}
}
