package bus

import (
	"context"

	"github.com/careloop-ai/assistant-core/core/agent"
)

// Middleware intercepts messages before and after delivery.
// Used for logging, telemetry and test instrumentation.
type Middleware interface {
	// Before is called before a message is delivered.
	// Returning nil aborts delivery without error.
	Before(ctx context.Context, msg *Message) (*Message, error)

	// After is called once delivery has finished. deliveryErr is the first
	// subscriber error, if any.
	After(ctx context.Context, msg *Message, deliveryErr error)
}

// LoggingMiddleware logs every message passing through the bus.
type LoggingMiddleware struct {
	Logger agent.Logger
}

// NewLoggingMiddleware creates a LoggingMiddleware.
func NewLoggingMiddleware(logger agent.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{Logger: logger.Bind("component", "bus")}
}

// Before implements Middleware.
func (m *LoggingMiddleware) Before(_ context.Context, msg *Message) (*Message, error) {
	m.Logger.Debug("a2a_message_sent",
		"message_id", msg.ID,
		"from", msg.From,
		"to", msg.To,
		"type", string(msg.Type),
	)
	return msg, nil
}

// After implements Middleware.
func (m *LoggingMiddleware) After(_ context.Context, msg *Message, deliveryErr error) {
	if deliveryErr != nil {
		m.Logger.Warn("a2a_delivery_error",
			"message_id", msg.ID,
			"to", msg.To,
			"error", deliveryErr.Error(),
		)
	}
}
