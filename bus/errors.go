package bus

import "fmt"

// InvalidMessageTypeError indicates a send with an unknown message type.
type InvalidMessageTypeError struct {
	Type MessageType
}

func (e *InvalidMessageTypeError) Error() string {
	return fmt.Sprintf("invalid message type '%s'. Must be one of: request, response, notification", e.Type)
}

// NewInvalidMessageTypeError creates an InvalidMessageTypeError.
func NewInvalidMessageTypeError(t MessageType) *InvalidMessageTypeError {
	return &InvalidMessageTypeError{Type: t}
}

// SessionNotFoundError indicates an operation on an unknown session.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("unknown session: %s", e.SessionID)
}

// NewSessionNotFoundError creates a SessionNotFoundError.
func NewSessionNotFoundError(id string) *SessionNotFoundError {
	return &SessionNotFoundError{SessionID: id}
}
