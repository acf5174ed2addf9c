package wire

import (
	"encoding/json"
	"fmt"
)

// DecodeError reports a malformed inbound message. Decode errors are
// non-fatal: the session drops the offending message and logs a warning.
type DecodeError struct {
	// Reason describes what was wrong with the message.
	Reason string

	// Cause is the underlying error, if any.
	Cause error
}

// Error returns the error message.
func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol decode error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("protocol decode error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// EncodeMessage encodes a message to its JSON wire form.
func EncodeMessage(m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return json.Marshal(m)
}

// DecodeMessage decodes a JSON wire frame into a message.
// Malformed frames return a *DecodeError.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &DecodeError{Reason: "malformed JSON", Cause: err}
	}
	if err := m.Validate(); err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}
	return &m, nil
}
