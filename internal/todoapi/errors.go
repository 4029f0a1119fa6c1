package todoapi

import (
	"errors"
	"fmt"
)

var (
	ErrNilStore   = errors.New("todoapi: cache store is nil")
	ErrInvalidID  = errors.New("todoapi: invalid todo id")
	ErrNoBaseURL  = errors.New("todoapi: base url is required")
	ErrBadPayload = errors.New("todoapi: undecodable response")
)

// Error is a request the backend rejected, either by status code or by an
// envelope with success=false. Message is the envelope's message, if any.
type Error struct {
	Op      Op
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: backend returned %d", e.Op, e.Status)
}

// Message extracts the backend's explanation from err, if it carries one.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// UserMessage appends the backend's explanation, when present, to a
// user-facing failure message.
func UserMessage(fallback string, err error) string {
	if msg := Message(err); msg != "" {
		return fmt.Sprintf("%s (%s)", fallback, msg)
	}
	return fallback
}
