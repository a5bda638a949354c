package chat

import "errors"

var (
	// ErrConversationUnavailable is returned when a conversation cannot be
	// loaded. Callers should go back to the conversation list.
	ErrConversationUnavailable = errors.New("conversation unavailable")

	// ErrNothingToRetry is returned by Retry before any message was attempted.
	ErrNothingToRetry = errors.New("nothing to retry")

	// ErrEmptyMessage is returned when the text is blank.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrStreamEnded is reported when a stream stops without a done or error event.
	ErrStreamEnded = errors.New("stream ended before completion")
)

// StreamError is a failure reported by the server, or normalized from a
// broken connection, after the turn was accepted.
type StreamError struct {
	Message string
	Err     error
}

func (e *StreamError) Error() string { return e.Message }

func (e *StreamError) Unwrap() error { return e.Err }
