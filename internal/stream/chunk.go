// Package stream turns a chat SSE response into a typed, cancellable
// sequence of chunks.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/raphaelgruber/propchat/internal/models"
)

// Chunk is one decoded stream event. The set of implementations is closed:
// ContentChunk, CitationChunk, ArtifactChunk, DoneChunk and ErrorChunk.
type Chunk interface {
	Kind() Kind
	isChunk()
}

// Kind names a chunk variant.
type Kind string

const (
	KindContent  Kind = "chunk"
	KindCitation Kind = "citation"
	KindArtifact Kind = "artifact"
	KindDone     Kind = "done"
	KindError    Kind = "error"
)

// ContentChunk carries a text delta.
type ContentChunk struct {
	Text string
}

// CitationChunk carries one citation.
type CitationChunk struct {
	Citation models.Citation
}

// ArtifactChunk carries one artifact.
type ArtifactChunk struct {
	Artifact models.Artifact
}

// DoneChunk terminates a successful stream. The ids are set when the server
// echoes the persisted message ids.
type DoneChunk struct {
	MessageID     string
	UserMessageID string
}

// ErrorChunk terminates a failed stream. Err is set for transport failures.
type ErrorChunk struct {
	Message string
	Err     error
}

func (ContentChunk) Kind() Kind  { return KindContent }
func (CitationChunk) Kind() Kind { return KindCitation }
func (ArtifactChunk) Kind() Kind { return KindArtifact }
func (DoneChunk) Kind() Kind     { return KindDone }
func (ErrorChunk) Kind() Kind    { return KindError }

func (ContentChunk) isChunk()  {}
func (CitationChunk) isChunk() {}
func (ArtifactChunk) isChunk() {}
func (DoneChunk) isChunk()     {}
func (ErrorChunk) isChunk()    {}

// Error implements error so a terminal ErrorChunk can be returned directly.
func (c ErrorChunk) Error() string {
	if c.Message != "" {
		return c.Message
	}
	if c.Err != nil {
		return c.Err.Error()
	}
	return "stream error"
}

// Unwrap returns the underlying transport error, if any.
func (c ErrorChunk) Unwrap() error { return c.Err }

// IsTerminal reports whether c ends a stream.
func IsTerminal(c Chunk) bool {
	switch c.(type) {
	case DoneChunk, ErrorChunk:
		return true
	default:
		return false
	}
}

var (
	// ErrUnknownEvent is returned by Decode for an unrecognized event kind.
	ErrUnknownEvent = errors.New("unknown stream event")

	// ErrIncompleteEvent is returned by Decode when an event lacks its payload.
	ErrIncompleteEvent = errors.New("incomplete stream event")
)

// frame is the JSON payload of one `data:` line.
// Older backends send the kind under "type" and text events as "content".
type frame struct {
	Event         string           `json:"event"`
	Type          string           `json:"type"`
	Content       string           `json:"content"`
	Citation      *models.Citation `json:"citation"`
	Artifact      *models.Artifact `json:"artifact"`
	Error         string           `json:"error"`
	Done          bool             `json:"done"`
	MessageID     string           `json:"message_id"`
	UserMessageID string           `json:"user_message_id"`
}

// Decode parses one frame payload into a Chunk.
func Decode(data []byte) (Chunk, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	event := f.Event
	if event == "" {
		event = f.Type
	}
	if event == "" && f.Done {
		event = string(KindDone)
	}

	switch event {
	case "chunk", "content":
		return ContentChunk{Text: f.Content}, nil
	case "citation":
		if f.Citation == nil {
			return nil, fmt.Errorf("%w: citation event without citation", ErrIncompleteEvent)
		}
		return CitationChunk{Citation: *f.Citation}, nil
	case "artifact":
		if f.Artifact == nil {
			return nil, fmt.Errorf("%w: artifact event without artifact", ErrIncompleteEvent)
		}
		return ArtifactChunk{Artifact: *f.Artifact}, nil
	case "done":
		return DoneChunk{MessageID: f.MessageID, UserMessageID: f.UserMessageID}, nil
	case "error":
		msg := f.Error
		if msg == "" {
			msg = "unknown stream error"
		}
		return ErrorChunk{Message: msg}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
}
