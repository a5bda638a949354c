package chat

import (
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/propchat/internal/metrics"
	"github.com/raphaelgruber/propchat/internal/models"
	"github.com/raphaelgruber/propchat/internal/stream"
)

// InFlight is the visible part of a response that is still streaming.
// Citations and artifacts are not complete until the response settles.
type InFlight struct {
	CorrelationKey string
	Content        string
	Citations      []models.Citation
	Artifacts      []models.Artifact
}

// assembler folds the chunks of one response into a single assistant message.
type assembler struct {
	key       string
	content   strings.Builder
	citations []models.Citation
	artifacts []models.Artifact
	counts    metrics.ChunkCounts
	finished  bool
	logger    *slog.Logger
}

func newAssembler(correlationKey string, logger *slog.Logger) *assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &assembler{key: correlationKey, logger: logger}
}

// apply folds one non-terminal chunk. It returns false for chunks arriving
// after the response finished, which are ignored.
func (a *assembler) apply(c stream.Chunk) bool {
	if a.finished {
		a.logger.Warn("ignoring chunk after end of response", "kind", c.Kind(), "correlation_key", a.key)
		return false
	}

	switch c := c.(type) {
	case stream.ContentChunk:
		a.counts.Content++
		a.content.WriteString(c.Text)
	case stream.CitationChunk:
		a.counts.Citations++
		a.citations = append(a.citations, c.Citation)
	case stream.ArtifactChunk:
		a.counts.Artifacts++
		a.artifacts = append(a.artifacts, c.Artifact.WithMessageID(a.key))
	case stream.DoneChunk, stream.ErrorChunk:
		a.finished = true
	}
	return true
}

// message freezes the response. The server id from done is used when present,
// otherwise the correlation key. Artifacts are re-tagged with the final id.
func (a *assembler) message(conversationID string, done stream.DoneChunk, now time.Time) models.Message {
	a.finished = true

	id := done.MessageID
	if id == "" {
		id = a.key
	}

	citations := append([]models.Citation{}, a.citations...)
	var artifacts []models.Artifact
	if len(a.artifacts) > 0 {
		artifacts = make([]models.Artifact, len(a.artifacts))
		for i, art := range a.artifacts {
			artifacts[i] = art.WithMessageID(id)
		}
	}

	return models.Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Content:        a.content.String(),
		Citations:      citations,
		Artifacts:      artifacts,
		CreatedAt:      now,
	}
}

// snapshot returns a copy of the in-flight content.
func (a *assembler) snapshot() *InFlight {
	out := &InFlight{
		CorrelationKey: a.key,
		Content:        a.content.String(),
	}
	if len(a.citations) > 0 {
		out.Citations = append([]models.Citation(nil), a.citations...)
	}
	if len(a.artifacts) > 0 {
		out.Artifacts = make([]models.Artifact, len(a.artifacts))
		for i, art := range a.artifacts {
			out.Artifacts[i] = art.Clone()
		}
	}
	return out
}
