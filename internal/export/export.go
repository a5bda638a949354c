// Package export renders conversations and artifacts to files.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raphaelgruber/propchat/internal/models"
)

// Exporter converts a conversation to one file format.
type Exporter interface {
	Export(conv *models.ConversationWithMessages) ([]byte, error)
	FileExtension() string
}

// Options configures the Markdown exporter.
type Options struct {
	IncludeCitations bool
	IncludeArtifacts bool
	// Now stamps the export; defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions includes citations and artifacts.
func DefaultOptions() Options {
	return Options{IncludeCitations: true, IncludeArtifacts: true, Now: time.Now}
}

// ForFormat returns the exporter for "markdown" (or "md") and "json".
func ForFormat(format string, opts Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "markdown", "md":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// Filename builds "<slug>-<id prefix><ext>" for a conversation.
func Filename(conv models.Conversation, ext string) string {
	slug := strings.Trim(models.Slugify(models.Truncate(conv.Title, 40)), "-")
	if slug == "" {
		slug = "conversation"
	}
	id := conv.ID
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		return slug + ext
	}
	return slug + "-" + id + ext
}

// WriteFile exports conv into dir and returns the written path.
func WriteFile(dir string, conv *models.ConversationWithMessages, e Exporter) (string, error) {
	if conv == nil {
		return "", fmt.Errorf("export conversation: conversation is nil")
	}
	content, err := e.Export(conv)
	if err != nil {
		return "", fmt.Errorf("export conversation: %w", err)
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(dir, Filename(conv.Conversation, e.FileExtension()))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}
