package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/propchat/internal/models"
)

// frontmatter is the YAML header of a Markdown export.
type frontmatter struct {
	ID        string    `yaml:"id"`
	Title     string    `yaml:"title"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
	Messages  int       `yaml:"messages"`
	Sources   []string  `yaml:"sources,omitempty"`
	Exported  time.Time `yaml:"exported"`
}

// MarkdownExporter writes a conversation as Markdown with YAML frontmatter.
type MarkdownExporter struct {
	opts Options
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter(opts Options) *MarkdownExporter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &MarkdownExporter{opts: opts}
}

// FileExtension returns ".md".
func (e *MarkdownExporter) FileExtension() string { return ".md" }

// Export renders conv.
func (e *MarkdownExporter) Export(conv *models.ConversationWithMessages) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}

	fm := frontmatter{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt.UTC(),
		UpdatedAt: conv.UpdatedAt.UTC(),
		Messages:  len(conv.Messages),
		Sources:   citedDocuments(conv.Messages),
		Exported:  e.opts.Now().UTC().Truncate(time.Second),
	}
	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("marshal frontmatter: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(header)
	sb.WriteString("---\n\n")

	title := conv.Title
	if title == "" {
		title = models.DefaultConversationTitle
	}
	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title))

	written := 0
	for _, msg := range conv.Messages {
		if msg.Pending {
			continue
		}
		if written > 0 {
			sb.WriteString("---\n\n")
		}
		written++
		fmt.Fprintf(&sb, "### %s", roleLabel(msg.Role))
		if !msg.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, " <sub>%s</sub>", msg.CreatedAt.Format("02/01/2006 15:04"))
		}
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if e.opts.IncludeCitations && len(msg.Citations) > 0 {
			sb.WriteString(formatCitations(msg.Citations))
		}
		if e.opts.IncludeArtifacts {
			for _, a := range msg.Artifacts {
				sb.WriteString(formatArtifact(a))
			}
		}
	}

	return []byte(sb.String()), nil
}

func roleLabel(r models.Role) string {
	switch r {
	case models.RoleUser:
		return "Vous"
	case models.RoleAssistant:
		return "Assistant"
	case "":
		return "Inconnu"
	default:
		return string(r)
	}
}

func formatCitations(cites []models.Citation) string {
	var sb strings.Builder
	sb.WriteString("**Sources**\n\n")
	for i, c := range cites {
		fmt.Fprintf(&sb, "%d. %s", i+1, escapeMarkdown(c.DocumentTitle))
		if c.PageNumber != nil {
			fmt.Fprintf(&sb, ", p. %d", *c.PageNumber)
		}
		fmt.Fprintf(&sb, " (%s, %.0f%%)", c.SourceType, c.RelevanceScore*100)
		if c.URL != nil && *c.URL != "" {
			fmt.Fprintf(&sb, " <%s>", *c.URL)
		}
		sb.WriteString("\n")
		if preview := strings.TrimSpace(c.ContentPreview); preview != "" {
			fmt.Fprintf(&sb, "   > %s\n", strings.ReplaceAll(preview, "\n", " "))
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

func formatArtifact(a models.Artifact) string {
	var sb strings.Builder
	title := a.Title
	if title == "" {
		title = string(a.Type)
	}
	fmt.Fprintf(&sb, "**%s**\n\n", escapeMarkdown(title))

	if a.Type == models.ArtifactTable {
		if table, err := TableMarkdown(a); err == nil {
			sb.WriteString(table)
			sb.WriteString("\n")
			return sb.String()
		}
	}
	raw, err := ArtifactJSON(a)
	if err != nil {
		return ""
	}
	sb.WriteString("```json\n")
	sb.Write(raw)
	sb.WriteString("\n```\n\n")
	return sb.String()
}

// citedDocuments lists the distinct cited document titles in order of first use.
func citedDocuments(msgs []models.Message) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range msgs {
		for _, c := range m.Citations {
			if c.DocumentTitle == "" || seen[c.DocumentTitle] {
				continue
			}
			seen[c.DocumentTitle] = true
			out = append(out, c.DocumentTitle)
		}
	}
	return out
}

// escapeMarkdown escapes the characters that would break headings and list items.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer("#", `\#`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`)
	return r.Replace(s)
}
