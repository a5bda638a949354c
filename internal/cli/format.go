package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/raphaelgruber/propchat/internal/export"
	"github.com/raphaelgruber/propchat/internal/metrics"
	"github.com/raphaelgruber/propchat/internal/models"
)

// writeCitations prints a numbered source list.
func writeCitations(w io.Writer, cites []models.Citation) {
	if len(cites) == 0 {
		return
	}
	fmt.Fprintf(w, "\nSources (%d):\n", len(cites))
	for i, c := range cites {
		line := fmt.Sprintf("  [%d] %s", i+1, c.DocumentTitle)
		if c.PageNumber != nil {
			line += fmt.Sprintf(", p. %d", *c.PageNumber)
		}
		line += fmt.Sprintf(" (%s, %.0f%%)", c.SourceType, c.RelevanceScore*100)
		fmt.Fprintln(w, line)
		if verbose && c.ContentPreview != "" {
			fmt.Fprintf(w, "      %s\n", models.Truncate(strings.Join(strings.Fields(c.ContentPreview), " "), 120))
		}
	}
}

// writeArtifacts prints table artifacts as Markdown tables and lists the others.
func writeArtifacts(w io.Writer, arts []models.Artifact) {
	for _, a := range arts {
		title := a.Title
		if title == "" {
			title = string(a.Type)
		}
		fmt.Fprintf(w, "\n%s [%s, %s]\n", title, a.Type, a.ID)
		if a.Type != models.ArtifactTable {
			continue
		}
		table, err := export.TableMarkdown(a)
		if err != nil {
			fmt.Fprintf(w, "  (table illisible: %v)\n", err)
			continue
		}
		fmt.Fprint(w, table)
	}
}

// writeConversationGroups prints the roster grouped by recency.
func writeConversationGroups(w io.Writer, groups []models.RecencyGroup) {
	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s:\n", g.Label)
		for _, c := range g.Conversations {
			fmt.Fprintf(w, "- %s  %s (%d messages)\n", c.ID, c.Title, c.MessagesCount)
		}
	}
}

// writeMessages prints a conversation transcript.
func writeMessages(w io.Writer, msgs []models.Message) {
	for i, m := range msgs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		label := "Vous"
		if m.Role == models.RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(w, "%s (%s):\n%s\n", label, m.CreatedAt.Local().Format("02/01/2006 15:04"), m.Content)
		writeCitations(w, m.Citations)
		writeArtifacts(w, m.Artifacts)
	}
}

// writeStats prints a metrics snapshot.
func writeStats(w io.Writer, snap metrics.Snapshot) {
	fmt.Fprintf(w, "Uptime: %s\n", time.Duration(snap.UptimeSeconds*float64(time.Second)).Round(time.Millisecond))
	ops := []struct {
		name string
		op   *metrics.OperationSnapshot
	}{
		{"chat stream", snap.ChatStream},
		{"first chunk", snap.FirstChunk},
		{"chat send", snap.ChatSend},
		{"api request", snap.APIRequest},
	}
	for _, o := range ops {
		if o.op == nil {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", o.name)
		fmt.Fprintf(w, "  Count:     %d (failed %d, cancelled %d)\n", o.op.Count, o.op.Failures, o.op.Cancelled)
		fmt.Fprintf(w, "  Avg time:  %.1fms\n", o.op.AvgTimeMs)
		fmt.Fprintf(w, "  Min/Max:   %dms / %dms\n", o.op.MinTimeMs, o.op.MaxTimeMs)
		if o.op.TotalContentChunks != nil {
			fmt.Fprintf(w, "  Chunks:    %d content, %d citations, %d artifacts\n",
				*o.op.TotalContentChunks, derefInt(o.op.TotalCitations), derefInt(o.op.TotalArtifacts))
		}
	}
}

func derefInt(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
