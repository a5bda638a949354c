package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/propchat/internal/export"
	"github.com/raphaelgruber/propchat/internal/models"
)

var (
	exportFormat         string
	exportDir            string
	exportNoCitations    bool
	exportNoArtifacts    bool
	exportArtifact       string
	exportArtifactFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export <conversation-id>",
	Short: "Export a conversation or one of its artifacts",
	Long: `Export a conversation to Markdown or JSON.

The Markdown export carries the conversation metadata in YAML frontmatter,
followed by every message with its sources and artifacts. With --artifact
only that artifact is written, as CSV, a Markdown table or JSON.

Use "-o -" to write to stdout.

Examples:
  propchat export 3f2a9c1e
  propchat export 3f2a9c1e --format json -o ./exports
  propchat export 3f2a9c1e --no-citations -o -
  propchat export 3f2a9c1e --artifact rent-table --artifact-format csv`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "markdown", "conversation format (markdown, json)")
	exportCmd.Flags().StringVarP(&exportDir, "output", "o", ".", "output directory, or - for stdout")
	exportCmd.Flags().BoolVar(&exportNoCitations, "no-citations", false, "leave out message sources")
	exportCmd.Flags().BoolVar(&exportNoArtifacts, "no-artifacts", false, "leave out message artifacts")
	exportCmd.Flags().StringVar(&exportArtifact, "artifact", "", "export only this artifact")
	exportCmd.Flags().StringVar(&exportArtifactFormat, "artifact-format", string(export.FormatCSV), "artifact format (csv, markdown, json)")
}

func runExport(cmd *cobra.Command, args []string) error {
	conv, err := apiClient.GetConversation(cmdContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}

	if exportArtifact != "" {
		return exportOneArtifact(cmd, conv)
	}

	e, err := export.ForFormat(exportFormat, export.Options{
		IncludeCitations: !exportNoCitations,
		IncludeArtifacts: !exportNoArtifacts,
		Now:              time.Now,
	})
	if err != nil {
		return err
	}

	if exportDir == "-" {
		content, err := e.Export(conv)
		if err != nil {
			return fmt.Errorf("export conversation: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(content)
		return err
	}

	path, err := export.WriteFile(exportDir, conv, e)
	if err != nil {
		return err
	}
	logger.Debug("conversation exported", "conversation_id", conv.ID, "path", path)
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d messages to %s\n", len(conv.Messages), path)
	return nil
}

func exportOneArtifact(cmd *cobra.Command, conv *models.ConversationWithMessages) error {
	a, ok := findArtifact(conv.Messages, exportArtifact)
	if !ok {
		return fmt.Errorf("artifact not found in conversation %s: %s", conv.ID, exportArtifact)
	}

	format := export.ArtifactFormat(exportArtifactFormat)
	content, err := export.Artifact(a, format)
	if err != nil {
		return fmt.Errorf("export artifact: %w", err)
	}

	if exportDir == "-" {
		_, err = cmd.OutOrStdout().Write(content)
		return err
	}

	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	name := models.Slugify(models.Truncate(a.Title, 40))
	if name == "" {
		name = a.ID
	}
	path := filepath.Join(exportDir, name+export.ArtifactExtension(format))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported artifact %s to %s\n", a.ID, path)
	return nil
}

func findArtifact(msgs []models.Message, id string) (models.Artifact, bool) {
	for _, m := range msgs {
		for _, a := range m.Artifacts {
			if a.ID == id {
				return a, true
			}
		}
	}
	return models.Artifact{}, false
}
