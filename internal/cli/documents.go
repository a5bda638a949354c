package cli

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	processForce  bool
	processNoWait bool
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Process uploaded documents",
	Long: `Run OCR and lease extraction on documents already uploaded to the backend.

Examples:
  propchat documents process 8b1c2d3e           # Process and follow progress
  propchat documents process 8b1c2d3e --force   # Reprocess an already processed document
  propchat documents status 5f6a7b8c            # Show a processing run`,
}

var processCmd = &cobra.Command{
	Use:   "process <document-id>",
	Short: "Start processing a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcess,
}

var processingStatusCmd = &cobra.Command{
	Use:   "status <processing-id>",
	Short: "Show a processing run",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcessingStatus,
}

func init() {
	processCmd.Flags().BoolVarP(&processForce, "force", "f", false, "reprocess even if already processed")
	processCmd.Flags().BoolVar(&processNoWait, "no-wait", false, "return as soon as the run is accepted")

	documentsCmd.AddCommand(processCmd)
	documentsCmd.AddCommand(processingStatusCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	run, err := apiClient.ProcessDocument(ctx, args[0], processForce)
	if err != nil {
		return fmt.Errorf("process document: %w", err)
	}
	logger.Info("processing started", "processing_id", run.ID, "document_id", run.DocumentID, "status", run.Status)

	if processNoWait {
		fmt.Fprintf(out, "Processing %s started (%s)\n", run.ID, run.Status)
		return nil
	}

	if isTTY(out) {
		return RunProcessingProgress(apiClient, run)
	}

	run, err = waitProcessing(ctx, out, apiClient, run, pollInterval)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	writeRun(out, run)
	return nil
}

func runProcessingStatus(cmd *cobra.Command, args []string) error {
	run, err := apiClient.GetProcessing(cmdContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("get processing: %w", err)
	}

	out := cmd.OutOrStdout()
	writeRun(out, run)
	if run.ErrorMessage != nil && *run.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:      %s\n", *run.ErrorMessage)
	}
	return nil
}
