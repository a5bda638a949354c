package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsSamples int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Measure backend response times",
	Long: `Probe the backend with a few read-only requests and print the timings.

Each sample lists the conversations and fetches the suggestions. With
--ask a short question is also streamed so chat stream and first chunk
latency are measured; this creates a conversation.

Examples:
  propchat stats
  propchat stats -n 10
  propchat stats --ask "Bonjour"`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

var statsQuestion string

func init() {
	statsCmd.Flags().IntVarP(&statsSamples, "samples", "n", 3, "number of probe rounds")
	statsCmd.Flags().StringVar(&statsQuestion, "ask", "", "also stream this question once")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)
	out := cmd.OutOrStdout()

	if statsSamples < 1 {
		statsSamples = 1
	}
	start := time.Now()
	var failures int
	for range statsSamples {
		if _, err := apiClient.ListConversations(ctx); err != nil {
			failures++
			logger.Warn("probe failed", "request", "list_conversations", "error", err)
		}
		if _, err := apiClient.Suggestions(ctx, 1); err != nil {
			failures++
			logger.Warn("probe failed", "request", "suggestions", "error", err)
		}
	}

	if statsQuestion != "" {
		s := newSession(cfg.RAGOptions())
		outcome, err := s.Send(ctx, statsQuestion)
		s.Close()
		if err != nil {
			failures++
			logger.Warn("probe failed", "request", "chat_stream", "outcome", outcome, "error", err)
		}
	}

	fmt.Fprintf(out, "Backend: %s (%d rounds in %s, %d failed)\n\n",
		cfg.APIURL, statsSamples, time.Since(start).Round(time.Millisecond), failures)
	writeStats(out, collector.Snapshot())
	return nil
}
