package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var suggestionsCount int

var suggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "Show suggested questions",
	Long: `Show ready-made questions for an empty conversation.

Falls back to built-in suggestions when the backend has none.

Examples:
  propchat suggestions
  propchat suggestions -n 3`,
	Args: cobra.NoArgs,
	RunE: runSuggestions,
}

func init() {
	suggestionsCmd.Flags().IntVarP(&suggestionsCount, "count", "n", 6, "number of suggestions")
}

func runSuggestions(cmd *cobra.Command, args []string) error {
	suggestions, err := apiClient.Suggestions(cmdContext(cmd), suggestionsCount)
	if err != nil {
		if len(suggestions) == 0 {
			return err
		}
		logger.Warn("using built-in suggestions", "error", err)
	}

	out := cmd.OutOrStdout()
	for i, s := range suggestions {
		fmt.Fprintf(out, "%d. %s %s [%s]\n", i+1, s.Icon, s.Title, s.Category)
		fmt.Fprintf(out, "   %s\n", s.Prompt)
	}
	return nil
}
