package cli

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/propchat/internal/models"
)

var (
	deleteForce bool
	newTitle    string
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "List and manage conversations",
	Long: `List and manage the organization's conversations.

Subcommands:
  list    List conversations grouped by recency (default)
  show    Print a conversation transcript
  new     Create an empty conversation
  rename  Rename a conversation
  delete  Delete a conversation

Examples:
  propchat conversations
  propchat conversations show 3f2a9c1e
  propchat conversations new --title "Baux 2025"
  propchat conversations rename 3f2a9c1e "Loyers impayés"
  propchat conversations delete 3f2a9c1e --force`,
	RunE: runListConversations,
}

var listConversationsCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations grouped by recency",
	RunE:  runListConversations,
}

var showConversationCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowConversation,
}

var newConversationCmd = &cobra.Command{
	Use:   "new",
	Short: "Create an empty conversation",
	Args:  cobra.NoArgs,
	RunE:  runNewConversation,
}

var renameConversationCmd = &cobra.Command{
	Use:   "rename <conversation-id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRenameConversation,
}

var deleteConversationCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation and its messages",
	Long: `Delete a conversation and all of its messages.

Requires confirmation unless --force is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeleteConversation,
}

func init() {
	newConversationCmd.Flags().StringVarP(&newTitle, "title", "t", models.DefaultConversationTitle, "conversation title")
	deleteConversationCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")

	conversationsCmd.AddCommand(listConversationsCmd)
	conversationsCmd.AddCommand(showConversationCmd)
	conversationsCmd.AddCommand(newConversationCmd)
	conversationsCmd.AddCommand(renameConversationCmd)
	conversationsCmd.AddCommand(deleteConversationCmd)
}

func runListConversations(cmd *cobra.Command, args []string) error {
	convs, err := apiClient.ListConversations(cmdContext(cmd))
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(convs) == 0 {
		fmt.Fprintln(out, "No conversations found")
		return nil
	}
	writeConversationGroups(out, models.GroupByRecency(convs, time.Now()))
	return nil
}

func runShowConversation(cmd *cobra.Command, args []string) error {
	conv, err := apiClient.GetConversation(cmdContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", conv.Title, conv.ID)
	fmt.Fprintf(out, "Created %s, %d messages\n\n", conv.CreatedAt.Local().Format("02/01/2006 15:04"), len(conv.Messages))
	writeMessages(out, conv.Messages)
	return nil
}

func runNewConversation(cmd *cobra.Command, args []string) error {
	title := strings.TrimSpace(newTitle)
	if title == "" {
		title = models.DefaultConversationTitle
	}
	conv, err := apiClient.CreateConversation(cmdContext(cmd), title)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s (%s)\n", conv.Title, conv.ID)
	return nil
}

func runRenameConversation(cmd *cobra.Command, args []string) error {
	title := strings.TrimSpace(strings.Join(args[1:], " "))
	if title == "" {
		return fmt.Errorf("title must not be empty")
	}
	conv, err := apiClient.UpdateConversation(cmdContext(cmd), args[0], title)
	if err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Renamed: %s (%s)\n", conv.Title, conv.ID)
	return nil
}

func runDeleteConversation(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)
	out := cmd.OutOrStdout()

	conv, err := apiClient.GetConversation(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}

	// Confirm deletion
	if !deleteForce {
		fmt.Fprintf(out, "About to delete: %s (%s, %d messages)\n", conv.Title, conv.ID, len(conv.Messages))
		fmt.Fprint(out, "\nContinue? [y/N]: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		response, err := reader.ReadString('\n')
		if err != nil && response == "" {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := apiClient.DeleteConversation(ctx, conv.ID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}

	fmt.Fprintf(out, "Deleted: %s\n", conv.Title)
	return nil
}
