package cli

import (
	"context"
	"fmt"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"
)

var (
	chatConversation string
	chatRAG          ragFlags
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat",
	Long: `Open an interactive chat with the property management assistant.

Keys:
  Enter    send the message
  Esc      stop the answer being generated
  Ctrl+R   retry the last failed message
  Ctrl+G   toggle retrieval over your data (RAG)
  Ctrl+T   toggle strict mode (answer only from sources)
  Ctrl+S   choose the sources to search
  Ctrl+N   start a new conversation
  Tab      insert a suggested question
  Ctrl+C   quit

Logs go to the log file only while the chat is open.

Examples:
  propchat chat
  propchat chat --rag --sources leases,tenants
  propchat chat -c 3f2a9c1e`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatConversation, "conversation", "c", "", "resume an existing conversation")
	chatRAG.register(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	opts, err := chatRAG.options(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmdContext(cmd))
	defer cancel()

	s := newSession(opts)
	defer s.Close()

	if err := s.Store().LoadConversations(ctx); err != nil {
		logger.Warn("conversation list unavailable", "error", err)
	}
	if chatConversation != "" {
		if err := s.Store().SelectConversation(ctx, chatConversation); err != nil {
			return err
		}
	}

	suggestions, err := apiClient.Suggestions(ctx, 4)
	if err != nil {
		logger.Warn("using built-in suggestions", "error", err)
	}

	p := tea.NewProgram(newChatModel(ctx, s, suggestions))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}
