package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/propchat/internal/chat"
	"github.com/raphaelgruber/propchat/internal/models"
)

var (
	askNoStream     bool
	askConversation string
	askRAG          ragFlags
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the answer",
	Long: `Ask a question and print the assistant's answer with its sources.

Without --conversation a new conversation is created, titled after the
question. The answer is streamed as it is generated; on a terminal the
final answer is rendered as Markdown. Ctrl+C stops the answer.

Examples:
  propchat ask "Quels baux arrivent à échéance ce trimestre ?" --rag
  propchat ask "Loyers impayés ?" --rag --strict --sources leases,tenants
  propchat ask "Bonjour" --no-stream
  propchat ask "Et pour le studio ?" -c 3f2a9c1e`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "wait for the full answer instead of streaming")
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "continue an existing conversation")
	askRAG.register(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	opts, err := askRAG.options(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt)
	defer stop()

	s := newSession(opts)
	defer s.Close()

	if askConversation != "" {
		if err := s.Store().SelectConversation(ctx, askConversation); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	tty := isTTY(out)

	// Piped output gets the text as it arrives; a terminal gets the
	// rendered answer once it is complete.
	var mu sync.Mutex
	printed := 0
	if !tty && !askNoStream {
		s.OnChange(func(st chat.State) {
			if st.Streaming == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if len(st.Streaming.Content) > printed {
				fmt.Fprint(out, st.Streaming.Content[printed:])
				printed = len(st.Streaming.Content)
			}
		})
	}
	if tty {
		fmt.Fprintln(cmd.ErrOrStderr(), defaultTheme.hintStyle().Render(fmt.Sprintf("… %s", opts.Mode())))
	}

	var outcome chat.Outcome
	if askNoStream {
		outcome, err = s.SendSync(ctx, text)
	} else {
		outcome, err = s.Send(ctx, text)
	}

	switch outcome {
	case chat.OutcomeCancelled:
		fmt.Fprintln(cmd.ErrOrStderr(), "\n(réponse interrompue)")
		return nil
	case chat.OutcomeFailed:
		if printed > 0 {
			fmt.Fprintln(out)
		}
		return fmt.Errorf("ask: %w", err)
	}

	st := s.State()
	reply, ok := lastAssistant(st.Messages)
	if !ok {
		return fmt.Errorf("ask: no answer received")
	}

	mu.Lock()
	streamed := printed
	mu.Unlock()
	switch {
	case tty:
		fmt.Fprint(out, renderMarkdown(reply.Content, terminalWidth(out)))
	case streamed == 0:
		fmt.Fprintln(out, reply.Content)
	case len(reply.Content) > streamed:
		fmt.Fprintln(out, reply.Content[streamed:])
	default:
		fmt.Fprintln(out)
	}
	writeCitations(out, reply.Citations)
	writeArtifacts(out, reply.Artifacts)

	if verbose {
		errOut := cmd.ErrOrStderr()
		if st.Active != nil {
			fmt.Fprintf(errOut, "\nConversation: %s\n", st.Active.ID)
		}
		writeStats(errOut, collector.Snapshot())
	}
	return nil
}

func lastAssistant(msgs []models.Message) (models.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleAssistant {
			return msgs[i], true
		}
	}
	return models.Message{}, false
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
