package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/propchat/internal/chat"
	"github.com/raphaelgruber/propchat/internal/models"
	"github.com/raphaelgruber/propchat/internal/rag"
)

// stateMsg carries a session snapshot into the update loop.
type stateMsg chat.State

// sendDoneMsg reports how a send or retry ended.
type sendDoneMsg struct {
	outcome chat.Outcome
	err     error
}

// noticeMsg is a one-line status shown above the input.
type noticeMsg struct {
	text string
	err  error
}

// chatModel is the bubbletea model for the interactive chat.
type chatModel struct {
	ctx     context.Context
	session *chat.Session
	notify  <-chan struct{}

	state       chat.State
	suggestions []models.PromptSuggestion
	nextSuggest int
	input       []rune
	picking     bool
	notice      string
	noticeErr   bool
	theme       Theme
	width       int
	height      int
	quitting    bool
}

// newChatModel creates the model and subscribes it to session changes.
// Changes are coalesced: the observer only flags that a new state exists
// and the update loop reads it, so session calls made from Update never
// block on the program.
func newChatModel(ctx context.Context, s *chat.Session, suggestions []models.PromptSuggestion) chatModel {
	notify := make(chan struct{}, 1)
	s.OnChange(func(chat.State) {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	return chatModel{
		ctx:         ctx,
		session:     s,
		notify:      notify,
		state:       s.State(),
		suggestions: suggestions,
		theme:       defaultTheme,
		width:       DefaultTerminalWidth,
	}
}

// Init starts listening for session changes.
func (m chatModel) Init() tea.Cmd {
	return m.waitForChange()
}

func (m chatModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.notify:
			return stateMsg(m.session.State())
		case <-m.ctx.Done():
			return nil
		}
	}
}

// Update handles messages and returns the updated model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg.String(), msg.Text)

	case stateMsg:
		m.state = chat.State(msg)
		return m, m.waitForChange()

	case sendDoneMsg:
		m.state = m.session.State()
		if msg.err != nil && !errors.Is(msg.err, chat.ErrEmptyMessage) {
			logger.Debug("chat turn failed", "outcome", msg.outcome, "error", msg.err)
		}
		if errors.Is(msg.err, chat.ErrNothingToRetry) {
			m.setNotice("Rien à réessayer", true)
		}
		return m, nil

	case noticeMsg:
		m.state = m.session.State()
		if msg.err != nil {
			m.setNotice(msg.err.Error(), true)
		} else {
			m.setNotice(msg.text, false)
		}
		return m, nil
	}

	return m, nil
}

// handleKey dispatches one key press. key is the keystroke name as
// reported by bubbletea ("enter", "ctrl+g", "a") and text the printable
// text it produced, if any.
func (m chatModel) handleKey(key, text string) (tea.Model, tea.Cmd) {
	if key == "ctrl+c" {
		m.session.Stop()
		m.quitting = true
		return m, tea.Quit
	}

	if m.picking {
		return m.handlePickerKey(key)
	}

	switch key {
	case "esc":
		switch m.state.Phase {
		case chat.PhaseSending, chat.PhaseStreaming:
			m.session.Stop()
			m.setNotice("Réponse interrompue", false)
		case chat.PhaseErrored, chat.PhaseSettled:
			m.session.Acknowledge()
		}
		m.state = m.session.State()
		return m, nil

	case "ctrl+r":
		if !m.state.CanRetry {
			return m, nil
		}
		m.notice = ""
		return m, m.retry()

	case "ctrl+g":
		m.session.UpdateOptions((*rag.Options).ToggleRAG)
		m.state = m.session.State()
		return m, nil

	case "ctrl+t":
		m.session.UpdateOptions((*rag.Options).ToggleStrictMode)
		m.state = m.session.State()
		return m, nil

	case "ctrl+s":
		m.picking = true
		return m, nil

	case "ctrl+n":
		m.session.Stop()
		m.session.Acknowledge()
		m.input = nil
		m.nextSuggest = 0
		return m, m.newConversation()

	case "tab":
		if len(m.suggestions) == 0 {
			return m, nil
		}
		s := m.suggestions[m.nextSuggest%len(m.suggestions)]
		m.nextSuggest++
		m.input = []rune(s.Prompt)
		return m, nil

	case "enter":
		text := strings.TrimSpace(string(m.input))
		if text == "" {
			return m, nil
		}
		m.input = nil
		m.notice = ""
		if m.state.Phase == chat.PhaseSettled || m.state.Phase == chat.PhaseErrored {
			m.session.Acknowledge()
		}
		return m, m.send(text)

	case "backspace":
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
		return m, nil

	case "ctrl+u":
		m.input = nil
		return m, nil

	case "space":
		m.input = append(m.input, ' ')
		return m, nil
	}

	if text != "" && !strings.HasPrefix(key, "ctrl+") && !strings.HasPrefix(key, "alt+") {
		m.input = append(m.input, []rune(text)...)
	}
	return m, nil
}

// handlePickerKey handles keys while the source picker is open.
func (m chatModel) handlePickerKey(key string) (tea.Model, tea.Cmd) {
	sources := models.AllSources()
	switch key {
	case "esc", "enter", "ctrl+s", "q":
		m.picking = false
	case "a":
		m.session.UpdateOptions((*rag.Options).SelectAll)
	case "x":
		m.session.UpdateOptions((*rag.Options).Clear)
	default:
		if len(key) == 1 && key[0] >= '1' && int(key[0]-'1') < len(sources) {
			t := sources[key[0]-'1']
			m.session.UpdateOptions(func(o *rag.Options) { o.ToggleSource(t) })
		}
	}
	m.state = m.session.State()
	return m, nil
}

func (m *chatModel) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeErr = isErr
}

func (m chatModel) send(text string) tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		outcome, err := s.Send(ctx, text)
		return sendDoneMsg{outcome: outcome, err: err}
	}
}

func (m chatModel) retry() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		outcome, err := s.Retry(ctx)
		return sendDoneMsg{outcome: outcome, err: err}
	}
}

func (m chatModel) newConversation() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		conv, err := s.Store().CreateNewConversation(ctx, models.DefaultConversationTitle)
		if err != nil {
			return noticeMsg{err: err}
		}
		return noticeMsg{text: "Nouvelle conversation " + conv.ID}
	}
}

// busy reports whether a turn is in flight.
func (m chatModel) busy() bool {
	return m.state.Phase == chat.PhaseSending || m.state.Phase == chat.PhaseStreaming
}

// View renders the chat screen.
func (m chatModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m chatModel) renderContent() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")

	body := m.body()
	if m.height > 0 {
		// Keep the latest lines on screen; header and footer take six.
		lines := strings.Split(body, "\n")
		if room := m.height - 6; room > 0 && len(lines) > room {
			lines = lines[len(lines)-room:]
		}
		body = strings.Join(lines, "\n")
	}
	b.WriteString(body)

	if m.picking {
		b.WriteString("\n")
		b.WriteString(m.picker())
	}
	if m.notice != "" {
		style := m.theme.hintStyle()
		if m.noticeErr {
			style = m.theme.errorStyle()
		}
		b.WriteString("\n" + style.Render(m.notice))
	}

	b.WriteString("\n")
	b.WriteString(m.theme.roleStyle(models.RoleUser).Render("> "))
	b.WriteString(string(m.input))
	b.WriteString("█\n")
	b.WriteString(m.theme.hintStyle().Render(m.help()))
	return b.String()
}

func (m chatModel) header() string {
	title := models.DefaultConversationTitle
	if m.state.Active != nil {
		title = m.state.Active.Title
	}
	opts := m.state.Options
	badge := m.theme.modeBadge(opts.Mode())
	sources := "toutes sources"
	if n := len(opts.Sources()); n != len(models.AllSources()) {
		sources = fmt.Sprintf("%d sources", n)
	}
	status := ""
	if m.busy() {
		status = " " + m.theme.statusStyle().Render("…")
	}
	return fmt.Sprintf("%s %s %s%s",
		lipgloss.NewStyle().Bold(true).Render(title), badge, m.theme.hintStyle().Render(sources), status)
}

func (m chatModel) body() string {
	var b strings.Builder
	width := max(m.width-2, MinTerminalWidth)
	wrap := lipgloss.NewStyle().Width(width)

	if len(m.state.Messages) == 0 && m.state.Streaming == nil {
		b.WriteString(m.theme.hintStyle().Render("Posez une question, ou Tab pour une suggestion :"))
		b.WriteString("\n")
		for _, s := range m.suggestions {
			fmt.Fprintf(&b, "  %s %s\n", s.Icon, s.Title)
		}
	}

	for _, msg := range m.state.Messages {
		b.WriteString(m.theme.roleStyle(msg.Role).Render(roleName(msg.Role)))
		if msg.Pending {
			b.WriteString(m.theme.hintStyle().Render(" (envoi…)"))
		}
		b.WriteString("\n")
		b.WriteString(wrap.Render(msg.Content))
		b.WriteString("\n")
		writeCitations(&b, msg.Citations)
		writeArtifacts(&b, msg.Artifacts)
		b.WriteString("\n")
	}

	if in := m.state.Streaming; in != nil {
		b.WriteString(m.theme.roleStyle(models.RoleAssistant).Render(roleName(models.RoleAssistant)))
		b.WriteString("\n")
		b.WriteString(wrap.Render(in.Content + "▍"))
		b.WriteString("\n")
		if n := len(in.Citations); n > 0 {
			b.WriteString(m.theme.hintStyle().Render(fmt.Sprintf("%d sources", n)))
			b.WriteString("\n")
		}
	} else if m.state.Phase == chat.PhaseSending {
		b.WriteString(m.theme.statusStyle().Render("Assistant réfléchit…"))
		b.WriteString("\n")
	}

	if m.state.Phase == chat.PhaseErrored && m.state.Err != nil {
		b.WriteString(m.theme.errorStyle().Render("✗ " + m.state.Err.Error()))
		if m.state.CanRetry {
			b.WriteString(m.theme.hintStyle().Render("  Ctrl+R pour réessayer"))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m chatModel) picker() string {
	var b strings.Builder
	b.WriteString(m.theme.statusStyle().Render("Sources (1-7 basculer, a toutes, x aucune, Entrée fermer)"))
	b.WriteString("\n")
	for i, t := range models.AllSources() {
		mark := "[ ]"
		if m.state.Options.Selected(t) {
			mark = "[x]"
		}
		fmt.Fprintf(&b, "  %d %s %s\n", i+1, mark, t)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m chatModel) help() string {
	if m.busy() {
		return "Esc arrêter • Ctrl+C quitter"
	}
	return "Entrée envoyer • Ctrl+G RAG • Ctrl+T strict • Ctrl+S sources • Ctrl+N nouvelle • Ctrl+C quitter"
}

func roleName(r models.Role) string {
	if r == models.RoleUser {
		return "Vous"
	}
	return "Assistant"
}
