package cli

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/propchat/internal/chat"
	"github.com/raphaelgruber/propchat/internal/client"
	"github.com/raphaelgruber/propchat/internal/devserver"
	"github.com/raphaelgruber/propchat/internal/models"
	"github.com/raphaelgruber/propchat/internal/rag"
)

func newTestChatModel(t *testing.T) chatModel {
	t.Helper()
	srv := httptest.NewServer(devserver.New(devserver.WithChunkDelay(0)).Handler())
	t.Cleanup(srv.Close)

	c := client.New(client.Config{
		BaseURL:        srv.URL + devserver.APIPrefix,
		OrganizationID: testOrg,
		Timeout:        5 * time.Second,
	})
	s := chat.NewSession(chat.SessionConfig{Backend: c, Options: rag.DefaultOptions()})
	t.Cleanup(s.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return newChatModel(ctx, s, models.DefaultSuggestions()[:2])
}

// press feeds one key to the model and returns the updated model.
func press(t *testing.T, m chatModel, key, text string) (chatModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.handleKey(key, text)
	cm, ok := next.(chatModel)
	require.True(t, ok)
	return cm, cmd
}

func typeText(t *testing.T, m chatModel, s string) chatModel {
	t.Helper()
	for _, r := range s {
		if r == ' ' {
			m, _ = press(t, m, "space", " ")
			continue
		}
		m, _ = press(t, m, string(r), string(r))
	}
	return m
}

// settle runs cmd and feeds its message back, as the program would.
func settle(t *testing.T, m chatModel, cmd tea.Cmd) chatModel {
	t.Helper()
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	cm, ok := next.(chatModel)
	require.True(t, ok)
	return cm
}

func TestChatModelEditing(t *testing.T) {
	m := newTestChatModel(t)

	m = typeText(t, m, "Bonjour à")
	assert.Equal(t, "Bonjour à", string(m.input))

	m, _ = press(t, m, "backspace", "")
	m, _ = press(t, m, "backspace", "")
	assert.Equal(t, "Bonjour", string(m.input))

	m, _ = press(t, m, "ctrl+x", "x")
	assert.Equal(t, "Bonjour", string(m.input), "control keys are not inserted")

	m, _ = press(t, m, "ctrl+u", "")
	assert.Empty(t, m.input)

	m, cmd := press(t, m, "enter", "")
	assert.Nil(t, cmd, "empty input is not sent")
}

func TestChatModelSuggestions(t *testing.T) {
	m := newTestChatModel(t)
	suggestions := models.DefaultSuggestions()

	m, _ = press(t, m, "tab", "")
	assert.Equal(t, suggestions[0].Prompt, string(m.input))
	m, _ = press(t, m, "tab", "")
	assert.Equal(t, suggestions[1].Prompt, string(m.input))
	m, _ = press(t, m, "tab", "")
	assert.Equal(t, suggestions[0].Prompt, string(m.input), "suggestions cycle")

	assert.Contains(t, m.renderContent(), suggestions[0].Title)
}

func TestChatModelToggles(t *testing.T) {
	m := newTestChatModel(t)
	assert.Equal(t, models.ModeNormal, m.state.Options.Mode())

	m, _ = press(t, m, "ctrl+g", "")
	assert.Equal(t, models.ModeRAGEnhanced, m.state.Options.Mode())

	m, _ = press(t, m, "ctrl+t", "")
	assert.Equal(t, models.ModeRAGOnly, m.state.Options.Mode())
	assert.Contains(t, m.header(), string(models.ModeRAGOnly))

	m, _ = press(t, m, "ctrl+g", "")
	assert.Equal(t, models.ModeNormal, m.state.Options.Mode())
	assert.True(t, m.state.Options.Strict, "strict survives disabling retrieval")
}

func TestChatModelSourcePicker(t *testing.T) {
	m := newTestChatModel(t)
	all := models.AllSources()

	m, _ = press(t, m, "ctrl+s", "")
	require.True(t, m.picking)
	assert.Contains(t, m.renderContent(), "[x] "+string(all[1]))

	m, _ = press(t, m, "x", "x")
	assert.Empty(t, m.state.Options.Sources())

	m, _ = press(t, m, "2", "2")
	m, _ = press(t, m, "4", "4")
	assert.Equal(t, []models.SourceType{all[1], all[3]}, m.state.Options.Sources())

	m, _ = press(t, m, "2", "2")
	assert.Equal(t, []models.SourceType{all[3]}, m.state.Options.Sources())

	m, _ = press(t, m, "9", "9")
	assert.Equal(t, []models.SourceType{all[3]}, m.state.Options.Sources(), "out of range is ignored")

	m, _ = press(t, m, "a", "a")
	assert.Equal(t, all, m.state.Options.Sources())

	m, _ = press(t, m, "esc", "")
	assert.False(t, m.picking)
	assert.Empty(t, m.input, "picker keys are not typed")
}

func TestChatModelSend(t *testing.T) {
	m := newTestChatModel(t)

	m = typeText(t, m, "Bonjour")
	m, cmd := press(t, m, "enter", "")
	assert.Empty(t, m.input)

	m = settle(t, m, cmd)
	require.Len(t, m.state.Messages, 2)
	assert.Equal(t, models.RoleUser, m.state.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, m.state.Messages[1].Role)
	assert.Equal(t, chat.PhaseSettled, m.state.Phase)
	require.NotNil(t, m.state.Active)
	assert.Equal(t, "Bonjour", m.state.Active.Title)

	view := m.renderContent()
	assert.Contains(t, view, "Bonjour ! Je peux vous aider")
	assert.Contains(t, view, "Vous")
}

func TestChatModelFailureAndRetry(t *testing.T) {
	m := newTestChatModel(t)

	m, cmd := press(t, m, "ctrl+r", "")
	assert.Nil(t, cmd, "nothing to retry yet")

	m = typeText(t, m, devserver.FailTrigger)
	m, cmd = press(t, m, "enter", "")
	m = settle(t, m, cmd)
	require.Equal(t, chat.PhaseErrored, m.state.Phase)
	require.True(t, m.state.CanRetry)
	assert.Contains(t, m.renderContent(), "Ctrl+R pour réessayer")

	m, cmd = press(t, m, "ctrl+r", "")
	m = settle(t, m, cmd)
	assert.Equal(t, chat.PhaseErrored, m.state.Phase, "the trigger fails again")
	users := 0
	for _, msg := range m.state.Messages {
		if msg.Role == models.RoleUser {
			users++
		}
	}
	assert.Equal(t, 1, users, "retry replaces the failed user message")

	m, _ = press(t, m, "esc", "")
	assert.Equal(t, chat.PhaseIdle, m.state.Phase)
	assert.NotContains(t, m.renderContent(), "Ctrl+R pour réessayer")
}

func TestChatModelNewConversation(t *testing.T) {
	m := newTestChatModel(t)
	m = typeText(t, m, "brouillon")

	m, cmd := press(t, m, "ctrl+n", "")
	assert.Empty(t, m.input)
	m = settle(t, m, cmd)
	require.NotNil(t, m.state.Active)
	assert.Equal(t, models.DefaultConversationTitle, m.state.Active.Title)
	assert.Contains(t, m.notice, "Nouvelle conversation")
	assert.Empty(t, m.state.Messages)
}

func TestChatModelStateMessages(t *testing.T) {
	m := newTestChatModel(t)

	m.session.UpdateOptions((*rag.Options).ToggleRAG)
	cmd := m.waitForChange()
	msg := cmd()
	st, ok := msg.(stateMsg)
	require.True(t, ok)
	assert.True(t, st.Options.Enabled)

	next, cmd := m.Update(msg)
	assert.NotNil(t, cmd, "keeps listening")
	assert.True(t, next.(chatModel).state.Options.Enabled)
}

func TestChatModelQuit(t *testing.T) {
	m := newTestChatModel(t)
	m, cmd := press(t, m, "ctrl+c", "")
	assert.True(t, m.quitting)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, m.renderContent())
}

func TestChatModelViewFitsHeight(t *testing.T) {
	m := newTestChatModel(t)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 12})
	m = next.(chatModel)

	for range 3 {
		m = typeText(t, m, "Bonjour")
		var cmd tea.Cmd
		m, cmd = press(t, m, "enter", "")
		m = settle(t, m, cmd)
	}
	lines := strings.Split(m.renderContent(), "\n")
	assert.LessOrEqual(t, len(lines), 12)
}
