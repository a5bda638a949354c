package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/propchat/internal/models"
)

// Theme holds the color scheme for terminal output.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	User       lipgloss.Color
	Assistant  lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	User:       lipgloss.Color("#D7AF5F"), // sand
	Assistant:  lipgloss.Color("#AF87FF"), // lavender
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) roleStyle(r models.Role) lipgloss.Style {
	c := t.Assistant
	if r == models.RoleUser {
		c = t.User
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true)
}

// modeBadge renders the chat mode as a colored tag.
func (t Theme) modeBadge(mode models.ChatMode) string {
	style := lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#000000"))
	switch mode {
	case models.ModeRAGOnly:
		style = style.Background(t.Error)
	case models.ModeRAGEnhanced:
		style = style.Background(t.Success)
	default:
		style = style.Background(t.Hint)
	}
	return style.Render(string(mode))
}
