// Package models defines the chat data structures shared by the client,
// the session state machine and the exporters.
package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
)

// titleMaxRunes is the length of the title derived from a first message.
const titleMaxRunes = 50

// DefaultConversationTitle is used when a conversation is created without a title.
const DefaultConversationTitle = "Nouvelle conversation"

// DeriveTitle builds a conversation title from the first message text.
// Whitespace is collapsed and the result is cut at 50 runes with "..." appended.
func DeriveTitle(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if title == "" {
		return DefaultConversationTitle
	}
	return Truncate(title, titleMaxRunes)
}

// Truncate shortens s to at most n runes, adding "..." if it was cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimRightFunc(string(runes[:n]), unicode.IsSpace) + "..."
}

// Slugify turns a title into a filename-safe slug.
func Slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == ' ' || r == '_':
			b.WriteRune('-')
		}
	}
	return b.String()
}

// RecencyGroup is a display bucket of conversations.
type RecencyGroup struct {
	Label         string
	Conversations []Conversation
}

// RecencyLabel returns the display bucket for t relative to now:
// "Aujourd'hui", "Hier", "Il y a N jours" within a week, else the date.
func RecencyLabel(t, now time.Time) string {
	t = t.In(now.Location())
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	days := int(math.Round(today.Sub(day).Hours() / 24))
	switch {
	case days <= 0:
		return "Aujourd'hui"
	case days == 1:
		return "Hier"
	case days < 7:
		return fmt.Sprintf("Il y a %d jours", days)
	default:
		return day.Format("02/01/2006")
	}
}

// GroupByRecency groups conversations by RecencyLabel of UpdatedAt, most
// recent first. The input slice is not modified.
func GroupByRecency(convs []Conversation, now time.Time) []RecencyGroup {
	sorted := append([]Conversation(nil), convs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})

	var groups []RecencyGroup
	index := map[string]int{}
	for _, c := range sorted {
		label := RecencyLabel(c.UpdatedAt, now)
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, RecencyGroup{Label: label})
		}
		groups[i].Conversations = append(groups[i].Conversations, c)
	}
	return groups
}
