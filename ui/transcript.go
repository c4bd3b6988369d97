package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
)

const gutter = 2

func (m Model) speakerStyle(name string) func(...string) string {
	i, ok := m.colors[strings.ToLower(name)]
	if !ok && name != "" {
		i = len(m.colors) + int(name[0]) // stable for names outside the roster
	}
	return lipgloss.NewStyle().Bold(true).Foreground(speakerColors[i%len(speakerColors)]).Render
}

// transcriptView renders every spoken utterance, grouping consecutive turns
// by the same speaker under one heading.
func (m Model) transcriptView(width int) string {
	if len(m.entries) == 0 {
		return roleStyle("  Nobody has spoken yet.")
	}

	var b strings.Builder
	current := m.state.CurrentItemID
	prev := ""
	for _, u := range m.entries {
		if u.SpeakerID != prev {
			if prev != "" {
				b.WriteString("\n")
			}
			heading := m.speakerStyle(u.SpeakerName)(u.SpeakerName)
			if m.cfg.ShowRoles && u.SpeakerRole != "" {
				heading += " " + roleStyle(u.SpeakerRole)
			}
			b.WriteString(heading + "\n")
			prev = u.SpeakerID
		}

		body := wordwrap.String(u.Content, width-gutter-1)
		if u.ID == current {
			body = indent.String(body, 1)
			lines := strings.Split(body, "\n")
			for i, l := range lines {
				lines[i] = activeBar() + l
			}
			b.WriteString(strings.Join(lines, "\n") + "\n")
			continue
		}
		b.WriteString(indent.String(body, gutter) + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func activeBar() string {
	return spinnerStyle.Render("│")
}

// plainTranscript is the transcript without styling, for the clipboard.
func (m Model) plainTranscript() string {
	var b strings.Builder
	if m.cfg.Title != "" {
		fmt.Fprintf(&b, "%s\n\n", m.cfg.Title)
	}
	for _, u := range m.entries {
		if u.SpeakerRole != "" {
			fmt.Fprintf(&b, "%s (%s): %s\n", u.SpeakerName, u.SpeakerRole, u.Content)
		} else {
			fmt.Fprintf(&b, "%s: %s\n", u.SpeakerName, u.Content)
		}
	}
	return b.String()
}
