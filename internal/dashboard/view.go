package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/leowmjw/xlaude/internal/claude"
	"github.com/leowmjw/xlaude/internal/session"
	"github.com/leowmjw/xlaude/internal/style"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	cursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#005fd7", Dark: "#5fafff"})
	previewBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8"))
)

func (m *Model) setPreview(lines []string) {
	if len(lines) == 0 {
		m.preview.SetContent(style.Dim.Render("(no output)"))
		return
	}
	m.preview.SetContent(strings.Join(lines, "\n"))
	m.preview.GotoBottom()
}

// View renders the dashboard.
func (m *Model) View() string {
	if m.mode == Attached {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("xlaude"))
	b.WriteString("\n")

	if len(m.workspace) == 0 {
		b.WriteString(style.Dim.Render("No workspaces. Create one with 'xlaude create'."))
		b.WriteString("\n")
	}

	keyWidth := 0
	for _, ws := range m.workspace {
		keyWidth = max(keyWidth, lipgloss.Width(ws.Key()))
	}
	for i, ws := range m.workspace {
		marker := "  "
		name := fmt.Sprintf("%-*s", keyWidth, ws.Key())
		if i == m.cursor {
			marker = cursorStyle.Render("> ")
			name = cursorStyle.Render(name)
		}
		state, ok := m.states[ws.Key()]
		if !ok {
			state = session.Unknown
		}
		line := fmt.Sprintf("%s%s  %s  %s", marker, name, stateBadge(state), style.Dim.Render(ws.Branch))
		if recent := ws.RecentSessions(1); len(recent) > 0 && recent[0].Preview != "" {
			line += "  " + style.Dim.Render(claude.Truncate(recent[0].Preview, 40))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.showPreview {
		b.WriteString("\n")
		b.WriteString(previewBorder.Width(max(m.width-2, 20)).Render(m.preview.View()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.status != "" {
		if m.statusErr {
			b.WriteString(style.Error.Render(style.ErrorPrefix + " " + m.status))
		} else {
			b.WriteString(style.Success.Render(style.SuccessPrefix + " " + m.status))
		}
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func stateBadge(s session.State) string {
	label := fmt.Sprintf("%-10s", s.Label())
	switch s {
	case session.Running:
		return style.Success.Render(label)
	case session.Starting, session.Stopping:
		return style.Warning.Render(label)
	case session.Unknown:
		return style.Error.Render(label)
	default:
		return style.Dim.Render(label)
	}
}
