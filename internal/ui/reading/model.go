// Package reading renders a single opened message.
package reading

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dtran/mailflow/internal/model"
	"github.com/dtran/mailflow/internal/theme"
)

// BackMsg signals the reading pane should close.
type BackMsg struct{}

// Model is the message reading pane.
type Model struct {
	viewport viewport.Model
	msg      model.Message
	width    int
	height   int
}

// New creates a reading pane model.
func New(width, height int) Model {
	vp := viewport.New(width-4, height-6)
	return Model{
		viewport: vp,
		width:    width,
		height:   height,
	}
}

// SetMessage loads a message into the pane and scrolls to the top.
func (m *Model) SetMessage(msg model.Message) {
	m.msg = msg
	m.viewport.SetContent(msg.Preview)
	m.viewport.GotoTop()
}

// Update handles messages for the reading pane.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if keyMsg.Type == tea.KeyEsc {
			return m, func() tea.Msg { return BackMsg{} }
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the message.
func (m Model) View() string {
	star := ""
	if m.msg.IsStarred {
		star = " " + theme.StarStyle.Render("★")
	}

	header := []string{
		theme.UnreadStyle.Render(m.msg.Subject) + star,
		fmt.Sprintf("From: %s <%s>", m.msg.Sender, m.msg.SenderEmail),
		"Date: " + m.msg.ReceivedAt.Format("Mon, 2 Jan 2006 15:04"),
	}

	if len(m.msg.Attachments) > 0 {
		var names []string
		for _, a := range m.msg.Attachments {
			names = append(names, fmt.Sprintf("%s (%s)", a.Filename, formatSize(a.Size)))
		}
		header = append(header, "Attachments: "+strings.Join(names, ", "))
	}

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		strings.Join(header, "\n"),
		"",
		m.viewport.View(),
	)

	return theme.ReadingPaneStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the pane dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width - 4
	m.viewport.Height = height - 6
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
