package maillist

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dtran/mailflow/internal/model"
	"github.com/dtran/mailflow/internal/theme"
)

// MailItem wraps a model.Message so it can be used in a bubbles/list.
type MailItem struct {
	Message model.Message
}

// FilterValue returns the string used for fuzzy filtering.
func (i MailItem) FilterValue() string { return i.Message.Subject }

// Title returns the message subject for the list.
func (i MailItem) Title() string { return i.Message.Subject }

// Description returns a short summary line for the list.
func (i MailItem) Description() string {
	return i.Message.Sender + " | " + relativeTime(i.Message.ReceivedAt)
}

// ItemDelegate implements list.ItemDelegate for rendering message rows.
type ItemDelegate struct {
	// SelectionActive and Selected are shared by reference with the
	// maillist Model so selection markers stay current.
	SelectionActive *bool
	Selected        func(id string) bool
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused for now).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single message row.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	mi, ok := item.(MailItem)
	if !ok {
		return
	}

	msg := mi.Message
	isSelected := index == m.Index()

	checkbox := ""
	if d.SelectionActive != nil && *d.SelectionActive {
		if d.Selected != nil && d.Selected(msg.ID) {
			checkbox = theme.CheckedStyle.Render("[x] ")
		} else {
			checkbox = "[ ] "
		}
	}

	readMark := " "
	if !msg.IsRead {
		readMark = theme.UnreadStyle.Render("●")
	}

	star := " "
	if msg.IsStarred {
		star = theme.StarStyle.Render("★")
	}

	attach := ""
	if len(msg.Attachments) > 0 {
		attach = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Render(fmt.Sprintf(" [%d]", len(msg.Attachments)))
	}

	sender := msg.Sender
	if sender == "" {
		sender = msg.SenderEmail
	}

	subject := msg.Subject
	if !msg.IsRead {
		subject = theme.UnreadStyle.Render(subject)
	}

	timeStr := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(msg.ReceivedAt))

	line := fmt.Sprintf(
		"%s%s %s %-20.20s %s%s  %s",
		checkbox, readMark, star, sender, subject, attach, timeStr,
	)

	if isSelected {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case d < 24*time.Hour:
		hrs := int(d.Hours())
		if hrs == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hrs)
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		weeks := int(d.Hours() / 24 / 7)
		if weeks == 1 {
			return "1w ago"
		}
		return fmt.Sprintf("%dw ago", weeks)
	}
}
