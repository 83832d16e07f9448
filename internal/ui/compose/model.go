// Package compose renders the draft composition form.
package compose

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/dtran/mailflow/internal/model"
)

// DraftSubmittedMsg carries a finished draft back to the app for saving.
type DraftSubmittedMsg struct {
	Draft model.Draft
}

// CancelMsg signals the compose form was abandoned.
type CancelMsg struct{}

// Model wraps the huh form backing the compose view.
type Model struct {
	form *huh.Form
	// values are heap-allocated because huh binds to them by pointer
	// while bubbletea copies the model by value.
	to      *string
	subject *string
	body    *string
}

// New builds a compose form. recipients seeds recipient autocompletion from
// the local contact cache.
func New(recipients []string, width int) Model {
	m := Model{
		to:      new(string),
		subject: new(string),
		body:    new(string),
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("To").
				Placeholder("recipient@example.com").
				Suggestions(recipients).
				Value(m.to),
			huh.NewInput().
				Title("Subject").
				Value(m.subject),
			huh.NewText().
				Title("Body").
				Value(m.body),
		),
	).WithWidth(width)

	return m
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update drives the form and emits DraftSubmittedMsg once it completes.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		draft := model.Draft{
			To:      *m.to,
			Subject: *m.subject,
			Body:    *m.body,
		}
		return m, func() tea.Msg {
			return DraftSubmittedMsg{Draft: draft}
		}
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	return m.form.View()
}
