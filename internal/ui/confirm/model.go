// Package confirm renders the yes/no prompt that gates irreversible
// mailbox actions.
package confirm

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/dtran/mailflow/internal/selection"
)

// ResultMsg carries the user's decision back to the app. Confirmed batches
// have been marked approved and are ready for Execute.
type ResultMsg struct {
	Batch     *selection.Batch
	Confirmed bool
}

// Model wraps a huh confirm form for a staged batch.
type Model struct {
	form  *huh.Form
	batch *selection.Batch
	// confirm is heap-allocated because huh binds to it by pointer while
	// bubbletea copies the model by value.
	confirm *bool
	width   int
}

// New builds the prompt for a staged batch.
func New(batch *selection.Batch, width int) Model {
	m := Model{batch: batch, width: width, confirm: new(bool)}

	title := ""
	description := ""
	switch batch.Action {
	case selection.ActionPermanentDelete:
		title = fmt.Sprintf("Permanently delete %d message(s)?", len(batch.IDs))
		description = "They will be gone for good. This cannot be undone."
	case selection.ActionEmptyTrash:
		title = "Empty trash?"
		description = "All trashed messages will be gone for good. This cannot be undone."
	default:
		title = fmt.Sprintf("%s %d message(s)?", batch.Action, len(batch.IDs))
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes, delete").
				Negative("Cancel").
				Value(m.confirm),
		),
	).WithWidth(width)

	return m
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update drives the form and emits ResultMsg once it completes.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		batch := m.batch
		confirmed := *m.confirm
		if confirmed {
			batch.Confirm()
		}
		return m, func() tea.Msg {
			return ResultMsg{Batch: batch, Confirmed: confirmed}
		}
	}
	if m.form.State == huh.StateAborted {
		batch := m.batch
		return m, func() tea.Msg {
			return ResultMsg{Batch: batch, Confirmed: false}
		}
	}

	return m, cmd
}

// View renders the prompt.
func (m Model) View() string {
	return m.form.View()
}
