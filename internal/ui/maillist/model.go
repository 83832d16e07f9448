package maillist

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dtran/mailflow/internal/keys"
	"github.com/dtran/mailflow/internal/model"
	"github.com/dtran/mailflow/internal/selection"
	"github.com/dtran/mailflow/internal/theme"
)

// OpenMessageMsg is sent when the user opens a message.
type OpenMessageMsg struct {
	ID string
}

// ToggleStarMsg is sent when the user stars or unstars a message.
type ToggleStarMsg struct {
	ID      string
	Starred bool
}

// BatchRequestedMsg is sent when the user triggers an action, either on the
// focused message or on the whole selection.
type BatchRequestedMsg struct {
	Action selection.Action
	// FocusedID is set when selection mode is off and the action applies
	// to the focused message only.
	FocusedID string
}

// Model is the message list view for the active folder.
type Model struct {
	list      list.Model
	keys      *keys.KeyMap
	selection *selection.Coordinator
	folder    model.Folder
	// selActive is shared with the item delegate, which only holds a
	// reference, so it survives the value copies bubbletea makes.
	selActive *bool
	width     int
	height    int
}

// New creates a new message list model.
func New(sel *selection.Coordinator, k *keys.KeyMap, width, height int) Model {
	m := Model{
		keys:      k,
		selection: sel,
		folder:    model.FolderInbox,
		selActive: new(bool),
		width:     width,
		height:    height,
	}

	delegate := ItemDelegate{
		SelectionActive: m.selActive,
		Selected:        sel.Selected,
	}
	l := list.New([]list.Item{}, delegate, width, height-2)
	l.Title = m.folder.Title()
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	m.list = l

	return m
}

// SetFolder switches the list to a new folder and clears its items until
// the next snapshot arrives.
func (m *Model) SetFolder(folder model.Folder) {
	m.folder = folder
	m.list.Title = folder.Title()
	m.list.SetItems(nil)
	*m.selActive = false
}

// Folder returns the folder the list is showing.
func (m Model) Folder() model.Folder {
	return m.folder
}

// SetMessages replaces the list contents, keeping the cursor in range.
func (m *Model) SetMessages(msgs []model.Message) tea.Cmd {
	items := make([]list.Item, len(msgs))
	for i, msg := range msgs {
		items[i] = MailItem{Message: msg}
	}
	return m.list.SetItems(items)
}

// Focused returns the focused message, if any.
func (m Model) Focused() (model.Message, bool) {
	item, ok := m.list.SelectedItem().(MailItem)
	if !ok {
		return model.Message{}, false
	}
	return item.Message, true
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		return m.handleKeys(keyMsg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	focused, hasFocus := m.Focused()

	switch {
	case key.Matches(msg, m.keys.Select):
		if !hasFocus {
			return m, nil
		}
		if m.selection.Active() {
			m.selection.Toggle(focused.ID)
			*m.selActive = m.selection.Active()
			return m, nil
		}
		return m, func() tea.Msg {
			return OpenMessageMsg{ID: focused.ID}
		}

	case key.Matches(msg, m.keys.MarkMode):
		if !hasFocus {
			return m, nil
		}
		if m.selection.Active() {
			m.selection.Exit()
		} else {
			m.selection.EnterWith(focused.ID)
		}
		*m.selActive = m.selection.Active()
		return m, nil

	case key.Matches(msg, m.keys.Mark):
		if !hasFocus {
			return m, nil
		}
		if !m.selection.Active() {
			m.selection.Enter()
		}
		m.selection.Toggle(focused.ID)
		*m.selActive = m.selection.Active()
		return m, nil

	case key.Matches(msg, m.keys.Back):
		if m.selection.Active() {
			m.selection.Exit()
			*m.selActive = false
			return m, nil
		}

	case key.Matches(msg, m.keys.Star):
		if !hasFocus || m.selection.Active() {
			return m, nil
		}
		return m, func() tea.Msg {
			return ToggleStarMsg{ID: focused.ID, Starred: !focused.IsStarred}
		}

	case key.Matches(msg, m.keys.Delete):
		return m.requestBatch(selection.ActionDelete, focused, hasFocus)

	case key.Matches(msg, m.keys.Restore):
		if m.folder != model.FolderTrash {
			return m, nil
		}
		return m.requestBatch(selection.ActionRestore, focused, hasFocus)

	case key.Matches(msg, m.keys.Purge):
		if m.folder != model.FolderTrash {
			return m, nil
		}
		return m.requestBatch(selection.ActionPermanentDelete, focused, hasFocus)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) requestBatch(action selection.Action, focused model.Message, hasFocus bool) (Model, tea.Cmd) {
	if m.selection.Active() {
		return m, func() tea.Msg {
			return BatchRequestedMsg{Action: action}
		}
	}
	if !hasFocus {
		return m, nil
	}
	return m, func() tea.Msg {
		return BatchRequestedMsg{Action: action, FocusedID: focused.ID}
	}
}

// View renders the message list.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	return style.Render("No messages in " + m.folder.Title() + ".")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
