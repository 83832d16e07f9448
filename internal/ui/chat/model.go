// Package chat renders the conversation list and the open conversation,
// including voice recording state and audio message playback.
package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dtran/mailflow/internal/conversation"
	"github.com/dtran/mailflow/internal/keys"
	"github.com/dtran/mailflow/internal/model"
	"github.com/dtran/mailflow/internal/playback"
	"github.com/dtran/mailflow/internal/theme"
	"github.com/dtran/mailflow/internal/voice"
)

// OpenConversationMsg is sent when the user opens a conversation.
type OpenConversationMsg struct {
	Peer string
}

// CloseConversationMsg is sent when the user leaves the open conversation.
type CloseConversationMsg struct{}

// SendTextMsg is sent when the user submits the input line.
type SendTextMsg struct {
	Peer string
	Text string
}

// RetrySendMsg is sent when the user retries the most recent failed send.
type RetrySendMsg struct {
	Peer   string
	TempID string
}

// ToggleRecordMsg starts a recording, or finishes the one in progress.
type ToggleRecordMsg struct{}

// PauseRecordMsg pauses or resumes the recording in progress.
type PauseRecordMsg struct{}

// CancelRecordMsg discards the recording in progress.
type CancelRecordMsg struct{}

// TogglePlaybackMsg plays or pauses an audio message.
type TogglePlaybackMsg struct {
	ID   string
	Clip model.AudioClip
}

type mode int

const (
	modeList mode = iota
	modeConversation
)

// Model is the chat panel: a conversation list that opens into a single
// conversation with an input line.
type Model struct {
	keys     *keys.KeyMap
	conv     *conversation.Store
	playback *playback.Coordinator

	mode     mode
	cursor   int
	openPeer string
	input    textinput.Model

	recState   voice.SessionState
	recElapsed int

	width  int
	height int
}

// New creates the chat panel model.
func New(conv *conversation.Store, pb *playback.Coordinator, k *keys.KeyMap, width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "type a message..."
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Width = width - 4

	return Model{
		keys:     k,
		conv:     conv,
		playback: pb,
		input:    ti,
		recState: voice.StateIdle,
		width:    width,
		height:   height,
	}
}

// OpenPeer returns the peer of the open conversation, or "".
func (m Model) OpenPeer() string {
	return m.openPeer
}

// SetRecording mirrors the active voice session state into the view.
func (m *Model) SetRecording(state voice.SessionState, elapsed int) {
	m.recState = state
	m.recElapsed = elapsed
}

// Update handles messages for the chat panel.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.mode == modeList {
		return m.updateList(keyMsg)
	}
	return m.updateConversation(keyMsg)
}

func (m Model) updateList(msg tea.KeyMsg) (Model, tea.Cmd) {
	summaries := m.conv.Summaries()

	switch msg.String() {
	case "j", "down":
		if m.cursor < len(summaries)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "enter":
		if m.cursor < len(summaries) {
			peer := summaries[m.cursor].Peer
			m.mode = modeConversation
			m.openPeer = peer
			m.input.Reset()
			cmd := m.input.Focus()
			return m, tea.Batch(cmd, func() tea.Msg {
				return OpenConversationMsg{Peer: peer}
			})
		}
	}
	return m, nil
}

func (m Model) updateConversation(msg tea.KeyMsg) (Model, tea.Cmd) {
	recording := m.recState == voice.StateRecording || m.recState == voice.StatePaused

	switch msg.Type {
	case tea.KeyEsc:
		if recording {
			return m, func() tea.Msg { return CancelRecordMsg{} }
		}
		m.mode = modeList
		m.openPeer = ""
		m.input.Blur()
		return m, func() tea.Msg { return CloseConversationMsg{} }

	case tea.KeyEnter:
		if recording {
			return m, func() tea.Msg { return ToggleRecordMsg{} }
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		peer := m.openPeer
		m.input.Reset()
		return m, func() tea.Msg {
			return SendTextMsg{Peer: peer, Text: text}
		}

	case tea.KeyCtrlR:
		return m, func() tea.Msg { return ToggleRecordMsg{} }

	case tea.KeyCtrlP:
		if recording {
			return m, func() tea.Msg { return PauseRecordMsg{} }
		}

	case tea.KeyCtrlO:
		if id, clip, ok := m.latestAudio(); ok {
			return m, func() tea.Msg {
				return TogglePlaybackMsg{ID: id, Clip: clip}
			}
		}
		return m, nil

	case tea.KeyCtrlT:
		if peer, tempID, ok := m.latestFailed(); ok {
			return m, func() tea.Msg {
				return RetrySendMsg{Peer: peer, TempID: tempID}
			}
		}
		return m, nil
	}

	if recording {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// latestAudio finds the newest audio message in the open conversation.
func (m Model) latestAudio() (id string, clip model.AudioClip, ok bool) {
	history := m.conv.History(m.openPeer)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Kind == model.KindAudio && history[i].Audio != nil {
			return history[i].ID, *history[i].Audio, true
		}
	}
	return "", model.AudioClip{}, false
}

// latestFailed finds the newest failed send in the open conversation.
func (m Model) latestFailed() (peer, tempID string, ok bool) {
	history := m.conv.History(m.openPeer)
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Delivery == model.DeliveryFailed && msg.HasTempID() {
			return m.openPeer, msg.ID, true
		}
	}
	return "", "", false
}

// View renders the chat panel.
func (m Model) View() string {
	if m.mode == modeList {
		return m.viewList()
	}
	return m.viewConversation()
}

func (m Model) viewList() string {
	summaries := m.conv.Summaries()
	if len(summaries) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No conversations yet.")
	}

	var b strings.Builder
	for i, s := range summaries {
		dot := "  "
		if s.IsOnline {
			dot = theme.OnlineStyle.Render("● ")
		}

		unread := ""
		if s.UnreadCount > 0 {
			unread = theme.UnreadStyle.Render(fmt.Sprintf(" (%d)", s.UnreadCount))
		}

		preview := s.LastMessage
		if len(preview) > 40 {
			preview = preview[:40] + "…"
		}

		line := fmt.Sprintf("%s%-24.24s%s  %s", dot, s.Peer, unread, preview)
		if i == m.cursor {
			line = theme.SelectedItemStyle.Render(line)
		} else {
			line = theme.ListItemStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) viewConversation() string {
	history := m.conv.History(m.openPeer)

	header := m.openPeer
	if m.conv.IsOnline(m.openPeer) {
		header += " " + theme.OnlineStyle.Render("●")
	}

	var b strings.Builder
	b.WriteString(theme.HeaderStyle.Render(header))
	b.WriteString("\n")

	// Show only as many messages as fit above the input line.
	visible := m.height - 4
	if visible < 1 {
		visible = 1
	}
	start := 0
	if len(history) > visible {
		start = len(history) - visible
	}

	for _, msg := range history[start:] {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderInputLine())
	return b.String()
}

func (m Model) renderMessage(msg model.ChatMessage) string {
	body := msg.Body
	if msg.Kind == model.KindAudio {
		body = m.renderAudioBody(msg)
	}

	if !msg.SentByMe {
		return theme.BubbleTheirsStyle.Render(body)
	}

	marker := ""
	switch msg.Delivery {
	case model.DeliveryPending:
		marker = " " + theme.DeliveryStyle("pending").Render("…")
	case model.DeliveryFailed:
		marker = " " + theme.DeliveryStyle("failed").Render("! failed (ctrl+t to retry)")
	}

	line := theme.BubbleMineStyle.Render(body) + marker
	return lipgloss.NewStyle().
		Width(m.width).
		Align(lipgloss.Right).
		Render(line)
}

func (m Model) renderAudioBody(msg model.ChatMessage) string {
	if msg.Audio == nil {
		return "voice message"
	}

	activeID, paused := m.playback.Active()

	icon := "▶"
	bar := ""
	if activeID == msg.ID {
		if !paused {
			icon = "❚❚"
		}
		bar = " " + renderProgress(m.playback.Progress(msg.ID), 10)
	}

	return fmt.Sprintf("%s voice %s%s", icon, formatDuration(msg.Audio.DurationSec), bar)
}

func (m Model) renderInputLine() string {
	switch m.recState {
	case voice.StateRecording:
		return theme.RecordingStyle.Render(
			fmt.Sprintf("● REC %s", formatDuration(m.recElapsed)),
		) + theme.HelpStyle.Render("  enter send · ctrl+p pause · esc cancel")
	case voice.StatePaused:
		return theme.RecordingStyle.Render(
			fmt.Sprintf("‖ PAUSED %s", formatDuration(m.recElapsed)),
		) + theme.HelpStyle.Render("  ctrl+p resume · enter send · esc cancel")
	case voice.StateUploading:
		return theme.HelpStyle.Render("uploading voice message...")
	}
	return m.input.View()
}

func renderProgress(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat("-", width-filled) + "]"
}

func formatDuration(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// SetSize updates the panel dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 4
}
