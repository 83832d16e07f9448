// Package settings is the in-app configuration form: server connection, poll
// intervals, recording limits, and notification sound. Saving tests the
// connection first.
package settings

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/dtran/mailflow/internal/api"
	"github.com/dtran/mailflow/internal/credential"
	"github.com/dtran/mailflow/internal/model"
	"github.com/dtran/mailflow/internal/theme"
)

// Mode represents the current state of the settings view.
type Mode int

const (
	ModeForm       Mode = iota // Editing the form
	ModeValidating             // Testing the connection
	ModeResult                 // Showing a failed validation
)

// DoneMsg signals the settings view should close without saving.
type DoneMsg struct{}

// SavedMsg signals the configuration was validated and written to disk.
type SavedMsg struct {
	Config *model.AppConfig
}

// validateResultMsg carries the outcome of the connection test.
type validateResultMsg struct {
	err error
}

// savedInternalMsg is sent after the config file is written.
type savedInternalMsg struct {
	cfg *model.AppConfig
	err error
}

// Model is the Bubble Tea model for the settings view.
type Model struct {
	mode Mode
	cfg  *model.AppConfig
	path string
	form *huh.Form

	// huh binds by pointer; the model is copied by value, so the bound
	// fields live on the heap.
	baseURL    *string
	token      *string
	mailboxSec *string
	chatListMS *string
	historyMS  *string
	maxSeconds *string
	sound      *bool

	spinner   spinner.Model
	validErr  error
	statusMsg string

	width, height int
}

// New creates a settings view pre-filled from cfg. path is where the config
// is written on save.
func New(cfg *model.AppConfig, path string, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		mode:       ModeForm,
		cfg:        cfg,
		path:       path,
		baseURL:    new(string),
		token:      new(string),
		mailboxSec: new(string),
		chatListMS: new(string),
		historyMS:  new(string),
		maxSeconds: new(string),
		sound:      new(bool),
		spinner:    sp,
		width:      width,
		height:     height,
	}
	*m.baseURL = cfg.Server.BaseURL
	*m.mailboxSec = strconv.Itoa(cfg.Poll.MailboxSec)
	*m.chatListMS = strconv.Itoa(cfg.Poll.ChatListMS)
	*m.historyMS = strconv.Itoa(cfg.Poll.HistoryMS)
	*m.maxSeconds = strconv.Itoa(cfg.Recording.MaxSeconds)
	*m.sound = cfg.Display.SoundEnabled

	m.form = m.buildForm()
	return m
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server URL").
				Description("Root URL of the mail/chat server").
				Placeholder("https://mail.example.com").
				Value(m.baseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Session Token").
				Description("Leave empty to keep the stored token").
				EchoMode(huh.EchoModePassword).
				Value(m.token),
			huh.NewInput().
				Title("Mailbox Poll (seconds)").
				Value(m.mailboxSec).
				Validate(validateInt("Mailbox poll")),
			huh.NewInput().
				Title("Chat List Poll (milliseconds)").
				Value(m.chatListMS).
				Validate(validateInt("Chat list poll")),
			huh.NewInput().
				Title("History Poll (milliseconds)").
				Value(m.historyMS).
				Validate(validateInt("History poll")),
			huh.NewInput().
				Title("Max Recording (seconds)").
				Value(m.maxSeconds).
				Validate(validateInt("Max recording")),
			huh.NewConfirm().
				Title("Notification Sound").
				Affirmative("On").
				Negative("Off").
				Value(m.sound),
		),
	).WithWidth(m.formWidth())
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Update handles messages and dispatches based on current mode.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case validateResultMsg:
		if msg.err != nil {
			m.validErr = msg.err
			m.mode = ModeResult
			return m, nil
		}
		return m, m.save()

	case savedInternalMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Error saving settings: %v", msg.err)
			m.mode = ModeForm
			m.form = m.buildForm()
			return m, m.form.Init()
		}
		return m, func() tea.Msg { return SavedMsg{Config: msg.cfg} }

	case spinner.TickMsg:
		if m.mode == ModeValidating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m.updateForm(msg)
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.mode {
	case ModeForm:
		return m.updateForm(msg)

	case ModeValidating:
		if msg.String() == "esc" {
			m.mode = ModeForm
			m.form = m.buildForm()
			return m, m.form.Init()
		}
		return m, nil

	case ModeResult:
		switch msg.String() {
		case "r":
			m.mode = ModeValidating
			return m, tea.Batch(m.spinner.Tick, m.validate())
		case "s":
			// Save without a reachable server, e.g. configuring offline.
			return m, m.save()
		case "enter", "esc":
			m.validErr = nil
			m.mode = ModeForm
			m.form = m.buildForm()
			return m, m.form.Init()
		}
		return m, nil
	}
	return m, nil
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.mode = ModeValidating
		return m, tea.Batch(m.spinner.Tick, m.validate())
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return DoneMsg{} }
	}

	return m, cmd
}

// validate tests the entered server settings with a lightweight request.
func (m Model) validate() tea.Cmd {
	baseURL := *m.baseURL
	token := *m.token
	return func() tea.Msg {
		if token == "" {
			stored, err := credential.Get(credential.TokenKey)
			if err != nil || stored == "" {
				return validateResultMsg{err: fmt.Errorf("no session token; enter one or run 'mailflow login'")}
			}
			token = stored
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client := api.New(baseURL, token, nil)
		if _, err := client.UnreadCount(ctx); err != nil {
			return validateResultMsg{err: err}
		}
		return validateResultMsg{}
	}
}

// save writes the edited configuration to disk and stores an entered token in
// the keyring.
func (m Model) save() tea.Cmd {
	cfg := *m.cfg
	cfg.Server.BaseURL = *m.baseURL
	cfg.Poll.MailboxSec = mustAtoi(*m.mailboxSec, cfg.Poll.MailboxSec)
	cfg.Poll.ChatListMS = mustAtoi(*m.chatListMS, cfg.Poll.ChatListMS)
	cfg.Poll.HistoryMS = mustAtoi(*m.historyMS, cfg.Poll.HistoryMS)
	cfg.Recording.MaxSeconds = mustAtoi(*m.maxSeconds, cfg.Recording.MaxSeconds)
	cfg.Display.SoundEnabled = *m.sound

	path := m.path
	token := *m.token
	return func() tea.Msg {
		if token != "" {
			if err := credential.Set(credential.TokenKey, token); err != nil {
				return savedInternalMsg{err: fmt.Errorf("storing token: %w", err)}
			}
		}
		if err := model.SaveConfig(path, &cfg); err != nil {
			return savedInternalMsg{err: err}
		}
		return savedInternalMsg{cfg: &cfg}
	}
}

// View renders the settings view based on the current mode.
func (m Model) View() string {
	switch m.mode {
	case ModeForm:
		return m.viewForm()
	case ModeValidating:
		return m.viewValidating()
	case ModeResult:
		return m.viewResult()
	}
	return ""
}

func (m Model) viewForm() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)
	b.WriteString(titleStyle.Render("Settings"))
	b.WriteString("\n\n")
	b.WriteString(m.form.View())

	if m.statusMsg != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().
			Foreground(theme.ColorYellow).
			Italic(true).
			Render(m.statusMsg))
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Render(b.String())
}

func (m Model) viewValidating() string {
	content := fmt.Sprintf(
		"%s Testing connection...\n\nPress esc to cancel.",
		m.spinner.View(),
	)
	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Render(content)
}

func (m Model) viewResult() string {
	errStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorRed)
	content := errStyle.Render("Connection failed") + "\n\n" +
		m.validErr.Error() + "\n\n" +
		lipgloss.NewStyle().Foreground(theme.ColorGray).
			Render("r retry | s save anyway | enter/esc back")

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Render(content)
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

// --- Validators ---

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., https://example.com)")
	}
	return nil
}

func validateInt(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive number", fieldName)
		}
		return nil
	}
}

func mustAtoi(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
