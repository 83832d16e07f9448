// Package app is the root Bubble Tea model: it routes poll results and key
// input between the stores, the coordinators, and the views.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dtran/mailflow/internal/api"
	"github.com/dtran/mailflow/internal/contacts"
	"github.com/dtran/mailflow/internal/conversation"
	"github.com/dtran/mailflow/internal/engine"
	"github.com/dtran/mailflow/internal/keys"
	"github.com/dtran/mailflow/internal/mailbox"
	"github.com/dtran/mailflow/internal/model"
	"github.com/dtran/mailflow/internal/playback"
	"github.com/dtran/mailflow/internal/selection"
	"github.com/dtran/mailflow/internal/ui"
	chatview "github.com/dtran/mailflow/internal/ui/chat"
	composeview "github.com/dtran/mailflow/internal/ui/compose"
	confirmview "github.com/dtran/mailflow/internal/ui/confirm"
	helpview "github.com/dtran/mailflow/internal/ui/help"
	"github.com/dtran/mailflow/internal/ui/maillist"
	readingview "github.com/dtran/mailflow/internal/ui/reading"
	settingsview "github.com/dtran/mailflow/internal/ui/settings"
	"github.com/dtran/mailflow/internal/voice"
)

// Notifier plays the new-message tone.
type Notifier interface {
	Notify()
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewMail ViewState = iota
	ViewReading
	ViewChat
	ViewCompose
	ViewConfirm
	ViewHelp
	ViewSettings
)

// Model is the root Bubble Tea model.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	cfg          *model.AppConfig
	log          *slog.Logger

	api        *api.Client
	mail       *mailbox.Store
	conv       *conversation.Store
	poller     *engine.Poller
	sender     *conversation.Service
	pipeline   *voice.Pipeline
	playback   *playback.Coordinator
	selection  *selection.Coordinator
	notifier   Notifier
	contactsDB *contacts.Store

	mailList     maillist.Model
	readingView  readingview.Model
	chatView     chatview.Model
	helpView     helpview.Model
	confirmView  confirmview.Model
	composeView  composeview.Model
	settingsView settingsview.Model

	cfgPath string

	recipients       []string
	folderIdx        int
	unread           int
	ready            bool
	statusMsg        string
	authErrorMessage string
}

// Deps bundles the collaborators the root model is wired with.
type Deps struct {
	Config     *model.AppConfig
	ConfigPath string
	API        *api.Client
	Device     voice.Device
	Player     playback.Player
	Notifier   Notifier
	ContactsDB *contacts.Store
	Log        *slog.Logger
}

// New creates the root application model.
func New(d Deps) Model {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	k := keys.DefaultKeyMap()

	mail := mailbox.New()
	mail.Reset(model.FolderInbox)
	conv := conversation.New()

	intervals := engine.Intervals{
		Mailbox:  time.Duration(d.Config.Poll.MailboxSec) * time.Second,
		ChatList: time.Duration(d.Config.Poll.ChatListMS) * time.Millisecond,
		History:  time.Duration(d.Config.Poll.HistoryMS) * time.Millisecond,
	}

	sel := selection.New(d.API, mail, d.Log)
	pb := playback.New(d.Player, d.Log)

	return Model{
		currentView: ViewMail,
		keys:        k,
		cfg:         d.Config,
		log:         d.Log,
		api:         d.API,
		mail:        mail,
		conv:        conv,
		poller:      engine.New(d.API, mail, conv, intervals, d.Log),
		sender:      conversation.NewService(conv, d.API, d.Log),
		pipeline: voice.NewPipeline(d.Device, conv, d.API, d.Config.Recording.Formats, voice.Limits{
			MaxSeconds: d.Config.Recording.MaxSeconds,
			MinBytes:   d.Config.Recording.MinBytes,
		}, d.Log),
		playback:    pb,
		selection:   sel,
		notifier:    d.Notifier,
		contactsDB:  d.ContactsDB,
		mailList:    maillist.New(sel, k, 80, 24),
		readingView: readingview.New(80, 24),
		chatView:    chatview.New(conv, pb, k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		cfgPath:     d.ConfigPath,
	}
}

// Init starts polling and the contact sync.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.poller.Start(),
		m.syncContacts(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.mailList.SetSize(w, h)
		m.readingView.SetSize(w, h)
		m.chatView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.settingsView.SetSize(w, h)
		return m.updateActiveView(msg)

	case engine.MailboxSyncedMsg:
		m.unread = msg.Unread
		if msg.NewMail > 0 && m.cfg.Display.SoundEnabled {
			m.notifier.Notify()
		}
		cmd := m.mailList.SetMessages(m.mail.Messages())
		return m, tea.Batch(cmd, m.poller.WaitForNextResult())

	case engine.ChatListSyncedMsg:
		return m, m.poller.WaitForNextResult()

	case engine.HistorySyncedMsg:
		if msg.NewMessages > 0 && m.cfg.Display.SoundEnabled {
			m.notifier.Notify()
		}
		return m, m.poller.WaitForNextResult()

	case engine.SyncFailedMsg:
		var authErr *api.AuthError
		if errors.As(msg.Err, &authErr) {
			m.authErrorMessage = authErr.Message
		}
		return m, m.poller.WaitForNextResult()

	case contactsSyncedMsg:
		m.recipients = msg.recipients
		return m, nil

	case maillist.OpenMessageMsg:
		return m.openMessage(msg.ID)

	case maillist.ToggleStarMsg:
		if err := m.mail.ApplyStar(msg.ID, msg.Starred); err != nil {
			return m, nil
		}
		cmd := m.mailList.SetMessages(m.mail.Messages())
		return m, tea.Batch(cmd, m.starCmd(msg.ID, msg.Starred))

	case starResultMsg:
		if msg.err != nil {
			m.mail.RollbackStar(msg.id)
			m.statusMsg = "star failed"
			return m, m.mailList.SetMessages(m.mail.Messages())
		}
		return m, nil

	case maillist.BatchRequestedMsg:
		return m.stageBatch(msg)

	case confirmview.ResultMsg:
		m.currentView = ViewMail
		if !msg.Confirmed {
			return m, nil
		}
		return m, m.executeBatchCmd(msg.Batch)

	case batchDoneMsg:
		cmd := m.mailList.SetMessages(m.mail.Messages())
		return m, cmd

	case readingview.BackMsg:
		m.currentView = ViewMail
		return m, nil

	case chatview.OpenConversationMsg:
		m.conv.MarkRead(msg.Peer)
		m.poller.OpenConversation(msg.Peer)
		return m, m.markConversationReadCmd(msg.Peer)

	case chatview.CloseConversationMsg:
		m.playback.Stop()
		m.poller.CloseConversation()
		return m, nil

	case chatview.SendTextMsg:
		tempID := m.sender.Begin(msg.Peer, msg.Text)
		return m, m.finishSendCmd(msg.Peer, tempID, msg.Text)

	case chatview.RetrySendMsg:
		return m, m.retrySendCmd(msg.Peer, msg.TempID)

	case sendDoneMsg:
		return m, nil

	case chatview.ToggleRecordMsg:
		return m.toggleRecording()

	case chatview.PauseRecordMsg:
		return m.pauseRecording()

	case chatview.CancelRecordMsg:
		if sess := m.pipeline.Session(); sess != nil {
			sess.Cancel()
		}
		m.chatView.SetRecording(voice.StateIdle, 0)
		return m, nil

	case recStartedMsg:
		if msg.err != nil {
			m.statusMsg = recordingErrorText(msg.err)
			m.chatView.SetRecording(voice.StateIdle, 0)
			return m, nil
		}
		m.chatView.SetRecording(voice.StateRecording, 0)
		return m, m.recTick()

	case recTickMsg:
		return m.handleRecTick()

	case audioSentMsg:
		m.chatView.SetRecording(voice.StateIdle, 0)
		if msg.err != nil {
			m.statusMsg = "voice message failed to upload"
		}
		return m, nil

	case chatview.TogglePlaybackMsg:
		return m.togglePlayback(msg)

	case audioFetchedMsg:
		if msg.err != nil {
			m.statusMsg = "could not fetch audio"
			return m, nil
		}
		if err := m.playback.Toggle(msg.id, msg.clip); err != nil {
			m.statusMsg = "playback failed"
		}
		return m, nil

	case composeview.DraftSubmittedMsg:
		m.currentView = ViewMail
		return m, m.saveDraftCmd(msg.Draft)

	case composeview.CancelMsg:
		m.currentView = ViewMail
		return m, nil

	case settingsview.DoneMsg:
		m.currentView = ViewMail
		return m, nil

	case settingsview.SavedMsg:
		m.currentView = ViewMail
		m.cfg = msg.Config
		m.statusMsg = "settings saved; poll intervals apply on restart"
		return m, nil

	case draftSavedMsg:
		if msg.err != nil {
			m.statusMsg = "draft save failed"
		} else {
			m.statusMsg = "draft saved"
		}
		return m, nil

	case tea.KeyMsg:
		m.statusMsg = ""
		if model, cmd, handled := m.handleGlobalKeys(msg); handled {
			return model, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKeys processes keys that work regardless of the focused view.
func (m Model) handleGlobalKeys(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		return m.quit()

	case "q":
		if m.currentView == ViewMail {
			return m.quit()
		}

	case "?":
		if m.currentView == ViewChat || m.currentView == ViewCompose || m.currentView == ViewConfirm || m.currentView == ViewSettings {
			break
		}
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true

	case "tab":
		if m.currentView == ViewMail {
			return m.cycleFolder(1)
		}

	case "shift+tab":
		if m.currentView == ViewMail {
			return m.cycleFolder(-1)
		}

	case "r":
		if m.currentView == ViewMail {
			m.poller.RefreshMailbox()
			return m, nil, true
		}

	case "c":
		if m.currentView == ViewMail {
			m.previousView = m.currentView
			m.currentView = ViewChat
			m.poller.SetChatOpen(true)
			return m, nil, true
		}

	case "n":
		if m.currentView == ViewMail {
			m.previousView = m.currentView
			m.currentView = ViewCompose
			m.composeView = composeview.New(m.recipients, m.layout.ContentWidth()-4)
			return m, m.composeView.Init(), true
		}

	case "o":
		if m.currentView == ViewMail {
			m.previousView = m.currentView
			m.currentView = ViewSettings
			m.settingsView = settingsview.New(m.cfg, m.cfgPath, m.layout.ContentWidth(), m.layout.ContentHeight())
			return m, m.settingsView.Init(), true
		}

	case "E":
		if m.currentView == ViewMail && m.mailList.Folder() == model.FolderTrash {
			batch, err := m.selection.Stage(selection.ActionEmptyTrash)
			if err != nil {
				return m, nil, true
			}
			m.previousView = m.currentView
			m.currentView = ViewConfirm
			m.confirmView = confirmview.New(batch, m.layout.ContentWidth()-4)
			return m, m.confirmView.Init(), true
		}

	case "esc":
		if m.currentView == ViewChat && m.chatView.OpenPeer() == "" {
			m.currentView = ViewMail
			m.poller.SetChatOpen(false)
			return m, nil, true
		}
	}
	return m, nil, false
}

func (m Model) quit() (Model, tea.Cmd, bool) {
	m.poller.Stop()
	m.playback.Stop()
	if m.contactsDB != nil {
		m.contactsDB.Close()
	}
	return m, tea.Quit, true
}

// cycleFolder moves the mailbox view to the next or previous folder.
// Selection and the cache reset; the list refills on the next snapshot.
func (m Model) cycleFolder(dir int) (Model, tea.Cmd, bool) {
	n := len(model.Folders)
	m.folderIdx = (m.folderIdx + dir + n) % n
	folder := model.Folders[m.folderIdx]

	m.selection.Clear()
	m.mailList.SetFolder(folder)
	m.poller.SetFolder(folder)
	return m, nil, true
}

// openMessage switches to the reading pane and optimistically marks the
// message read.
func (m Model) openMessage(id string) (tea.Model, tea.Cmd) {
	message, ok := m.mail.Get(id)
	if !ok {
		return m, nil
	}
	m.mail.MarkRead(id)
	m.readingView.SetMessage(message)
	m.previousView = m.currentView
	m.currentView = ViewReading
	return m, tea.Batch(
		m.mailList.SetMessages(m.mail.Messages()),
		m.markReadCmd(id),
	)
}

// stageBatch builds a batch for the requested action. Confirm-gated actions
// go through the prompt; everything else executes immediately.
func (m Model) stageBatch(msg maillist.BatchRequestedMsg) (tea.Model, tea.Cmd) {
	var batch *selection.Batch
	if msg.FocusedID != "" {
		batch = &selection.Batch{
			Action:               msg.Action,
			IDs:                  []string{msg.FocusedID},
			RequiresConfirmation: msg.Action == selection.ActionPermanentDelete,
		}
	} else {
		var err error
		batch, err = m.selection.Stage(msg.Action)
		if err != nil {
			return m, nil
		}
	}

	if batch.RequiresConfirmation {
		m.previousView = m.currentView
		m.currentView = ViewConfirm
		m.confirmView = confirmview.New(batch, m.layout.ContentWidth()-4)
		return m, m.confirmView.Init()
	}
	return m, m.executeBatchCmd(batch)
}

// toggleRecording starts a session, or finishes the one in progress and
// uploads the clip.
func (m Model) toggleRecording() (tea.Model, tea.Cmd) {
	sess := m.pipeline.Session()
	if sess != nil {
		switch sess.State() {
		case voice.StateRecording, voice.StatePaused:
			return m.finishRecording(sess)
		}
	}
	m.chatView.SetRecording(voice.StateRequestingPermission, 0)
	return m, m.startRecordingCmd()
}

func (m Model) finishRecording(sess *voice.Session) (tea.Model, tea.Cmd) {
	peer := m.chatView.OpenPeer()
	clip, err := sess.Done()
	if err != nil {
		m.statusMsg = recordingErrorText(err)
		m.chatView.SetRecording(voice.StateIdle, 0)
		return m, nil
	}
	m.chatView.SetRecording(voice.StateUploading, 0)
	return m, m.sendAudioCmd(peer, clip)
}

func (m Model) pauseRecording() (tea.Model, tea.Cmd) {
	sess := m.pipeline.Session()
	if sess == nil {
		return m, nil
	}
	switch sess.State() {
	case voice.StateRecording:
		if err := sess.Pause(); err == nil {
			m.chatView.SetRecording(voice.StatePaused, sess.Elapsed())
		}
	case voice.StatePaused:
		if err := sess.Resume(); err == nil {
			m.chatView.SetRecording(voice.StateRecording, sess.Elapsed())
		}
	}
	return m, nil
}

// handleRecTick advances the recording clock and finishes the session when
// the cap is reached.
func (m Model) handleRecTick() (tea.Model, tea.Cmd) {
	sess := m.pipeline.Session()
	if sess == nil {
		return m, nil
	}
	switch sess.State() {
	case voice.StateRecording:
		capReached := sess.Tick()
		m.chatView.SetRecording(voice.StateRecording, sess.Elapsed())
		if capReached {
			return m.finishRecording(sess)
		}
		return m, m.recTick()
	case voice.StatePaused:
		m.chatView.SetRecording(voice.StatePaused, sess.Elapsed())
		return m, m.recTick()
	}
	return m, nil
}

// togglePlayback plays a clip, fetching its bytes first if only the hosted
// reference is known.
func (m Model) togglePlayback(msg chatview.TogglePlaybackMsg) (tea.Model, tea.Cmd) {
	if len(msg.Clip.Data) == 0 {
		if msg.Clip.Ref == "" {
			return m, nil
		}
		return m, m.fetchAudioCmd(msg.ID, msg.Clip)
	}
	if err := m.playback.Toggle(msg.ID, msg.Clip); err != nil {
		m.statusMsg = "playback failed"
	}
	return m, nil
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewMail:
		m.mailList, cmd = m.mailList.Update(msg)
	case ViewReading:
		m.readingView, cmd = m.readingView.Update(msg)
	case ViewChat:
		m.chatView, cmd = m.chatView.Update(msg)
	case ViewCompose:
		m.composeView, cmd = m.composeView.Update(msg)
	case ViewConfirm:
		m.confirmView, cmd = m.confirmView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewSettings:
		m.settingsView, cmd = m.settingsView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	headerTitle := "Mailflow"
	if m.unread > 0 {
		headerTitle = fmt.Sprintf("Mailflow [%d unread]", m.unread)
	}
	header := m.layout.RenderHeader(headerTitle, m.syncStatus())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

func (m Model) renderContent() string {
	switch m.currentView {
	case ViewMail:
		return m.mailList.View()
	case ViewReading:
		return m.readingView.View()
	case ViewChat:
		return m.chatView.View()
	case ViewCompose:
		return m.composeView.View()
	case ViewConfirm:
		return m.confirmView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewSettings:
		return m.settingsView.View()
	default:
		return ""
	}
}

// syncStatus returns a short string describing the combined poll state.
func (m Model) syncStatus() string {
	states := m.poller.States()
	busy := 0
	for _, s := range states {
		if s == engine.StateFetching || s == engine.StateReconciling {
			busy++
		}
	}
	if busy > 0 {
		return fmt.Sprintf("syncing (%d)", busy)
	}
	return "idle"
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.authErrorMessage != "" && m.currentView == ViewMail {
		return m.authErrorMessage
	}
	if m.statusMsg != "" {
		return m.statusMsg
	}

	switch m.currentView {
	case ViewReading:
		return "esc back | j/k scroll"
	case ViewChat:
		if m.chatView.OpenPeer() != "" {
			return "enter send | ctrl+r record | ctrl+o play | ctrl+t retry | esc back"
		}
		return "enter open | j/k move | esc back"
	case ViewCompose:
		return "enter next field | esc cancel"
	case ViewConfirm:
		return "←/→ choose | enter confirm"
	case ViewHelp:
		return "? close help"
	case ViewSettings:
		return "tab next field | enter submit | esc cancel"
	default:
		if m.selection.Active() {
			return fmt.Sprintf("%d selected | space toggle | d delete | u restore | D purge | esc cancel", m.selection.Count())
		}
		return "q quit | ? help | tab folder | c chat | n compose | s star | d delete | v select"
	}
}

func recordingErrorText(err error) string {
	switch {
	case errors.Is(err, voice.ErrTooShort):
		return "recording too short, discarded"
	case errors.Is(err, voice.ErrPermissionDenied):
		return "microphone access denied"
	case errors.Is(err, voice.ErrEncodingUnsupported):
		return "no supported recording format"
	default:
		return "recording failed"
	}
}
