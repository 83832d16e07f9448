// Package engine schedules the poll targets and reconciles their results
// into the local stores. There is no push channel: polling is the only
// transport, so the engine's job is bounding staleness, not guaranteeing
// freshness.
package engine

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dtran/mailflow/internal/conversation"
	"github.com/dtran/mailflow/internal/mailbox"
	"github.com/dtran/mailflow/internal/model"
)

// Target identifies one independently scheduled fetch+reconcile loop.
type Target string

const (
	TargetMailbox  Target = "mailbox"
	TargetChatList Target = "chat-list"
	TargetHistory  Target = "history"
)

// State is the per-target poll state machine.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateReconciling
	StateFailed
)

// String returns a short label for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateReconciling:
		return "reconciling"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// MailboxSyncedMsg is delivered after a mailbox snapshot has been reconciled.
// NewMail is the positive unread delta since the last observation, zero on
// initial sync; a positive value is a one-shot new-mail event.
type MailboxSyncedMsg struct {
	Folder  model.Folder
	Unread  int
	NewMail int
}

// ChatListSyncedMsg is delivered after the conversation list has been
// reconciled.
type ChatListSyncedMsg struct{}

// HistorySyncedMsg is delivered after an open conversation's history has been
// reconciled. NewMessages is the confirmed-history growth, zero on initial
// sync (a delta from zero is initial sync, not a new-message event).
type HistorySyncedMsg struct {
	Peer        string
	NewMessages int
}

// SyncFailedMsg reports a failed fetch. Poll failures are never raised to the
// user directly; the rendering layer may surface consecutive failures.
type SyncFailedMsg struct {
	Target Target
	Err    error
}

// API is the slice of the server client the poller consumes.
type API interface {
	Messages(ctx context.Context, folder model.Folder) ([]model.Message, error)
	UnreadCount(ctx context.Context) (int, error)
	Conversations(ctx context.Context) ([]model.ConversationSummary, error)
	History(ctx context.Context, peer string) ([]model.ChatMessage, error)
	Online(ctx context.Context) error
}

// Intervals holds the fixed per-target poll intervals.
type Intervals struct {
	Mailbox  time.Duration
	ChatList time.Duration
	History  time.Duration
}

// fetchTimeout bounds a single fetch. Shorter than a typical 30s API
// timeout because poll targets tick again within seconds anyway.
const fetchTimeout = 10 * time.Second

// Poller runs the poll targets. For a given target at most one fetch is in
// flight; a tick that fires while one is outstanding is dropped, never
// queued, which bounds concurrency and keeps reconciliation in order.
type Poller struct {
	api       API
	mail      *mailbox.Store
	conv      *conversation.Store
	intervals Intervals
	log       *slog.Logger

	resultCh    chan tea.Msg
	stopCh      chan struct{}
	mailTrigger chan struct{}
	chatTrigger chan struct{}
	histTrigger chan struct{}

	mu       gosync.Mutex
	running  bool
	inFlight map[Target]bool
	states   map[Target]State

	// folderGen and historyGen tag fetches so a response that lands after
	// its target was torn down (folder switched, conversation closed) is
	// discarded instead of applied.
	activeFolder model.Folder
	folderGen    uint64
	openPeer     string
	historyGen   uint64
	chatOpen     bool

	// lastUnread / unreadPrimed drive the one-shot new-mail delta. The
	// first observation primes the counter without firing.
	lastUnread   int
	unreadPrimed bool
}

// New creates a Poller over the given stores. log may be nil.
func New(api API, mail *mailbox.Store, conv *conversation.Store, intervals Intervals, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		api:          api,
		mail:         mail,
		conv:         conv,
		intervals:    intervals,
		log:          log,
		resultCh:     make(chan tea.Msg, 32),
		stopCh:       make(chan struct{}),
		mailTrigger:  make(chan struct{}, 1),
		chatTrigger:  make(chan struct{}, 1),
		histTrigger:  make(chan struct{}, 1),
		inFlight:     make(map[Target]bool),
		states:       map[Target]State{TargetMailbox: StateIdle, TargetChatList: StateIdle, TargetHistory: StateIdle},
		activeFolder: model.FolderInbox,
	}
}

// Start launches the polling goroutines and returns a command that waits for
// the first result.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return p.waitForResult()
	}
	p.running = true
	p.mu.Unlock()

	go p.runMailbox()
	go p.runChatList()
	go p.runHistory()

	return p.waitForResult()
}

// Stop halts all polling goroutines.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	close(p.stopCh)
	p.running = false
}

// WaitForNextResult returns a command that delivers the next sync result.
// Call it again after each result to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}

func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg, ok := <-p.resultCh:
			if !ok {
				return nil
			}
			return msg
		case <-p.stopCh:
			return nil
		}
	}
}

// States returns a snapshot of the per-target poll states.
func (p *Poller) States() map[Target]State {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[Target]State, len(p.states))
	for t, s := range p.states {
		out[t] = s
	}
	return out
}

// SetFolder switches the mailbox target to a new folder. The cache resets,
// the fetch generation advances so an in-flight response for the old folder
// is discarded on arrival, and an immediate fetch is triggered.
func (p *Poller) SetFolder(folder model.Folder) {
	p.mu.Lock()
	p.activeFolder = folder
	p.folderGen++
	p.mu.Unlock()

	p.mail.Reset(folder)
	trigger(p.mailTrigger)
}

// RefreshMailbox triggers an immediate mailbox poll.
func (p *Poller) RefreshMailbox() {
	trigger(p.mailTrigger)
}

// SetChatOpen gates the chat-list target: the conversation list is only
// polled while the chat panel is open.
func (p *Poller) SetChatOpen(open bool) {
	p.mu.Lock()
	p.chatOpen = open
	p.mu.Unlock()
	if open {
		trigger(p.chatTrigger)
	}
}

// OpenConversation points the history target at a peer and triggers an
// immediate fetch. Any in-flight fetch for the previous peer is invalidated.
func (p *Poller) OpenConversation(peer string) {
	p.mu.Lock()
	p.openPeer = peer
	p.historyGen++
	p.mu.Unlock()

	p.conv.Ensure(peer)
	trigger(p.histTrigger)
}

// CloseConversation tears down the history target. There is no cancellation
// of an in-flight fetch; its response is discarded when it arrives.
func (p *Poller) CloseConversation() {
	p.mu.Lock()
	p.openPeer = ""
	p.historyGen++
	p.mu.Unlock()
}

func trigger(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (p *Poller) runMailbox() {
	ticker := time.NewTicker(p.intervals.Mailbox)
	defer ticker.Stop()

	p.syncMailbox()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.syncMailbox()
		case <-p.mailTrigger:
			p.syncMailbox()
		}
	}
}

func (p *Poller) runChatList() {
	ticker := time.NewTicker(p.intervals.ChatList)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.syncChatList()
		case <-p.chatTrigger:
			p.syncChatList()
		}
	}
}

func (p *Poller) runHistory() {
	ticker := time.NewTicker(p.intervals.History)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.syncHistory()
		case <-p.histTrigger:
			p.syncHistory()
		}
	}
}

// beginFetch claims the target's single in-flight slot. It returns false when
// a fetch is already outstanding, in which case the tick is dropped.
func (p *Poller) beginFetch(t Target) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight[t] {
		p.log.Debug("tick dropped, fetch in flight", "target", t)
		return false
	}
	p.inFlight[t] = true
	p.states[t] = StateFetching
	return true
}

func (p *Poller) endFetch(t Target, final State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight[t] = false
	p.states[t] = final
}

func (p *Poller) sendResult(msg tea.Msg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop rather than block the poll goroutine; the next tick
		// delivers fresher state anyway.
	}
}

// syncMailbox fetches the active folder snapshot plus the inbox unread count
// and reconciles them into the mailbox store.
func (p *Poller) syncMailbox() {
	if !p.beginFetch(TargetMailbox) {
		return
	}

	p.mu.Lock()
	folder := p.activeFolder
	gen := p.folderGen
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	msgs, err := p.api.Messages(ctx, folder)
	if err != nil {
		// Poll failures return to Idle silently; the next tick recovers.
		p.log.Debug("mailbox fetch failed", "folder", folder, "err", err)
		p.endFetch(TargetMailbox, StateIdle)
		p.sendResult(SyncFailedMsg{Target: TargetMailbox, Err: err})
		return
	}

	unread, unreadErr := p.api.UnreadCount(ctx)

	p.mu.Lock()
	if gen != p.folderGen {
		// Folder switched while this fetch was in flight; the response
		// belongs to a torn-down target and must not be applied.
		p.mu.Unlock()
		p.log.Debug("mailbox response discarded, folder changed", "folder", folder)
		p.endFetch(TargetMailbox, StateIdle)
		return
	}
	p.states[TargetMailbox] = StateReconciling

	newMail := 0
	if unreadErr == nil {
		if p.unreadPrimed && unread > p.lastUnread {
			newMail = unread - p.lastUnread
		}
		p.lastUnread = unread
		p.unreadPrimed = true
	} else {
		unread = p.lastUnread
	}
	p.mu.Unlock()

	p.mail.Reconcile(msgs)

	p.endFetch(TargetMailbox, StateIdle)
	p.sendResult(MailboxSyncedMsg{Folder: folder, Unread: unread, NewMail: newMail})
}

// syncChatList fetches the conversation list, merges the summaries, and fires
// the presence ping.
func (p *Poller) syncChatList() {
	p.mu.Lock()
	open := p.chatOpen
	p.mu.Unlock()
	if !open {
		return
	}

	if !p.beginFetch(TargetChatList) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	summaries, err := p.api.Conversations(ctx)
	if err != nil {
		p.log.Debug("chat list fetch failed", "err", err)
		p.endFetch(TargetChatList, StateIdle)
		p.sendResult(SyncFailedMsg{Target: TargetChatList, Err: err})
		return
	}

	p.setState(TargetChatList, StateReconciling)
	p.conv.ApplySummaries(summaries)

	// Fire-and-forget presence ping while the chat panel is open.
	if err := p.api.Online(ctx); err != nil {
		p.log.Debug("presence ping failed", "err", err)
	}

	p.endFetch(TargetChatList, StateIdle)
	p.sendResult(ChatListSyncedMsg{})
}

// syncHistory fetches the open conversation's history and reconciles it,
// discarding the response if the conversation was closed or switched while
// the fetch was in flight.
func (p *Poller) syncHistory() {
	p.mu.Lock()
	peer := p.openPeer
	gen := p.historyGen
	p.mu.Unlock()
	if peer == "" {
		return
	}

	if !p.beginFetch(TargetHistory) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	msgs, err := p.api.History(ctx, peer)
	if err != nil {
		p.log.Debug("history fetch failed", "peer", peer, "err", err)
		p.endFetch(TargetHistory, StateIdle)
		p.sendResult(SyncFailedMsg{Target: TargetHistory, Err: err})
		return
	}

	p.mu.Lock()
	if gen != p.historyGen {
		p.mu.Unlock()
		p.log.Debug("history response discarded, conversation closed", "peer", peer)
		p.endFetch(TargetHistory, StateIdle)
		return
	}
	p.states[TargetHistory] = StateReconciling
	p.mu.Unlock()

	grown, hadHistory := p.conv.ReconcileHistory(peer, msgs)

	newMessages := 0
	if hadHistory {
		newMessages = grown
	}

	p.endFetch(TargetHistory, StateIdle)
	p.sendResult(HistorySyncedMsg{Peer: peer, NewMessages: newMessages})
}

func (p *Poller) setState(t Target, s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[t] = s
}
