// Package conversation holds per-peer chat history with optimistic sends.
// Conversations are created lazily on first reference and never destroyed,
// only evicted from view.
package conversation

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dtran/mailflow/internal/model"
)

// dedupWindow bounds how far apart a local optimistic message and its server
// copy may be timestamped and still be collapsed into one. The server stamps
// with its own clock, so exact equality cannot be required.
const dedupWindow = 2 * time.Minute

var tempCounter atomic.Uint64

// nextTempID returns a fresh client-local message id. Temporary ids are
// monotonic and never sent to the server.
func nextTempID() string {
	return fmt.Sprintf("%s%d", model.TempIDPrefix, tempCounter.Add(1))
}

// Conversation is the local view of one peer's chat.
type Conversation struct {
	Peer        string
	UnreadCount int
	IsOnline    bool
	LastMessage string
	LastAt      time.Time

	// messages is chronological and append-only from the client's view.
	messages []model.ChatMessage
	// slotByTempID maps an unconfirmed send's temporary id to its slot in
	// messages, so acknowledgment swaps the id in place instead of
	// scanning.
	slotByTempID map[string]int
}

// Store keys conversations by peer email address.
type Store struct {
	mu     sync.Mutex
	byPeer map[string]*Conversation
}

// New creates an empty conversation store.
func New() *Store {
	return &Store{byPeer: make(map[string]*Conversation)}
}

func (s *Store) ensureLocked(peer string) *Conversation {
	c, ok := s.byPeer[peer]
	if !ok {
		c = &Conversation{
			Peer:         peer,
			slotByTempID: make(map[string]int),
		}
		s.byPeer[peer] = c
	}
	return c
}

// Ensure creates the conversation for peer if it does not exist yet
// (user-initiated "new chat").
func (s *Store) Ensure(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(peer)
}

// ApplySummaries merges a conversation-list snapshot: unread counters,
// presence, and previews update; message history is untouched.
func (s *Store) ApplySummaries(summaries []model.ConversationSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sum := range summaries {
		c := s.ensureLocked(sum.Peer)
		c.UnreadCount = sum.UnreadCount
		c.IsOnline = sum.IsOnline
		c.LastMessage = sum.LastMessage
		c.LastAt = sum.LastMessageAt
	}
}

// Summaries returns the conversation list ordered by most recent activity.
func (s *Store) Summaries() []model.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.ConversationSummary, 0, len(s.byPeer))
	for _, c := range s.byPeer {
		sum := model.ConversationSummary{
			Peer:          c.Peer,
			UnreadCount:   c.UnreadCount,
			LastMessage:   c.LastMessage,
			LastMessageAt: c.LastAt,
			IsOnline:      c.IsOnline,
		}
		if sum.LastMessage == "" && len(c.messages) > 0 {
			sum.LastMessage = c.messages[len(c.messages)-1].Body
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

// History returns a copy of the peer's messages in order.
func (s *Store) History(peer string) []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byPeer[peer]
	if !ok {
		return nil
	}
	out := make([]model.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages held for peer.
func (s *Store) Len(peer string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byPeer[peer]
	if !ok {
		return 0
	}
	return len(c.messages)
}

// IsOnline returns the peer's last known presence.
func (s *Store) IsOnline(peer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byPeer[peer]
	return ok && c.IsOnline
}

// MarkRead zeroes the local unread counter (opening the conversation).
func (s *Store) MarkRead(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byPeer[peer]; ok {
		c.UnreadCount = 0
	}
}

// AppendLocal appends an optimistic text message and returns its temporary
// id. The message is Pending until ConfirmSend or FailSend resolves it.
func (s *Store) AppendLocal(peer, text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ensureLocked(peer)
	tempID := nextTempID()
	msg := model.ChatMessage{
		ID:        tempID,
		Kind:      model.KindText,
		Body:      text,
		SentByMe:  true,
		Timestamp: time.Now(),
		Delivery:  model.DeliveryPending,
	}
	c.slotByTempID[tempID] = len(c.messages)
	c.messages = append(c.messages, msg)
	c.LastMessage = text
	c.LastAt = msg.Timestamp
	return tempID
}

// AppendLocalAudio appends an optimistic voice message carrying the locally
// captured clip for immediate playback, returning its temporary id.
func (s *Store) AppendLocalAudio(peer string, clip model.AudioClip) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ensureLocked(peer)
	tempID := nextTempID()
	audio := clip
	msg := model.ChatMessage{
		ID:        tempID,
		Kind:      model.KindAudio,
		Body:      "Voice message",
		SentByMe:  true,
		Timestamp: time.Now(),
		Delivery:  model.DeliveryPending,
		Audio:     &audio,
	}
	c.slotByTempID[tempID] = len(c.messages)
	c.messages = append(c.messages, msg)
	c.LastMessage = msg.Body
	c.LastAt = msg.Timestamp
	return tempID
}

// ConfirmSend swaps the temporary id for the server id in place, in the same
// slot, and marks the message Confirmed. It is a no-op if the temporary id is
// gone, which happens when a poll observed the send first and reconciliation
// already collapsed it onto the server copy.
func (s *Store) ConfirmSend(peer, tempID, serverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byPeer[peer]
	if !ok {
		return
	}
	slot, ok := c.slotByTempID[tempID]
	if !ok || slot >= len(c.messages) || c.messages[slot].ID != tempID {
		return
	}
	delete(c.slotByTempID, tempID)
	c.messages[slot].ID = serverID
	c.messages[slot].Delivery = model.DeliveryConfirmed
}

// ConfirmAudioSend resolves an optimistic voice message: the server id and
// hosted audio reference replace the temporary ones in place.
func (s *Store) ConfirmAudioSend(peer, tempID, serverID, audioRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byPeer[peer]
	if !ok {
		return
	}
	slot, ok := c.slotByTempID[tempID]
	if !ok || slot >= len(c.messages) || c.messages[slot].ID != tempID {
		return
	}
	delete(c.slotByTempID, tempID)
	m := &c.messages[slot]
	m.ID = serverID
	m.Delivery = model.DeliveryConfirmed
	if m.Audio != nil {
		m.Audio.Ref = audioRef
	}
}

// FailSend marks a pending text message Failed. The message stays visible
// with a retry affordance; a composed message the user already sent from
// their perspective must not vanish.
func (s *Store) FailSend(peer, tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byPeer[peer]
	if !ok {
		return
	}
	slot, ok := c.slotByTempID[tempID]
	if !ok || slot >= len(c.messages) || c.messages[slot].ID != tempID {
		return
	}
	c.messages[slot].Delivery = model.DeliveryFailed
}

// RemoveLocal drops an optimistic message outright. Audio uploads roll back
// this way on failure: there is no meaningful retry once the capture session
// is gone.
func (s *Store) RemoveLocal(peer, tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byPeer[peer]
	if !ok {
		return
	}
	slot, ok := c.slotByTempID[tempID]
	if !ok || slot >= len(c.messages) || c.messages[slot].ID != tempID {
		return
	}
	delete(c.slotByTempID, tempID)
	c.messages = append(c.messages[:slot], c.messages[slot+1:]...)
	c.reindexLocked()
}

// RetrySend flips a Failed message back to Pending and returns true if the
// message was found in that state.
func (s *Store) RetrySend(peer, tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byPeer[peer]
	if !ok {
		return false
	}
	slot, ok := c.slotByTempID[tempID]
	if !ok || slot >= len(c.messages) || c.messages[slot].ID != tempID {
		return false
	}
	if c.messages[slot].Delivery != model.DeliveryFailed {
		return false
	}
	c.messages[slot].Delivery = model.DeliveryPending
	return true
}

// ReconcileHistory replaces the peer's confirmed messages with the server
// snapshot while preserving messages still pending or failed locally (they
// have not round-tripped). A preserved temporary message matching a server
// message by author, content, and timestamp (within a small window) is
// collapsed onto the server copy, covering the race where the poll observes
// a send before the send's own response returns.
//
// It returns the growth in confirmed history and whether the conversation
// already had history before the call, so the caller can distinguish new
// messages from initial sync.
func (s *Store) ReconcileHistory(peer string, serverMsgs []model.ChatMessage) (grown int, hadHistory bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ensureLocked(peer)
	hadHistory = len(c.messages) > 0

	confirmedBefore := 0
	var local []model.ChatMessage
	for _, m := range c.messages {
		if m.HasTempID() {
			local = append(local, m)
		} else {
			confirmedBefore++
		}
	}

	merged := make([]model.ChatMessage, 0, len(serverMsgs)+len(local))
	merged = append(merged, serverMsgs...)

	for _, lm := range local {
		if matchesServerCopy(lm, serverMsgs) {
			continue
		}
		merged = append(merged, lm)
	}

	c.messages = merged
	c.reindexLocked()

	if n := len(serverMsgs); n > confirmedBefore {
		grown = n - confirmedBefore
	}
	return grown, hadHistory
}

// matchesServerCopy reports whether a local optimistic message already
// appears in the server snapshot.
func matchesServerCopy(local model.ChatMessage, serverMsgs []model.ChatMessage) bool {
	for _, sm := range serverMsgs {
		if !sm.SentByMe || sm.Kind != local.Kind || sm.Body != local.Body {
			continue
		}
		d := sm.Timestamp.Sub(local.Timestamp)
		if d < 0 {
			d = -d
		}
		if d <= dedupWindow {
			return true
		}
	}
	return false
}

func (c *Conversation) reindexLocked() {
	c.slotByTempID = make(map[string]int)
	for i, m := range c.messages {
		if m.HasTempID() {
			c.slotByTempID[m.ID] = i
		}
	}
}
