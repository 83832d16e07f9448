package model

import (
	"strings"
	"time"
)

// MessageKind distinguishes text chat messages from voice messages.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindAudio MessageKind = "audio"
)

// DeliveryState tracks a chat message's round trip to the server.
type DeliveryState int

const (
	// DeliveryPending means the message only exists locally. A message is
	// Pending exactly while its ID is still a temporary client-local id.
	DeliveryPending DeliveryState = iota

	// DeliveryConfirmed means the server acknowledged the send and the
	// message carries its server-assigned id.
	DeliveryConfirmed

	// DeliveryFailed means the send did not reach the server. Failed text
	// messages stay visible with a retry affordance.
	DeliveryFailed
)

// String returns a short label for the delivery state.
func (s DeliveryState) String() string {
	switch s {
	case DeliveryPending:
		return "pending"
	case DeliveryConfirmed:
		return "confirmed"
	case DeliveryFailed:
		return "failed"
	}
	return "unknown"
}

// AudioClip carries the payload of a voice message. Before the upload is
// acknowledged only Data is set; after acknowledgment Ref points at the
// server-hosted audio and Data may be dropped.
type AudioClip struct {
	// Ref is the server-hosted audio reference, empty until confirmed.
	Ref string `json:"ref,omitempty"`

	// Data holds the locally captured clip bytes for immediate playback
	// of an unconfirmed message. Never serialized.
	Data []byte `json:"-"`

	// Format is the negotiated container/encoding of the clip.
	Format string `json:"format,omitempty"`

	// DurationSec is the recorded length in whole seconds.
	DurationSec int `json:"duration_sec,omitempty"`
}

// ChatMessage is one entry in a conversation. Exactly one ChatMessage exists
// per logical send: a temporary id is replaced in place by the server id on
// acknowledgment, never duplicated.
type ChatMessage struct {
	// ID is either a temporary client-local id (see HasTempID) or the
	// server-assigned id once acknowledged.
	ID string `json:"id"`

	// Kind is text or audio.
	Kind MessageKind `json:"kind"`

	// Body is the text content; for audio messages it may carry a short
	// caption such as "Voice message".
	Body string `json:"body"`

	// SentByMe reports whether the local user authored the message.
	SentByMe bool `json:"sent_by_me"`

	// Timestamp is when the message was sent (local clock for optimistic
	// entries, server clock once reconciled).
	Timestamp time.Time `json:"timestamp"`

	// Delivery is the round-trip state. Only meaningful for SentByMe.
	Delivery DeliveryState `json:"-"`

	// Audio is set when Kind is KindAudio.
	Audio *AudioClip `json:"audio,omitempty"`
}

// TempIDPrefix marks client-local message ids. Temporary ids are never sent
// to the server.
const TempIDPrefix = "local-"

// HasTempID reports whether the message still carries a client-local id.
func (m ChatMessage) HasTempID() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// ConversationSummary is one row of the server's conversation list.
type ConversationSummary struct {
	// Peer is the remote party's email address, the conversation key.
	Peer string `json:"peer"`

	// UnreadCount is the server-side unread counter for this peer.
	UnreadCount int `json:"unread_count"`

	// LastMessage is a preview of the most recent message.
	LastMessage string `json:"last_message"`

	// LastMessageAt orders the conversation list.
	LastMessageAt time.Time `json:"last_message_at"`

	// IsOnline is the peer's last known presence.
	IsOnline bool `json:"is_online"`
}

// Contact is a directory entry used for compose and new-chat autocomplete.
type Contact struct {
	ID        string `json:"id" db:"id"`
	Email     string `json:"email" db:"email"`
	Name      string `json:"name" db:"name"`
	SendCount int    `json:"send_count" db:"send_count"`
}
