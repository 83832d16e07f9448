package api

import (
	"time"

	"github.com/dtran/mailflow/internal/model"
)

// The server wraps every response in a success envelope.

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type emailListResponse struct {
	envelope
	Emails []wireEmail `json:"emails"`
}

type unreadCountResponse struct {
	envelope
	UnreadCount int `json:"unread_count"`
}

type conversationsResponse struct {
	envelope
	Conversations []wireConversation `json:"conversations"`
}

type historyResponse struct {
	envelope
	Messages []wireChatMessage `json:"messages"`
}

type sendResponse struct {
	envelope
	MessageID string `json:"message_id"`
}

type sendAudioResponse struct {
	envelope
	MessageID string `json:"message_id"`
	AudioURL  string `json:"audio_url"`
}

type contactsResponse struct {
	envelope
	Contacts []wireContact `json:"contacts"`
}

type wireAttachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

type wireEmail struct {
	ID          string           `json:"id"`
	Folder      string           `json:"folder"`
	FromName    string           `json:"from_name"`
	FromEmail   string           `json:"from_email"`
	Subject     string           `json:"subject"`
	Preview     string           `json:"preview"`
	ReceivedAt  time.Time        `json:"received_at"`
	IsRead      bool             `json:"is_read"`
	IsStarred   bool             `json:"is_starred"`
	Attachments []wireAttachment `json:"attachments"`
}

func (w wireEmail) toModel(fallback model.Folder) model.Message {
	folder := model.Folder(w.Folder)
	if folder == "" {
		folder = fallback
	}
	m := model.Message{
		ID:          w.ID,
		Folder:      folder,
		Sender:      w.FromName,
		SenderEmail: w.FromEmail,
		Subject:     w.Subject,
		Preview:     w.Preview,
		ReceivedAt:  w.ReceivedAt,
		IsRead:      w.IsRead,
		IsStarred:   w.IsStarred,
	}
	if m.Sender == "" {
		m.Sender = w.FromEmail
	}
	for _, a := range w.Attachments {
		m.Attachments = append(m.Attachments, model.Attachment{
			ID:       a.ID,
			Filename: a.Filename,
			Size:     a.Size,
			MimeHint: a.MimeType,
		})
	}
	return m
}

type wireConversation struct {
	Email         string    `json:"email"`
	Unread        int       `json:"unread"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	IsOnline      bool      `json:"is_online"`
}

func (w wireConversation) toModel() model.ConversationSummary {
	return model.ConversationSummary{
		Peer:          w.Email,
		UnreadCount:   w.Unread,
		LastMessage:   w.LastMessage,
		LastMessageAt: w.LastMessageAt,
		IsOnline:      w.IsOnline,
	}
}

type wireChatMessage struct {
	ID       string    `json:"id"`
	Content  string    `json:"content"`
	SentByMe bool      `json:"sent_by_me"`
	Time     time.Time `json:"time"`
	Type     string    `json:"type"`
	AudioURL string    `json:"audio_url,omitempty"`
	Duration int       `json:"duration,omitempty"`
}

func (w wireChatMessage) toModel() model.ChatMessage {
	kind := model.KindText
	var audio *model.AudioClip
	if w.Type == "audio" {
		kind = model.KindAudio
		audio = &model.AudioClip{
			Ref:         w.AudioURL,
			DurationSec: w.Duration,
		}
	}
	return model.ChatMessage{
		ID:        w.ID,
		Kind:      kind,
		Body:      w.Content,
		SentByMe:  w.SentByMe,
		Timestamp: w.Time,
		Delivery:  model.DeliveryConfirmed,
		Audio:     audio,
	}
}

type wireContact struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}
