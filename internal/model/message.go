package model

import "time"

// Folder identifies a server-side mailbox folder. A message lives in exactly
// one folder at a time; moving between folders surfaces as removal from one
// snapshot and appearance in another, never as an in-place mutation.
type Folder string

const (
	FolderInbox  Folder = "inbox"
	FolderSent   Folder = "sent"
	FolderDrafts Folder = "drafts"
	FolderSpam   Folder = "spam"
	FolderTrash  Folder = "trash"
)

// FolderStarred is the pseudo-folder the server exposes for starred messages.
// Starred is a per-message flag, not a real folder: a message in the starred
// view still belongs to its true folder, and delete/restore always operate on
// that true folder.
const FolderStarred Folder = "starred"

// Folders lists the navigable folders in sidebar order.
var Folders = []Folder{
	FolderInbox,
	FolderStarred,
	FolderSent,
	FolderDrafts,
	FolderSpam,
	FolderTrash,
}

// Title returns the display name for the folder.
func (f Folder) Title() string {
	switch f {
	case FolderInbox:
		return "Inbox"
	case FolderSent:
		return "Sent"
	case FolderDrafts:
		return "Drafts"
	case FolderSpam:
		return "Spam"
	case FolderTrash:
		return "Trash"
	case FolderStarred:
		return "Starred"
	}
	return string(f)
}

// Attachment describes a single file attached to a message.
type Attachment struct {
	// ID is the server identifier used to fetch the attachment body.
	ID string `json:"id"`

	// Filename is the original file name.
	Filename string `json:"filename"`

	// Size is the attachment size in bytes.
	Size int64 `json:"size"`

	// MimeHint is the server's best guess at the content type. It is a
	// hint only; the server does not guarantee it matches the bytes.
	MimeHint string `json:"mime_hint"`
}

// Message is a mailbox message as the server reports it.
type Message struct {
	// ID is the server-assigned, stable message identifier.
	ID string `json:"id"`

	// Folder is the folder the message currently belongs to.
	Folder Folder `json:"folder"`

	// Sender is the display form of the sending address.
	Sender string `json:"sender"`

	// SenderEmail is the bare sending address.
	SenderEmail string `json:"sender_email"`

	// Subject is the message subject line.
	Subject string `json:"subject"`

	// Preview is a short plain-text excerpt of the body.
	Preview string `json:"preview"`

	// ReceivedAt is when the server received the message.
	ReceivedAt time.Time `json:"received_at"`

	// IsRead reports whether the message has been opened.
	IsRead bool `json:"is_read"`

	// IsStarred is the star flag. See FolderStarred for the flag/folder
	// distinction.
	IsStarred bool `json:"is_starred"`

	// Attachments lists attached files in server order.
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Draft is an unsent message saved server-side.
type Draft struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
