package core

import (
	"time"

	"github.com/vovakirdan/chatlink-relay/internal/linkpreview"
)

// MessageKind is the content type of a relayed message.
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
	MessageKindFile  MessageKind = "file"
	MessageKindVideo MessageKind = "video"
	MessageKindAudio MessageKind = "audio"
)

// Valid reports whether k is one of the known kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindImage, MessageKindFile, MessageKindVideo, MessageKindAudio:
		return true
	}
	return false
}

// FileRef points at an attachment uploaded elsewhere.
type FileRef struct {
	URL  string
	Name string
	Size int64
}

// Reaction is a single reaction on a message.
type Reaction struct {
	MessageID   string
	Room        string
	Reaction    string
	UserID      string
	DisplayName string
	CreatedAt   time.Time
}

// Message is the domain model for a relayed chat message.
type Message struct {
	ID          string
	Room        string
	SenderID    string
	SenderName  string
	Content     string
	Kind        MessageKind
	CreatedAt   time.Time
	File        *FileRef
	LinkPreview *linkpreview.Preview
	Reactions   []Reaction
}
